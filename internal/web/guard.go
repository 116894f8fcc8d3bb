package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/taskward/taskward/internal/auth"
	"github.com/taskward/taskward/internal/errorz"
)

// The guard methods register handlers with different access
// requirements. Guards run after the session middleware, so the session
// is always available in the context.

// public registers a handler without access requirements.
func (s *Server) public(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// publicOnly registers a handler that is only reachable without an
// authenticated session. Logged in users are sent to their task list.
func (s *Server) publicOnly(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFromCtx(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		if _, ok := sess.UserID(); ok {
			http.Redirect(w, r, "/tasks", http.StatusFound)
			return
		}

		handler.ServeHTTP(w, r)
	}))
}

// loggedIn registers a handler that requires an authenticated session.
//
// The user behind the session is loaded on every request. Sessions that
// refer to deleted or unverified users are destroyed, a stale cookie
// should not keep granting access.
func (s *Server) loggedIn(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFromCtx(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		userID, ok := sess.UserID()
		if !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		user, err := s.deps.AuthService.UserByID(r.Context(), userID)
		if err != nil && !errors.Is(err, errorz.ErrNotFound) {
			s.handleError(w, r, err)
			return
		}

		if errors.Is(err, errorz.ErrNotFound) || !user.IsVerified {
			sess.Destroy()
			if err := s.deps.SessionStore.Save(r, w, sess); err != nil {
				s.handleError(w, r, err)
				return
			}

			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		ctx := ctxWithUser(r.Context(), user)
		handler.ServeHTTP(w, r.WithContext(ctx))
	}))
}

// tempOnly registers a handler that requires a session in the email
// verification stage.
func (s *Server) tempOnly(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFromCtx(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		if _, ok := sess.UserID(); ok {
			http.Redirect(w, r, "/tasks", http.StatusFound)
			return
		}

		userID, ok := sess.TempUserID()
		if !ok {
			http.Redirect(w, r, "/register", http.StatusFound)
			return
		}

		ctx := ctxWithTempUserID(r.Context(), userID)
		handler.ServeHTTP(w, r.WithContext(ctx))
	}))
}

const (
	userCtxKey       ctxKey = "_user"
	tempUserIDCtxKey ctxKey = "_tempUserID"
)

func ctxWithUser(ctx context.Context, user auth.User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

func userFromCtx(ctx context.Context) (auth.User, error) {
	user, ok := ctx.Value(userCtxKey).(auth.User)
	if !ok {
		return auth.User{}, fmt.Errorf("could not get user from context")
	}

	return user, nil
}

func ctxWithTempUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, tempUserIDCtxKey, userID)
}

func tempUserIDFromCtx(ctx context.Context) (uuid.UUID, error) {
	userID, ok := ctx.Value(tempUserIDCtxKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("could not get temp user ID from context")
	}

	return userID, nil
}
