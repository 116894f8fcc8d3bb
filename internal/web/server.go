package web

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/gorilla/schema"
	"github.com/taskward/taskward/internal/auth"
	"github.com/taskward/taskward/internal/errorz"
	"github.com/taskward/taskward/internal/krypto"
	"github.com/taskward/taskward/internal/tasks"
	"github.com/taskward/taskward/internal/web/sessions"
)

const (
	csrfTokenCookieName = "tw-csrf"
	csrfTokenField      = "gorilla.csrf.Token"
)

// ViewRenderer renders named views with the given data.
type ViewRenderer interface {
	Render(w io.Writer, name string, data any) error
}

// ServerDeps are the dependencies for the server.
type ServerDeps struct {
	Logger       *slog.Logger
	ViewRenderer ViewRenderer
	AuthService  *auth.Service
	TaskService  *tasks.Service
	SessionStore *sessions.Store
	DistFS       http.FileSystem
}

// ServerConfig is the configuration for the server.
type ServerConfig struct {
	CSRFKey      krypto.Key
	SecureCookie bool
}

type Server struct {
	deps    *ServerDeps
	mux     *http.ServeMux
	decoder *schema.Decoder
	handler http.Handler
}

func NewServer(deps *ServerDeps, cfg ServerConfig) *Server {
	s := &Server{
		deps:    deps,
		mux:     http.NewServeMux(),
		decoder: schema.NewDecoder(),
	}

	// Most non-static endpoints are created using the newHandler
	// functions. These return handlers that automatically map between
	// HTTP requests, target functions and HTTP responses. The request
	// mapping and response writing is customizable per route.

	s.public("GET /{$}", s.staticHandler("home"))

	s.authRoutes()
	s.taskRoutes()
	s.apiRoutes()

	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(deps.DistFS)))

	// Wrap the mux with global middlewares.
	csrfMW := csrf.Protect(
		cfg.CSRFKey.SecretValue(),
		csrf.CookieName(csrfTokenCookieName),
		csrf.FieldName(csrfTokenField),
		csrf.Secure(cfg.SecureCookie),
	)

	middlewares := []func(http.Handler) http.Handler{
		csrfMW,
		sessionMiddleware(s),
	}
	s.handler = s.mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		s.handler = middlewares[i](s.handler)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// staticHandler renders the view with the given name without any
// view specific data.
func (s *Server) staticHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.writeView(w, r, name, nil)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
	}
}

func (s *Server) writeView(w http.ResponseWriter, r *http.Request, name string, data any) error {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		return err
	}

	viewData := s.prepViewData(r, sess, data)

	// Consuming flashes modifies the session, save before writing the body.
	err = s.deps.SessionStore.Save(r, w, sess)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return s.deps.ViewRenderer.Render(w, name, viewData)
}

// flashAndRedirect adds a flash message, saves the session and
// redirects the client.
func (s *Server) flashAndRedirect(w http.ResponseWriter, r *http.Request, sess *sessions.Session, flash, target string) error {
	sess.AddFlash(flash)
	err := s.deps.SessionStore.Save(r, w, sess)
	if err != nil {
		return err
	}

	http.Redirect(w, r, target, http.StatusFound)
	return nil
}

// failFlash is flashAndRedirect for onFail funcs, save errors end up
// at the error handler.
func (s *Server) failFlash(sh shared, flash, target string) {
	err := s.flashAndRedirect(sh.w, sh.r, sh.sess, flash, target)
	if err != nil {
		s.handleError(sh.w, sh.r, err)
	}
}

// expireCSRFCookie clears the CSRF token cookie, a new token will be
// generated on the next GET request.
func expireCSRFCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   csrfTokenCookieName,
		MaxAge: -1,
	})
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errorz.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if isInvalidInput(err) {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	s.deps.Logger.Error("internal server error", "url", r.URL.String(), "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
