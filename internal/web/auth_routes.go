package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/taskward/taskward/internal/auth"
	"github.com/taskward/taskward/internal/email"
	"github.com/taskward/taskward/internal/errorz"
	"github.com/taskward/taskward/internal/krypto"
)

// Flash messages shown after redirects.
const (
	flashRegistered       = "Almost there! Enter the 6 digit code we sent to your inbox."
	flashVerifyFirst      = "Please verify your email address to continue."
	flashVerified         = "Your email address has been verified, welcome!"
	flashBadOTP           = "That verification code is invalid or has expired."
	flashDuplicateUser    = "An account with that username or email already exists."
	flashPasswordMismatch = "The passwords do not match."
	flashBadInput         = "Please check the form and try again."
	flashBadCredentials   = "Invalid credentials."
	flashBadResetToken    = "That password reset link is invalid or has expired."
	flashPasswordWasReset = "Your password was reset, login with your new password below."
	flashWrongPassword    = "Your current password is incorrect."
	flashPasswordChanged  = "Your password has been changed."
	flashProfileUpdated   = "Your profile has been updated."
)

func (s *Server) authRoutes() {
	// Register endpoints.
	s.publicOnly("GET /register", s.staticHandler("register"))
	{
		const route = "POST /register"
		h := newHandler(s, s.deps.AuthService.Register)
		h.onSuccess(func(r result[auth.Registration, auth.User]) error {
			// The new user may only pass the verification endpoints
			// until they have proven control of their email address.
			r.sess.SetTempUserID(r.out.ID)
			return r.s.flashAndRedirect(r.w, r.r, r.sess, flashRegistered, "/verify-email")
		})
		h.onFail(func(sh shared, err error) {
			switch {
			case errors.Is(err, auth.ErrDuplicateUser):
				s.failFlash(sh, flashDuplicateUser, "/register")
			case errors.Is(err, auth.ErrPasswordMismatch):
				s.failFlash(sh, flashPasswordMismatch, "/register")
			case isInvalidInput(err):
				s.failFlash(sh, flashBadInput, "/register")
			default:
				s.handleError(sh.w, sh.r, err)
			}
		})

		s.publicOnly(route, h)
	}

	// Verify email endpoints.
	s.tempOnly("GET /verify-email", s.staticHandler("verify-email"))
	{
		const route = "POST /verify-email"

		type verifyInput struct {
			Code krypto.OTP
		}

		h := newInputHandler(s, func(ctx context.Context, in verifyInput) error {
			userID, err := tempUserIDFromCtx(ctx)
			if err != nil {
				return err
			}

			return s.deps.AuthService.VerifyEmail(ctx, userID, in.Code)
		})
		h.onSuccess(func(r result[verifyInput, struct{}]) error {
			userID, err := tempUserIDFromCtx(r.r.Context())
			if err != nil {
				return err
			}

			expireCSRFCookie(r.w)
			r.sess.SetUserID(userID)
			return r.s.flashAndRedirect(r.w, r.r, r.sess, flashVerified, "/tasks")
		})
		h.onFail(func(sh shared, err error) {
			switch {
			case errors.Is(err, auth.ErrOTPInvalid), isInvalidInput(err):
				s.failFlash(sh, flashBadOTP, "/verify-email")
			default:
				s.handleError(sh.w, sh.r, err)
			}
		})

		s.tempOnly(route, h)
	}

	// Login endpoints.
	s.publicOnly("GET /login", s.staticHandler("login"))
	{
		const route = "POST /login"

		// verified distinguishes a full login from a user that still
		// needs to confirm their email address.
		type loginOutcome struct {
			user     auth.User
			verified bool
		}

		h := newHandler(s, func(ctx context.Context, c auth.Credentials) (loginOutcome, error) {
			user, err := s.deps.AuthService.Authenticate(ctx, c)
			if errors.Is(err, auth.ErrNotVerified) {
				return loginOutcome{user: user}, nil
			}
			if err != nil {
				return loginOutcome{}, err
			}

			return loginOutcome{user: user, verified: true}, nil
		})
		h.onSuccess(func(r result[auth.Credentials, loginOutcome]) error {
			if !r.out.verified {
				r.sess.SetTempUserID(r.out.user.ID)
				return r.s.flashAndRedirect(r.w, r.r, r.sess, flashVerifyFirst, "/verify-email")
			}

			// We clear the CSRF token to provide defense in depth
			// against fixation attacks. If an attacker somehow gained
			// access to the token before the user logged in, it will be
			// worthless afterwards. See:
			// https://security.stackexchange.com/questions/209993/csrf-token-unique-per-user-session-why
			expireCSRFCookie(r.w)

			r.sess.SetUserID(r.out.user.ID)
			err := r.s.deps.SessionStore.Save(r.r, r.w, r.sess)
			if err != nil {
				return err
			}

			http.Redirect(r.w, r.r, "/tasks", http.StatusFound)
			return nil
		})
		h.onFail(func(sh shared, err error) {
			switch {
			case errors.Is(err, auth.ErrInvalidCredentials), isInvalidInput(err):
				s.failFlash(sh, flashBadCredentials, "/login")
			default:
				s.handleError(sh.w, sh.r, err)
			}
		})

		s.publicOnly(route, h)
	}

	// Logout endpoint. Public on purpose: a user halfway through email
	// verification only has the temporary session pointer, they should
	// still be able to walk away. Destroy clears both pointers and is
	// idempotent for visitors without a session.
	{
		const route = "POST /logout"
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessionFromCtx(r.Context())
			if err != nil {
				s.handleError(w, r, err)
				return
			}

			sess.Destroy()
			err = s.deps.SessionStore.Save(r, w, sess)
			if err != nil {
				s.handleError(w, r, err)
				return
			}

			http.Redirect(w, r, "/", http.StatusFound)
		})

		s.public(route, h)
	}

	// Request password reset endpoints.
	s.publicOnly("GET /forgot-password", s.staticHandler("forgot-password"))
	{
		// The forgot-password form is submitted from script, so this
		// endpoint responds with JSON instead of a redirect.
		const route = "POST /forgot-password"
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := r.ParseForm()
			if err != nil {
				s.writeJSON(w, http.StatusBadRequest, jsonResult{Message: "Could not read the form."})
				return
			}

			addr, err := email.ParseAddress(r.FormValue("Email"))
			if err != nil {
				s.writeJSON(w, http.StatusBadRequest, jsonResult{Message: "That email address is not valid."})
				return
			}

			err = s.deps.AuthService.RequestPasswordReset(r.Context(), addr)
			switch {
			case err == nil:
				s.writeJSON(w, http.StatusOK, jsonResult{
					Success: true,
					Message: "Check your inbox for instructions to reset your password.",
				})
			case errors.Is(err, errorz.ErrNotFound):
				s.writeJSON(w, http.StatusNotFound, jsonResult{Message: "No account found with that email address."})
			default:
				s.deps.Logger.Error("failed to request password reset", "error", err)
				s.writeJSON(w, http.StatusInternalServerError, jsonResult{Message: "Something went wrong, please try again later."})
			}
		})

		s.publicOnly(route, h)
	}

	// Reset password endpoints.
	{
		const route = "GET /reset-password/{token}"
		h := newHandler(s, s.deps.AuthService.ResolveResetToken)
		h.request(func(sh shared) (krypto.Token, error) {
			return krypto.ParseToken(sh.r.PathValue("token"))
		})
		h.onSuccess(func(r result[krypto.Token, auth.User]) error {
			// The token is threaded through to the form so the POST
			// below can consume it.
			return r.s.writeView(r.w, r.r, "reset-password", struct {
				Token string
			}{
				Token: r.in.String(),
			})
		})
		h.onFail(func(sh shared, err error) {
			switch {
			case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, krypto.ErrInvalidToken):
				s.failFlash(sh, flashBadResetToken, "/forgot-password")
			default:
				s.handleError(sh.w, sh.r, err)
			}
		})

		s.publicOnly(route, h)
	}
	{
		const route = "POST /reset-password/{token}"
		h := newInputHandler(s, s.deps.AuthService.CompletePasswordReset)
		h.request(func(sh shared) (auth.NewPassword, error) {
			in, err := defaultReqToIn[auth.NewPassword](s, sh)
			if err != nil {
				return in, err
			}

			in.Token, err = krypto.ParseToken(sh.r.PathValue("token"))
			return in, err
		})
		h.onSuccess(func(r result[auth.NewPassword, struct{}]) error {
			return r.s.flashAndRedirect(r.w, r.r, r.sess, flashPasswordWasReset, "/login")
		})
		h.onFail(func(sh shared, err error) {
			switch {
			case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, krypto.ErrInvalidToken):
				s.failFlash(sh, flashBadResetToken, "/forgot-password")
			case errors.Is(err, auth.ErrPasswordMismatch), isInvalidInput(err):
				s.failFlash(sh, flashBadInput, sh.r.URL.Path)
			default:
				s.handleError(sh.w, sh.r, err)
			}
		})

		s.publicOnly(route, h)
	}

	// Profile endpoints.
	{
		const route = "GET /profile"
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := userFromCtx(r.Context())
			if err != nil {
				s.handleError(w, r, err)
				return
			}

			err = s.writeView(w, r, "profile", user)
			if err != nil {
				s.handleError(w, r, err)
				return
			}
		})

		s.loggedIn(route, h)
	}
	{
		const route = "POST /profile/update-info"
		h := newHandler(s, func(ctx context.Context, up auth.ProfileUpdate) (auth.User, error) {
			user, err := userFromCtx(ctx)
			if err != nil {
				return auth.User{}, err
			}

			return s.deps.AuthService.UpdateProfile(ctx, user.ID, up)
		})
		h.onSuccess(func(r result[auth.ProfileUpdate, auth.User]) error {
			return r.s.flashAndRedirect(r.w, r.r, r.sess, flashProfileUpdated, "/profile")
		})
		h.onFail(func(sh shared, err error) {
			switch {
			case errors.Is(err, auth.ErrDuplicateUser):
				s.failFlash(sh, flashDuplicateUser, "/profile")
			case isInvalidInput(err):
				s.failFlash(sh, flashBadInput, "/profile")
			default:
				s.handleError(sh.w, sh.r, err)
			}
		})

		s.loggedIn(route, h)
	}
	{
		const route = "POST /profile/update-password"
		h := newInputHandler(s, func(ctx context.Context, change auth.PasswordChange) error {
			user, err := userFromCtx(ctx)
			if err != nil {
				return err
			}

			return s.deps.AuthService.ChangePassword(ctx, user.ID, change)
		})
		h.onSuccess(func(r result[auth.PasswordChange, struct{}]) error {
			return r.s.flashAndRedirect(r.w, r.r, r.sess, flashPasswordChanged, "/profile")
		})
		h.onFail(func(sh shared, err error) {
			switch {
			case errors.Is(err, auth.ErrInvalidCredentials):
				s.failFlash(sh, flashWrongPassword, "/profile")
			case errors.Is(err, auth.ErrPasswordMismatch):
				s.failFlash(sh, flashPasswordMismatch, "/profile")
			case isInvalidInput(err):
				s.failFlash(sh, flashBadInput, "/profile")
			default:
				s.handleError(sh.w, sh.r, err)
			}
		})

		s.loggedIn(route, h)
	}
}
