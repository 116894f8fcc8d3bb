package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/taskward/taskward/internal/email"
)

// jsonResult is the generic envelope for JSON endpoints.
type jsonResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type availability struct {
	Available bool `json:"available"`
}

// apiRoutes registers the JSON endpoints used by the registration form
// to check availability while the user is typing.
func (s *Server) apiRoutes() {
	s.public("GET /api/check-username/{username}", s.availabilityHandler(func(r *http.Request) (bool, error) {
		return s.deps.AuthService.UsernameAvailable(r.Context(), r.PathValue("username"))
	}))

	s.public("GET /api/check-email/{email}", s.availabilityHandler(func(r *http.Request) (bool, error) {
		addr, err := email.ParseAddress(r.PathValue("email"))
		if err != nil {
			return false, err
		}

		return s.deps.AuthService.EmailAvailable(r.Context(), addr)
	}))
}

func (s *Server) availabilityHandler(check func(r *http.Request) (bool, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, err := check(r)
		if err != nil {
			// Malformed input is reported as unavailable, the
			// registration form would reject it anyway.
			if errors.Is(err, email.ErrInvalidEmail) {
				s.writeJSON(w, http.StatusBadRequest, availability{})
				return
			}

			s.deps.Logger.Error("availability check failed", "url", r.URL.String(), "error", err)
			s.writeJSON(w, http.StatusInternalServerError, availability{})
			return
		}

		s.writeJSON(w, http.StatusOK, availability{Available: ok})
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.deps.Logger.Error("failed to encode json response", "error", err)
	}
}
