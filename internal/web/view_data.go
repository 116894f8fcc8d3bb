package web

import (
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/taskward/taskward/internal"
	"github.com/taskward/taskward/internal/auth"
	"github.com/taskward/taskward/internal/web/sessions"
)

// viewData is the envelope passed to every view. Data holds the view
// specific part.
type viewData struct {
	Version    string
	CSRFToken  string
	IsLoggedIn bool
	User       auth.User
	Flashes    []any
	Data       any
}

// prepViewData prepares the data that will be passed to the view.
// Should be called before the session is saved, consuming the flashes
// still alters it.
func (s *Server) prepViewData(r *http.Request, sess *sessions.Session, data any) *viewData {
	_, loggedIn := sess.UserID()

	// The user is only loaded for routes behind the loggedIn guard,
	// elsewhere it stays the zero value.
	user, _ := userFromCtx(r.Context())

	return &viewData{
		Version:    internal.BuildRevision,
		CSRFToken:  csrf.Token(r),
		IsLoggedIn: loggedIn,
		User:       user,
		Flashes:    sess.ConsumeFlashes(),
		Data:       data,
	}
}
