package sessions

import (
	"encoding/gob"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

func init() {
	// Session values are serialized with gob.
	gob.Register(uuid.UUID{})
}

const (
	userIDKey     = "userID"
	tempUserIDKey = "tempUserID"
)

// Session wraps a gorilla session with the two slots taskward uses.
//
// UserID identifies an authenticated user. TempUserID identifies a user
// that is mid email-verification and grants no access to protected
// pages. The slots are mutually exclusive, setting one clears the
// other.
type Session struct {
	base      *sessions.Session
	needsSave bool
}

func (s *Session) NeedsSave() bool {
	return s.needsSave
}

// UserID returns the authenticated user ID slot.
func (s *Session) UserID() (uuid.UUID, bool) {
	userID, ok := s.base.Values[userIDKey].(uuid.UUID)
	return userID, ok
}

// SetUserID marks the session as authenticated.
func (s *Session) SetUserID(userID uuid.UUID) {
	s.needsSave = true
	delete(s.base.Values, tempUserIDKey)
	s.base.Values[userIDKey] = userID
}

// TempUserID returns the mid-verification user ID slot.
func (s *Session) TempUserID() (uuid.UUID, bool) {
	userID, ok := s.base.Values[tempUserIDKey].(uuid.UUID)
	return userID, ok
}

// SetTempUserID marks the session as mid email-verification.
func (s *Session) SetTempUserID(userID uuid.UUID) {
	s.needsSave = true
	delete(s.base.Values, userIDKey)
	s.base.Values[tempUserIDKey] = userID
}

// Destroy removes both slots and expires the cookie.
func (s *Session) Destroy() {
	s.needsSave = true
	delete(s.base.Values, userIDKey)
	delete(s.base.Values, tempUserIDKey)
	s.base.Options.MaxAge = -1
}

func (s *Session) AddFlash(flash any, vars ...string) {
	s.needsSave = true
	s.base.AddFlash(flash, vars...)
}

// ConsumeFlashes returns the flashes and removes them from the session.
func (s *Session) ConsumeFlashes() []any {
	flashes := s.base.Flashes()
	if len(flashes) > 0 {
		s.needsSave = true
	}
	return flashes
}
