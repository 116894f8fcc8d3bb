package auth

import (
	"errors"
	"regexp"
	"strings"

	"github.com/taskward/taskward/internal/email"
	"github.com/taskward/taskward/internal/errorz"
	"github.com/taskward/taskward/internal/krypto"
)

var (
	ErrInvalidUsername = errors.New("username must be 3 to 30 characters, letters, digits, dashes or underscores")
	ErrMissingName     = errors.New("is required")
)

// usernamePattern limits usernames to a charset that can appear in URLs
// without escaping.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,30}$`)

// emailPattern classifies a login identifier as an email address. It is
// deliberately conservative, anything it rejects is treated as a
// username.
var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

// Registration is the input needed to register a new user.
type Registration struct {
	FirstName       string
	LastName        string
	Username        string
	Email           email.Address
	Password        Password
	ConfirmPassword Password
}

// Validate checks the fields the type system doesn't already guarantee.
// Password confirmation is checked by the service because it has its
// own error signal.
func (r Registration) Validate() error {
	var errs errorz.InvalidInput

	if strings.TrimSpace(r.FirstName) == "" {
		errs = append(errs, errorz.Keyed{Key: "firstName", Err: ErrMissingName})
	}

	if strings.TrimSpace(r.LastName) == "" {
		errs = append(errs, errorz.Keyed{Key: "lastName", Err: ErrMissingName})
	}

	if !usernamePattern.MatchString(r.Username) {
		errs = append(errs, errorz.Keyed{Key: "username", Err: ErrInvalidUsername})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// Credentials identify a user by username or email address, plus their
// password.
type Credentials struct {
	Identifier string
	Password   Password
}

// userFilter returns the filter matching the identifier. Identifiers
// shaped like an email address look the user up by email, everything
// else by username.
func (c Credentials) userFilter() *UserFilter {
	if emailPattern.MatchString(c.Identifier) {
		addr, err := email.ParseAddress(c.Identifier)
		if err == nil {
			return &UserFilter{Emails: []email.Address{addr}}
		}
	}

	return &UserFilter{Usernames: []string{c.Identifier}}
}

// NewPassword is the input needed to finish a password reset.
type NewPassword struct {
	Token           krypto.Token
	Password        Password
	ConfirmPassword Password
}

// PasswordChange is the input needed to change the password of a logged
// in user.
type PasswordChange struct {
	CurrentPassword Password
	Password        Password
	ConfirmPassword Password
}

// ProfileUpdate is the input needed to update a user's profile.
type ProfileUpdate struct {
	FirstName string
	LastName  string
	Username  string
}

func (p ProfileUpdate) Validate() error {
	var errs errorz.InvalidInput

	if strings.TrimSpace(p.FirstName) == "" {
		errs = append(errs, errorz.Keyed{Key: "firstName", Err: ErrMissingName})
	}

	if strings.TrimSpace(p.LastName) == "" {
		errs = append(errs, errorz.Keyed{Key: "lastName", Err: ErrMissingName})
	}

	if !usernamePattern.MatchString(p.Username) {
		errs = append(errs, errorz.Keyed{Key: "username", Err: ErrInvalidUsername})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}
