package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/taskward/taskward/internal/email"
	"github.com/taskward/taskward/internal/krypto"
)

// DefaultPhotoPath is the avatar assigned to new users.
const DefaultPhotoPath = "/static/images/default-avatar.png"

// User contains the data for a user.
//
// The OTP pair tracks the emailed verification code: both fields are set
// while a code is outstanding and nil otherwise. The reset pair works the
// same way for password reset tokens.
type User struct {
	ID               uuid.UUID
	Username         string
	FirstName        string
	LastName         string
	Email            email.Address
	PasswordHash     krypto.Argon2Hash
	IsVerified       bool
	OTPHash          *krypto.Argon2Hash
	OTPExpiresAt     *time.Time
	ResetTokenDigest *string
	ResetExpiresAt   *time.Time
	PhotoPath        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FullName returns the first and last name joined by a space.
func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}
