package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskward/taskward/internal/email"
	"github.com/taskward/taskward/internal/errorz"
	"github.com/taskward/taskward/internal/krypto"
)

var (
	ErrDuplicateUser      = errors.New("duplicate user")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("user not verified")
	ErrOTPInvalid         = errors.New("invalid or expired verification code")
	ErrTokenInvalid       = errors.New("invalid or expired reset token")
	ErrPasswordMismatch   = errors.New("passwords do not match")
)

const (
	// OTPExpiry is how long an emailed verification code stays valid.
	OTPExpiry = 10 * time.Minute
	// ResetTokenExpiry is how long a password reset token stays valid.
	ResetTokenExpiry = time.Hour
)

// Email template names.
const (
	tmplVerifyEmail   = "verify-email"
	tmplPasswordReset = "password-reset"
)

// Emailer is used to send templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, to email.Address, data interface{}) error
}

// ErrFunc is a function that handles errors.
type ErrFunc func(error)

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// WorkerTimeout is the max duration worker goroutines are allowed
	// to take before they are cancelled.
	WorkerTimeout time.Duration
	// OTPExpiry and ResetTokenExpiry override the package defaults,
	// mainly useful in tests.
	OTPExpiry        time.Duration
	ResetTokenExpiry time.Duration
	// BaseURL is used to construct the links embedded in emails.
	BaseURL *url.URL
}

// Service provides the main rules for registration and authentication.
type Service struct {
	store      Store
	emailer    Emailer
	wg         *sync.WaitGroup
	errHandler ErrFunc
	cfg        ServiceConfig

	// comparisonHash is used to compare passwords when no user was found.
	comparisonHash krypto.Argon2Hash

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(s Store, emailer Emailer, errHandler ErrFunc, cfg ServiceConfig) (*Service, error) {
	if cfg.BaseURL == nil {
		return nil, errors.New("base URL is required")
	}

	if cfg.OTPExpiry == 0 {
		cfg.OTPExpiry = OTPExpiry
	}

	if cfg.ResetTokenExpiry == 0 {
		cfg.ResetTokenExpiry = ResetTokenExpiry
	}

	tok, err := krypto.GenerateToken()
	if err != nil {
		return nil, err
	}

	hash, err := krypto.HashArgon2(tok[:])
	if err != nil {
		return nil, err
	}

	svc := &Service{
		store:          s,
		emailer:        emailer,
		wg:             &sync.WaitGroup{},
		errHandler:     errHandler,
		cfg:            cfg,
		comparisonHash: hash,
		NowFunc:        time.Now,
	}

	return svc, nil
}

// Wait waits for all open workers to finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// VerifyEmailData is the data for the verification email.
type VerifyEmailData struct {
	FirstName string
	Code      krypto.OTP
	Expiry    string
}

// PasswordResetData is the data for the password reset email.
type PasswordResetData struct {
	FirstName string
	ResetURL  string
}

// Register creates a new unverified user and emails them a verification
// code. The user and the code are committed in a single transaction, the
// email is sent by a worker goroutine afterwards so delivery does not
// delay the response.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	if err := reg.Validate(); err != nil {
		return User{}, err
	}

	if !reg.Password.Equal(reg.ConfirmPassword) {
		return User{}, ErrPasswordMismatch
	}

	pwdHash, err := reg.Password.Hash()
	if err != nil {
		return User{}, err
	}

	otp, err := krypto.GenerateOTP()
	if err != nil {
		return User{}, err
	}

	otpHash, err := otp.Hash()
	if err != nil {
		return User{}, err
	}

	now := s.NowFunc()
	user := User{
		ID:           uuid.New(),
		Username:     reg.Username,
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		Email:        reg.Email,
		PasswordHash: pwdHash,
		IsVerified:   false,
		OTPHash:      &otpHash,
		OTPExpiresAt: ptr(now.Add(s.cfg.OTPExpiry)),
		PhotoPath:    DefaultPhotoPath,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.inTx(ctx, func(tx Tx) error {
		return tx.CreateUser(&user)
	})
	if err != nil {
		if errors.Is(err, errorz.ErrConstraintViolated) {
			return User{}, ErrDuplicateUser
		}
		return User{}, err
	}

	s.sendAsync(func(wCtx context.Context) error {
		return s.emailer.Send(wCtx, tmplVerifyEmail, user.Email, VerifyEmailData{
			FirstName: user.FirstName,
			Code:      otp,
			Expiry:    expiryText(s.cfg.OTPExpiry),
		})
	})

	return user, nil
}

// Authenticate checks the provided credentials. Unknown identifiers and
// wrong passwords both result in ErrInvalidCredentials. Users that have
// not verified their email yet are returned alongside ErrNotVerified so
// the caller can route them into the verification flow.
func (s *Service) Authenticate(ctx context.Context, c Credentials) (User, error) {
	users, err := s.store.FindUsers(ctx, c.userFilter())
	if err != nil {
		return User{}, err
	}

	if len(users) != 1 {
		// Even if no user is found we compare to a hash to prevent timing
		// differences that could result in user enumeration attacks.
		_ = c.Password.Match(s.comparisonHash)
		return User{}, ErrInvalidCredentials
	}

	user := users[0]
	if !c.Password.Match(user.PasswordHash) {
		return User{}, ErrInvalidCredentials
	}

	if !user.IsVerified {
		return user, ErrNotVerified
	}

	return user, nil
}

// VerifyEmail marks the user as verified if the submitted code matches
// the outstanding one. Expired, mismatching and absent codes all result
// in ErrOTPInvalid, one signal on purpose.
func (s *Service) VerifyEmail(ctx context.Context, userID uuid.UUID, otp krypto.OTP) error {
	return s.inTx(ctx, func(tx Tx) error {
		users, err := tx.FindUsers(&UserFilter{IDs: []uuid.UUID{userID}})
		if err != nil {
			return err
		}

		if len(users) != 1 {
			return errorz.ErrNotFound
		}

		user := users[0]
		now := s.NowFunc()

		if user.IsVerified || user.OTPHash == nil || user.OTPExpiresAt == nil {
			return ErrOTPInvalid
		}

		if now.After(*user.OTPExpiresAt) || !otp.Match(*user.OTPHash) {
			return ErrOTPInvalid
		}

		user.IsVerified = true
		user.OTPHash = nil
		user.OTPExpiresAt = nil
		user.UpdatedAt = now

		return tx.UpdateUser(&user)
	})
}

// RequestPasswordReset issues a reset token for the user with the
// provided email address and emails them a link containing it. Only the
// SHA-256 digest of the token is persisted. errorz.ErrNotFound is
// returned when no user has the address.
func (s *Service) RequestPasswordReset(ctx context.Context, addr email.Address) error {
	token, err := krypto.GenerateToken()
	if err != nil {
		return err
	}

	digest := token.Digest()

	var user User
	err = s.inTx(ctx, func(tx Tx) error {
		users, txErr := tx.FindUsers(&UserFilter{Emails: []email.Address{addr}})
		if txErr != nil {
			return txErr
		}

		if len(users) != 1 {
			return errorz.ErrNotFound
		}

		user = users[0]
		now := s.NowFunc()
		user.ResetTokenDigest = &digest
		user.ResetExpiresAt = ptr(now.Add(s.cfg.ResetTokenExpiry))
		user.UpdatedAt = now

		return tx.UpdateUser(&user)
	})
	if err != nil {
		return err
	}

	resetURL := s.cfg.BaseURL.JoinPath("reset-password", token.String())

	// Sending could fail independently of the transaction. This is an
	// acceptable risk for now, the user can always request a new reset.
	s.sendAsync(func(wCtx context.Context) error {
		return s.emailer.Send(wCtx, tmplPasswordReset, user.Email, PasswordResetData{
			FirstName: user.FirstName,
			ResetURL:  resetURL.String(),
		})
	})

	return nil
}

// ResolveResetToken looks up the user an unexpired reset token belongs
// to. It does not consume the token, that happens in
// CompletePasswordReset.
func (s *Service) ResolveResetToken(ctx context.Context, token krypto.Token) (User, error) {
	users, err := s.store.FindUsers(ctx, &UserFilter{
		ResetTokenDigests: []string{token.Digest()},
	})
	if err != nil {
		return User{}, err
	}

	if len(users) != 1 {
		return User{}, ErrTokenInvalid
	}

	user := users[0]
	if user.ResetExpiresAt == nil || s.NowFunc().After(*user.ResetExpiresAt) {
		return User{}, ErrTokenInvalid
	}

	return user, nil
}

// CompletePasswordReset sets a new password for the user the token
// belongs to. Lookup and invalidation happen in the same transaction so
// a token cannot be redeemed twice.
func (s *Service) CompletePasswordReset(ctx context.Context, np NewPassword) error {
	if !np.Password.Equal(np.ConfirmPassword) {
		return ErrPasswordMismatch
	}

	pwdHash, err := np.Password.Hash()
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx Tx) error {
		users, txErr := tx.FindUsers(&UserFilter{
			ResetTokenDigests: []string{np.Token.Digest()},
		})
		if txErr != nil {
			return txErr
		}

		if len(users) != 1 {
			return ErrTokenInvalid
		}

		user := users[0]
		now := s.NowFunc()
		if user.ResetExpiresAt == nil || now.After(*user.ResetExpiresAt) {
			return ErrTokenInvalid
		}

		user.PasswordHash = pwdHash
		user.ResetTokenDigest = nil
		user.ResetExpiresAt = nil
		user.UpdatedAt = now

		return tx.UpdateUser(&user)
	})
}

// ChangePassword sets a new password for a logged in user after
// verifying their current one.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, change PasswordChange) error {
	if !change.Password.Equal(change.ConfirmPassword) {
		return ErrPasswordMismatch
	}

	pwdHash, err := change.Password.Hash()
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx Tx) error {
		users, txErr := tx.FindUsers(&UserFilter{IDs: []uuid.UUID{userID}})
		if txErr != nil {
			return txErr
		}

		if len(users) != 1 {
			return errorz.ErrNotFound
		}

		user := users[0]
		if !change.CurrentPassword.Match(user.PasswordHash) {
			return ErrInvalidCredentials
		}

		user.PasswordHash = pwdHash
		user.UpdatedAt = s.NowFunc()

		return tx.UpdateUser(&user)
	})
}

// UpdateProfile updates the name and username of a user.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, up ProfileUpdate) (User, error) {
	if err := up.Validate(); err != nil {
		return User{}, err
	}

	var user User
	err := s.inTx(ctx, func(tx Tx) error {
		users, txErr := tx.FindUsers(&UserFilter{IDs: []uuid.UUID{userID}})
		if txErr != nil {
			return txErr
		}

		if len(users) != 1 {
			return errorz.ErrNotFound
		}

		user = users[0]
		user.FirstName = strings.TrimSpace(up.FirstName)
		user.LastName = strings.TrimSpace(up.LastName)
		user.Username = up.Username
		user.UpdatedAt = s.NowFunc()

		return tx.UpdateUser(&user)
	})
	if err != nil {
		if errors.Is(err, errorz.ErrConstraintViolated) {
			return User{}, ErrDuplicateUser
		}
		return User{}, err
	}

	return user, nil
}

// UsernameAvailable reports whether no user has claimed the username.
func (s *Service) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	users, err := s.store.FindUsers(ctx, &UserFilter{Usernames: []string{username}})
	if err != nil {
		return false, err
	}

	return len(users) == 0, nil
}

// EmailAvailable reports whether no user has claimed the email address.
func (s *Service) EmailAvailable(ctx context.Context, addr email.Address) (bool, error) {
	users, err := s.store.FindUsers(ctx, &UserFilter{Emails: []email.Address{addr}})
	if err != nil {
		return false, err
	}

	return len(users) == 0, nil
}

// UserByID returns the user with the provided ID or errorz.ErrNotFound.
func (s *Service) UserByID(ctx context.Context, id uuid.UUID) (User, error) {
	users, err := s.store.FindUsers(ctx, &UserFilter{IDs: []uuid.UUID{id}})
	if err != nil {
		return User{}, err
	}

	if len(users) != 1 {
		return User{}, errorz.ErrNotFound
	}

	return users[0], nil
}

// sendAsync runs f on a worker goroutine. Email delivery should not
// delay or fail the request that triggered it, failures are reported to
// the error handler instead.
func (s *Service) sendAsync(f func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerTimeout)
		defer cancel()

		if err := f(wCtx); err != nil {
			s.errHandler(err)
		}
	}()
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	err = f(tx)
	if err != nil {
		rBackErr := tx.Rollback()
		if rBackErr != nil {
			err = errors.Join(err, rBackErr)
		}
		return err
	}

	err = tx.Commit()
	if err != nil {
		return err
	}

	return nil
}

func expiryText(d time.Duration) string {
	return fmt.Sprintf("%d minutes", int(d.Minutes()))
}

func ptr[T any](v T) *T {
	return &v
}
