package krypto

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
)

const otpDigits = 6

var ErrInvalidOTP = errors.New("invalid one-time code")

// otpRange is the number of possible codes, the generated codes are
// uniformly distributed over [100000, 999999].
var otpRange = big.NewInt(900000)

// OTP is a 6 digit numeric one-time code. It is sent via email to prove
// control of an address.
//
// Like a Token, the plaintext code only leaves the process inside the
// email to the user. Everywhere else the code is hashed or redacted.
type OTP string

// GenerateOTP creates a new random code using a cryptographically secure
// random source.
func GenerateOTP() (OTP, error) {
	n, err := rand.Int(rand.Reader, otpRange)
	if err != nil {
		return "", err
	}

	code := n.Int64() + 100000

	buf := make([]byte, otpDigits)
	for i := otpDigits - 1; i >= 0; i-- {
		buf[i] = byte('0' + code%10)
		code /= 10
	}

	return OTP(buf), nil
}

// ParseOTP parses a code submitted by a user.
func ParseOTP(raw string) (OTP, error) {
	if len(raw) != otpDigits {
		return "", ErrInvalidOTP
	}

	for _, c := range raw {
		if c < '0' || c > '9' {
			return "", ErrInvalidOTP
		}
	}

	return OTP(raw), nil
}

// String returns the code itself, it is needed to embed the code in
// emails.
func (o OTP) String() string {
	return string(o)
}

// Hash hashes the code using the argon2id algorithm.
func (o OTP) Hash() (Argon2Hash, error) {
	return HashArgon2([]byte(o))
}

// Match checks if the code matches the given hash.
func (o OTP) Match(h Argon2Hash) bool {
	return h.MatchBytes([]byte(o))
}

// LogValue implements the slog.Valuer interface.
func (o OTP) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}

func (o *OTP) UnmarshalText(text []byte) error {
	parsed, err := ParseOTP(string(text))
	if err != nil {
		return err
	}

	*o = parsed
	return nil
}
