package krypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	variant = "argon2id"

	saltLen = 16
	keyLen  = 32

	// Parameters below are based on the OWASP recommendations for argon2id.
	defaultMemoryKiB   = 47104
	defaultIterations  = 1
	defaultParallelism = 1
)

// ErrInvalidInput indicates the input could not be hashed or parsed.
var ErrInvalidInput = errors.New("invalid input")

// Argon2Hash is the parsed representation of an argon2 hash in PHC string
// format:
//
//	$argon2id$v=19$m=47104,t=1,p=1$<base64 salt>$<base64 hash>
//
// The struct keeps the parameters alongside the hash so values hashed with
// older parameters can still be verified after the defaults change.
type Argon2Hash struct {
	Variant     string
	Version     int
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	Salt        []byte
	Hash        []byte
}

// HashArgon2 hashes data using the argon2id algorithm with a random salt.
func HashArgon2(data []byte) (Argon2Hash, error) {
	salt, err := genRandomBytes(saltLen)
	if err != nil {
		return Argon2Hash{}, err
	}

	return hashWithSalt(data, salt)
}

// HashArgon2WithKey hashes data using the argon2id algorithm with the key
// as salt. The same data and key always produce the same hash, which makes
// the result usable as a blind index for lookups on encrypted columns.
func HashArgon2WithKey(data []byte, key Key) (Argon2Hash, error) {
	return hashWithSalt(data, key.SecretValue())
}

func hashWithSalt(data, salt []byte) (Argon2Hash, error) {
	if len(data) == 0 {
		return Argon2Hash{}, fmt.Errorf("no data to hash: %w", ErrInvalidInput)
	}

	hash := argon2.IDKey(data, salt, defaultIterations, defaultMemoryKiB, defaultParallelism, keyLen)

	return Argon2Hash{
		Variant:     variant,
		Version:     argon2.Version,
		MemoryKiB:   defaultMemoryKiB,
		Iterations:  defaultIterations,
		Parallelism: defaultParallelism,
		Salt:        salt,
		Hash:        hash,
	}, nil
}

// ParseArgon2Hash parses a hash in the PHC string format described on the
// Argon2Hash type.
func ParseArgon2Hash(raw string) (Argon2Hash, error) {
	parts := strings.Split(raw, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Argon2Hash{}, fmt.Errorf("malformed hash: %w", ErrInvalidInput)
	}

	if parts[1] != variant {
		return Argon2Hash{}, fmt.Errorf("unsupported variant %q: %w", parts[1], ErrInvalidInput)
	}

	h := Argon2Hash{
		Variant: parts[1],
	}

	version, err := numericField(parts[2], "v")
	if err != nil {
		return Argon2Hash{}, err
	}

	h.Version = int(version)
	if h.Version != argon2.Version {
		return Argon2Hash{}, fmt.Errorf("unsupported version %d: %w", h.Version, ErrInvalidInput)
	}

	params := strings.Split(parts[3], ",")
	if len(params) != 3 {
		return Argon2Hash{}, fmt.Errorf("malformed parameters: %w", ErrInvalidInput)
	}

	memory, err := numericField(params[0], "m")
	if err != nil {
		return Argon2Hash{}, err
	}
	h.MemoryKiB = uint32(memory)

	iterations, err := numericField(params[1], "t")
	if err != nil {
		return Argon2Hash{}, err
	}
	h.Iterations = uint32(iterations)

	parallelism, err := numericField(params[2], "p")
	if err != nil {
		return Argon2Hash{}, err
	}
	h.Parallelism = uint8(parallelism)

	h.Salt, err = base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("malformed salt: %w", ErrInvalidInput)
	}

	h.Hash, err = base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("malformed hash data: %w", ErrInvalidInput)
	}

	return h, nil
}

func numericField(field, wantKey string) (uint64, error) {
	key, value, found := strings.Cut(field, "=")
	if !found || key != wantKey {
		return 0, fmt.Errorf("missing field %q: %w", wantKey, ErrInvalidInput)
	}

	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("non-numeric field %q: %w", wantKey, ErrInvalidInput)
	}

	return n, nil
}

// MatchBytes reports whether data hashes to h using the parameters stored
// in h. The comparison is constant-time.
func (h Argon2Hash) MatchBytes(data []byte) bool {
	other := argon2.IDKey(data, h.Salt, h.Iterations, h.MemoryKiB, h.Parallelism, uint32(len(h.Hash)))
	return subtle.ConstantTimeCompare(h.Hash, other) == 1
}

// String returns the hash in PHC string format.
func (h Argon2Hash) String() string {
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		h.Variant,
		h.Version,
		h.MemoryKiB,
		h.Iterations,
		h.Parallelism,
		base64.RawStdEncoding.EncodeToString(h.Salt),
		base64.RawStdEncoding.EncodeToString(h.Hash),
	)
}

func (h Argon2Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Argon2Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseArgon2Hash(string(text))
	if err != nil {
		return err
	}

	*h = parsed
	return nil
}

// Scan implements sql.Scanner so hashes can be read directly from
// database columns.
func (h *Argon2Hash) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return h.UnmarshalText([]byte(v))
	case []byte:
		return h.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into Argon2Hash: %w", src, ErrInvalidInput)
	}
}

func genRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}
