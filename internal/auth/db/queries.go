package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/taskward/taskward/internal/auth"
	"github.com/taskward/taskward/internal/db"
	"github.com/taskward/taskward/internal/email"
	"github.com/taskward/taskward/internal/errorz"
	"github.com/taskward/taskward/internal/krypto"
)

type execFunc func(query string, params ...any) (sql.Result, error)
type queryFunc func(query string, params ...any) (*sql.Rows, error)

func insertUser(q db.Query, ef execFunc, u *auth.User) error {
	if u.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	q.Unsafe(`INSERT INTO users (id, username, first_name, last_name, email_encrypted, email_blind_index, password_hash, is_verified, otp_hash, otp_expires_at, reset_token_digest, reset_expires_at, photo_path, created_at, updated_at) VALUES (`)
	q.Params(u.ID, u.Username, u.FirstName, u.LastName)
	q.Unsafe(`, `)
	q.ParamEncrypted([]byte(u.Email))
	q.Unsafe(`, `)
	q.ParamBlindIndex([]byte(u.Email))
	q.Unsafe(`, `)
	q.Params(
		u.PasswordHash.String(),
		u.IsVerified,
		hashParam(u.OTPHash),
		u.OTPExpiresAt,
		u.ResetTokenDigest,
		u.ResetExpiresAt,
		u.PhotoPath,
		u.CreatedAt,
		u.UpdatedAt,
	)
	q.Unsafe(`)`)

	s, params, err := q.Get()
	if err != nil {
		return err
	}

	_, err = ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func updateUser(q db.Query, ef execFunc, u *auth.User) error {
	q.Unsafe(`UPDATE users SET `)

	q.Unsafe(`username = `)
	q.Param(u.Username)

	q.Unsafe(`, first_name = `)
	q.Param(u.FirstName)

	q.Unsafe(`, last_name = `)
	q.Param(u.LastName)

	q.Unsafe(`, email_encrypted = `)
	q.ParamEncrypted([]byte(u.Email))

	q.Unsafe(`, email_blind_index = `)
	q.ParamBlindIndex([]byte(u.Email))

	q.Unsafe(`, password_hash = `)
	q.Param(u.PasswordHash.String())

	q.Unsafe(`, is_verified = `)
	q.Param(u.IsVerified)

	q.Unsafe(`, otp_hash = `)
	q.Param(hashParam(u.OTPHash))

	q.Unsafe(`, otp_expires_at = `)
	q.Param(u.OTPExpiresAt)

	q.Unsafe(`, reset_token_digest = `)
	q.Param(u.ResetTokenDigest)

	q.Unsafe(`, reset_expires_at = `)
	q.Param(u.ResetExpiresAt)

	q.Unsafe(`, photo_path = `)
	q.Param(u.PhotoPath)

	q.Unsafe(`, created_at = `)
	q.Param(u.CreatedAt)

	q.Unsafe(`, updated_at = `)
	q.Param(u.UpdatedAt)

	q.Unsafe(` WHERE id = `)
	q.Params(u.ID)

	s, params, err := q.Get()
	if err != nil {
		return err
	}

	result, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if rows == 0 {
		return fmt.Errorf("user not found: %w", errorz.ErrNotFound)
	}

	return nil
}

func selectUsers(q db.Query, qf queryFunc, f *auth.UserFilter) ([]auth.User, error) {
	q.Unsafe(`SELECT id, username, first_name, last_name, email_encrypted, password_hash, is_verified, otp_hash, otp_expires_at, reset_token_digest, reset_expires_at, photo_path, created_at, updated_at FROM users WHERE 1=1 `)

	if len(f.IDs) > 0 {
		q.Unsafe(`AND id IN (`)
		q.Params(anySlice(f.IDs)...)
		q.Unsafe(`) `)
	}

	if len(f.Usernames) > 0 {
		q.Unsafe(`AND username IN (`)
		q.Params(anySlice(f.Usernames)...)
		q.Unsafe(`) `)
	}

	if len(f.Emails) > 0 {
		q.Unsafe(`AND email_blind_index IN (`)
		for i, addr := range f.Emails {
			if i > 0 {
				q.Unsafe(`, `)
			}
			q.ParamBlindIndex([]byte(addr))
		}
		q.Unsafe(`) `)
	}

	if f.IsVerified != nil {
		q.Unsafe(`AND is_verified = `)
		q.Param(f.IsVerified)
		q.Unsafe(` `)
	}

	if len(f.ResetTokenDigests) > 0 {
		q.Unsafe(`AND reset_token_digest IN (`)
		q.Params(anySlice(f.ResetTokenDigests)...)
		q.Unsafe(`) `)
	}

	q.Unsafe(`ORDER BY created_at ASC`)

	s, params, err := q.Get()
	if err != nil {
		return nil, err
	}

	rows, err := qf(s, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]auth.User, 0)
	for rows.Next() {
		u, err := scanUser(q, rows)
		if err != nil {
			return nil, err
		}

		out = append(out, u)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func scanUser(q db.Query, rows *sql.Rows) (auth.User, error) {
	var (
		u           auth.User
		otpHash     sql.NullString
		otpExpires  sql.NullTime
		resetDigest sql.NullString
		resetExpire sql.NullTime
	)

	emailBytes := q.DecryptionTarget()
	err := rows.Scan(
		&u.ID,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		emailBytes,
		&u.PasswordHash,
		&u.IsVerified,
		&otpHash,
		&otpExpires,
		&resetDigest,
		&resetExpire,
		&u.PhotoPath,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return auth.User{}, errorz.MapDBErr(err)
	}

	u.Email, err = email.ParseAddress(string(emailBytes.Data))
	if err != nil {
		return auth.User{}, err
	}

	if otpHash.Valid {
		hash, err := krypto.ParseArgon2Hash(otpHash.String)
		if err != nil {
			return auth.User{}, err
		}
		u.OTPHash = &hash
	}

	if otpExpires.Valid {
		t := otpExpires.Time
		u.OTPExpiresAt = &t
	}

	if resetDigest.Valid {
		d := resetDigest.String
		u.ResetTokenDigest = &d
	}

	if resetExpire.Valid {
		t := resetExpire.Time
		u.ResetExpiresAt = &t
	}

	return u, nil
}

func hashParam(h *krypto.Argon2Hash) any {
	if h == nil {
		return nil
	}
	return h.String()
}

func anySlice[T any](s []T) []any {
	out := make([]any, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}
