package db_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/taskward/taskward/internal/auth"
	"github.com/taskward/taskward/internal/auth/db"
	"github.com/taskward/taskward/internal/db/testdb"
	"github.com/taskward/taskward/internal/email"
	"github.com/taskward/taskward/internal/errorz"
	"github.com/taskward/taskward/internal/krypto"
)

func Test_Tx_CreateAndFindUser(t *testing.T) {
	t.Run("ok, create and find user", func(t *testing.T) {
		store := storeForTest(t)

		tx, err := store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}

		user := testUser(t, nil)

		err = tx.CreateUser(&user)
		if err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		// The encrypted email column is only reachable via the blind index.
		found, err := tx.FindUsers(&auth.UserFilter{
			Emails: []email.Address{user.Email},
		})
		if err != nil {
			t.Fatalf("failed to find users: %v", err)
		}

		if len(found) != 1 {
			t.Fatalf("expected 1 user, got %d", len(found))
		}

		if !reflect.DeepEqual(found[0], user) {
			t.Errorf("got\n%#v\nwant\n%#v\n", found[0], user)
		}

		err = tx.Commit()
		if err != nil {
			t.Fatalf("failed to commit tx: %v", err)
		}
	})

	t.Run("ok, nullable fields roundtrip", func(t *testing.T) {
		store := storeForTest(t)

		tx, err := store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}

		otpHash := argon2Hash(t, "$argon2id$v=19$m=47104,t=1,p=1$CkX5zzYLJMWm0y/17eScyw$Qfah+NewdsdeF0+iV72mShZhRO93Qwzdj17TUZCH6ZU")
		digest := "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae"

		user := testUser(t, func(u *auth.User) {
			u.OTPHash = &otpHash
			u.OTPExpiresAt = ptr(now(t, 2))
			u.ResetTokenDigest = &digest
			u.ResetExpiresAt = ptr(now(t, 3))
		})

		err = tx.CreateUser(&user)
		if err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		found, err := tx.FindUsers(&auth.UserFilter{
			ResetTokenDigests: []string{digest},
		})
		if err != nil {
			t.Fatalf("failed to find users: %v", err)
		}

		if len(found) != 1 {
			t.Fatalf("expected 1 user, got %d", len(found))
		}

		if !reflect.DeepEqual(found[0], user) {
			t.Errorf("got\n%#v\nwant\n%#v\n", found[0], user)
		}
	})

	t.Run("fail, duplicate username", func(t *testing.T) {
		store := storeForTest(t)

		tx, err := store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}

		user := testUser(t, nil)
		err = tx.CreateUser(&user)
		if err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		dup := testUser(t, func(u *auth.User) {
			u.ID = uuid.New()
			u.Email = "other@example.com"
		})

		err = tx.CreateUser(&dup)
		if !errors.Is(err, errorz.ErrConstraintViolated) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrConstraintViolated, err)
		}
	})

	t.Run("fail, zero uuid", func(t *testing.T) {
		store := storeForTest(t)

		tx, err := store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}

		user := testUser(t, func(u *auth.User) {
			u.ID = uuid.Nil
		})

		err = tx.CreateUser(&user)
		if !errors.Is(err, errorz.ErrConstraintViolated) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrConstraintViolated, err)
		}
	})
}

func Test_Tx_UpdateUser(t *testing.T) {
	t.Run("ok, update user", func(t *testing.T) {
		store := storeForTest(t)

		tx, err := store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}

		user := testUser(t, nil)
		err = tx.CreateUser(&user)
		if err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		user.IsVerified = true
		user.Email = "jacob@example.com"
		user.UpdatedAt = now(t, 1)

		err = tx.UpdateUser(&user)
		if err != nil {
			t.Fatalf("failed to update user: %v", err)
		}

		found, err := tx.FindUsers(&auth.UserFilter{
			IDs: []uuid.UUID{user.ID},
		})
		if err != nil {
			t.Fatalf("failed to find users: %v", err)
		}

		if len(found) != 1 {
			t.Fatalf("expected 1 user, got %d", len(found))
		}

		if !reflect.DeepEqual(found[0], user) {
			t.Errorf("got\n%#v\nwant\n%#v\n", found[0], user)
		}
	})

	t.Run("fail, user does not exist", func(t *testing.T) {
		store := storeForTest(t)

		tx, err := store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}

		user := testUser(t, nil)

		err = tx.UpdateUser(&user)
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
		}
	})
}

func Test_Store_FindUsers(t *testing.T) {
	t.Run("ok, filter by verified", func(t *testing.T) {
		store := storeForTest(t)

		tx, err := store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}

		unverified := testUser(t, nil)
		err = tx.CreateUser(&unverified)
		if err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		verified := testUser(t, func(u *auth.User) {
			u.ID = uuid.New()
			u.Username = "jacob"
			u.Email = "jacob@example.com"
			u.IsVerified = true
			u.CreatedAt = now(t, 1)
			u.UpdatedAt = now(t, 1)
		})
		err = tx.CreateUser(&verified)
		if err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		err = tx.Commit()
		if err != nil {
			t.Fatalf("failed to commit tx: %v", err)
		}

		found, err := store.FindUsers(context.Background(), &auth.UserFilter{
			IsVerified: ptr(true),
		})
		if err != nil {
			t.Fatalf("failed to find users: %v", err)
		}

		if len(found) != 1 || found[0].ID != verified.ID {
			t.Fatalf("expected only the verified user, got %+v", found)
		}
	})

	t.Run("ok, no match returns empty slice", func(t *testing.T) {
		store := storeForTest(t)

		found, err := store.FindUsers(context.Background(), &auth.UserFilter{
			Usernames: []string{"nobody"},
		})
		if err != nil {
			t.Fatalf("failed to find users: %v", err)
		}

		if len(found) != 0 {
			t.Fatalf("expected 0 users, got %d", len(found))
		}
	})
}

func now(t *testing.T, i int) time.Time {
	t.Helper()
	if i > 9 {
		t.Fatalf("invalid time index: %d", i)
	}

	ts, err := time.Parse(time.RFC3339, "2021-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("failed to parse time: %v", err)
	}

	return ts.Add(time.Duration(i) * time.Second)
}

func storeForTest(t *testing.T) *db.Store {
	t.Helper()

	encryptor, err := krypto.NewEncryptor([]krypto.Key{
		mustKey(t, "2b671594b775f371eab4050b4d58326682df6b1a6cc2e886717b1a26b4d6c45d"),
	})
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}

	testDB := testdb.RunWhile(t, true)

	return db.New(testDB, testDB, encryptor, mustKey(t, "90303dfed7994260ea4817a5ca8a392915cd401115b2f97495dadfcbcd14adbf"))
}

func mustKey(t *testing.T, raw string) krypto.Key {
	t.Helper()

	key, err := krypto.ParseKey(raw)
	if err != nil {
		t.Fatalf("failed to parse key: %v", err)
	}

	return key
}

func argon2Hash(t *testing.T, raw string) krypto.Argon2Hash {
	t.Helper()

	hash, err := krypto.ParseArgon2Hash(raw)
	if err != nil {
		t.Fatalf("failed to parse hash: %v", err)
	}

	return hash
}

func testUser(t *testing.T, modFunc func(*auth.User)) auth.User {
	t.Helper()

	u := auth.User{
		ID:           uuid.MustParse("6e9eb4f0-39f5-42a3-96a5-2b2b1c4a3a7d"),
		Username:     "alice",
		FirstName:    "Alice",
		LastName:     "Smith",
		Email:        "alice@example.com",
		PasswordHash: argon2Hash(t, "$argon2id$v=19$m=47104,t=1,p=1$vP9U4C5jsOzFQLj0gvUkYw$YLrSb2dGfcVohlm8syynqHs6/NHxXS9rt/t6TjL7pi0"),
		IsVerified:   false,
		PhotoPath:    auth.DefaultPhotoPath,
		CreatedAt:    now(t, 0),
		UpdatedAt:    now(t, 0),
	}

	if modFunc != nil {
		modFunc(&u)
	}

	return u
}

func ptr[T any](v T) *T {
	return &v
}
