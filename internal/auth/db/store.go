package db

import (
	"context"
	"database/sql"

	"github.com/taskward/taskward/internal/auth"
	"github.com/taskward/taskward/internal/db"
	"github.com/taskward/taskward/internal/krypto"
)

// Store is responsible for interacting with a database.
//
// Reads outside of transactions go to readDB, transactions are started
// on writeDB. The two may be the same database handle.
type Store struct {
	readDB        *sql.DB
	writeDB       *sql.DB
	encryptor     *krypto.Encryptor
	blindIndexKey krypto.Key
}

// New creates a new Store.
func New(readDB, writeDB *sql.DB, encryptor *krypto.Encryptor, blindIndexKey krypto.Key) *Store {
	return &Store{
		readDB:        readDB,
		writeDB:       writeDB,
		encryptor:     encryptor,
		blindIndexKey: blindIndexKey,
	}
}

func (s *Store) newQuery() db.Query {
	return db.Query{
		Encryptor:     s.encryptor,
		BlindIndexKey: s.blindIndexKey,
	}
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (auth.Tx, error) {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{
		tx:    tx,
		store: s,
	}, nil
}

// FindUsers queries for users without a transaction.
func (s *Store) FindUsers(ctx context.Context, filter *auth.UserFilter) ([]auth.User, error) {
	qf := func(query string, params ...any) (*sql.Rows, error) {
		return s.readDB.QueryContext(ctx, query, params...)
	}

	return selectUsers(s.newQuery(), qf, filter)
}
