package db

import (
	"context"
	"database/sql"

	"github.com/taskward/taskward/internal/db"
	"github.com/taskward/taskward/internal/tasks"
)

// Store is responsible for interacting with a database.
//
// Reads outside of transactions go to readDB, transactions are started
// on writeDB. The two may be the same database handle.
type Store struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

// New creates a new Store.
func New(readDB, writeDB *sql.DB) *Store {
	return &Store{
		readDB:  readDB,
		writeDB: writeDB,
	}
}

func (s *Store) newQuery() db.Query {
	return db.Query{}
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (tasks.Tx, error) {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{
		tx:    tx,
		store: s,
	}, nil
}

// FindTasks queries for tasks without a transaction.
func (s *Store) FindTasks(ctx context.Context, filter *tasks.TaskFilter) ([]tasks.Task, error) {
	qf := func(query string, params ...any) (*sql.Rows, error) {
		return s.readDB.QueryContext(ctx, query, params...)
	}

	return selectTasks(s.newQuery(), qf, filter)
}
