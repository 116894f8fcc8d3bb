package db

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/taskward/taskward/internal/tasks"
)

type Tx struct {
	tx    *sql.Tx
	store *Store
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// CreateTask creates a task in the database.
func (t *Tx) CreateTask(task *tasks.Task) error {
	return insertTask(t.store.newQuery(), t.tx.Exec, task)
}

// UpdateTask updates a task in the database.
// It returns errorz.ErrNotFound if no task is found.
func (t *Tx) UpdateTask(task *tasks.Task) error {
	return updateTask(t.store.newQuery(), t.tx.Exec, task)
}

// DeleteTask removes a task from the database.
// It returns errorz.ErrNotFound if no task is found.
func (t *Tx) DeleteTask(id uuid.UUID) error {
	return deleteTask(t.store.newQuery(), t.tx.Exec, id)
}

// FindTasks queries for tasks based on the provided filter.
// It returns an empty slice if no tasks are found.
func (t *Tx) FindTasks(filter *tasks.TaskFilter) ([]tasks.Task, error) {
	return selectTasks(t.store.newQuery(), t.tx.Query, filter)
}
