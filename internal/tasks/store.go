package tasks

import (
	"context"

	"github.com/google/uuid"
)

// TaskFilter is used to filter tasks.
// Returned tasks must match all the provided fields.
// If a field is empty or nil, it's ignored.
type TaskFilter struct {
	IDs      []uuid.UUID
	UserIDs  []uuid.UUID
	Statuses []Status
}

// Store provides access to the task store.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
	FindTasks(ctx context.Context, filter *TaskFilter) ([]Task, error)
}

// Tx is a transaction. If an error occurs on any of the methods, the
// transaction is considered to have failed and should be rolled back.
// Tx is not safe for concurrent use.
type Tx interface {
	Commit() error
	Rollback() error

	CreateTask(t *Task) error
	UpdateTask(t *Task) error
	DeleteTask(id uuid.UUID) error
	FindTasks(filter *TaskFilter) ([]Task, error)
}
