package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/taskward/taskward/internal/db"
	"github.com/taskward/taskward/internal/errorz"
	"github.com/taskward/taskward/internal/tasks"
)

type execFunc func(query string, params ...any) (sql.Result, error)
type queryFunc func(query string, params ...any) (*sql.Rows, error)

func insertTask(q db.Query, ef execFunc, task *tasks.Task) error {
	if task.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	q.Unsafe(`INSERT INTO tasks (id, user_id, title, description, due_at, status, created_at, updated_at) VALUES (`)
	q.Params(
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		task.DueAt,
		string(task.Status),
		task.CreatedAt,
		task.UpdatedAt,
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

func updateTask(q db.Query, ef execFunc, task *tasks.Task) error {
	q.Unsafe(`UPDATE tasks SET `)

	q.Unsafe(`title = `)
	q.Param(task.Title)

	q.Unsafe(`, description = `)
	q.Param(task.Description)

	q.Unsafe(`, due_at = `)
	q.Param(task.DueAt)

	q.Unsafe(`, status = `)
	q.Param(string(task.Status))

	q.Unsafe(`, updated_at = `)
	q.Param(task.UpdatedAt)

	q.Unsafe(` WHERE id = `)
	q.Param(task.ID)

	q.Unsafe(` AND user_id = `)
	q.Param(task.UserID)

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
		return fmt.Errorf("task not found: %w", errorz.ErrNotFound)
	}

	return nil
}

func deleteTask(q db.Query, ef execFunc, id uuid.UUID) error {
	q.Unsafe(`DELETE FROM tasks WHERE id = `)
	q.Param(id)

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
		return fmt.Errorf("task not found: %w", errorz.ErrNotFound)
	}

	return nil
}

func selectTasks(q db.Query, qf queryFunc, f *tasks.TaskFilter) ([]tasks.Task, error) {
	q.Unsafe(`SELECT id, user_id, title, description, due_at, status, created_at, updated_at FROM tasks WHERE 1=1 `)

	if len(f.IDs) > 0 {
		q.Unsafe(`AND id IN (`)
		q.Params(anySlice(f.IDs)...)
		q.Unsafe(`) `)
	}

	if len(f.UserIDs) > 0 {
		q.Unsafe(`AND user_id IN (`)
		q.Params(anySlice(f.UserIDs)...)
		q.Unsafe(`) `)
	}

	if len(f.Statuses) > 0 {
		q.Unsafe(`AND status IN (`)
		q.Params(anySlice(f.Statuses)...)
		q.Unsafe(`) `)
	}

	q.Unsafe(`ORDER BY created_at DESC`)

	s, params, err := q.Get()
	if err != nil {
		return nil, err
	}

	rows, err := qf(s, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]tasks.Task, 0)
	for rows.Next() {
		var (
			task  tasks.Task
			dueAt sql.NullTime
		)

		err := rows.Scan(
			&task.ID,
			&task.UserID,
			&task.Title,
			&task.Description,
			&dueAt,
			&task.Status,
			&task.CreatedAt,
			&task.UpdatedAt,
		)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}

		if dueAt.Valid {
			t := dueAt.Time
			task.DueAt = &t
		}

		out = append(out, task)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func anySlice[T any](s []T) []any {
	out := make([]any, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}
