package tasks

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taskward/taskward/internal/errorz"
)

// Service provides the rules for managing tasks. Every operation is
// scoped to the owning user, a task of another user behaves exactly
// like a task that does not exist.
type Service struct {
	store Store

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store:   store,
		NowFunc: time.Now,
	}
}

// Create creates a new pending task for the user.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, input TaskInput) (Task, error) {
	if err := input.Validate(); err != nil {
		return Task{}, err
	}

	now := s.NowFunc()
	task := Task{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		DueAt:       input.DueAt,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.inTx(ctx, func(tx Tx) error {
		return tx.CreateTask(&task)
	})
	if err != nil {
		return Task{}, err
	}

	return task, nil
}

// Update replaces the user provided fields of a task.
func (s *Service) Update(ctx context.Context, userID, taskID uuid.UUID, input TaskInput) (Task, error) {
	if err := input.Validate(); err != nil {
		return Task{}, err
	}

	var task Task
	err := s.inTx(ctx, func(tx Tx) error {
		var txErr error
		task, txErr = findOwnedTask(tx, userID, taskID)
		if txErr != nil {
			return txErr
		}

		task.Title = strings.TrimSpace(input.Title)
		task.Description = input.Description
		task.DueAt = input.DueAt
		task.UpdatedAt = s.NowFunc()

		return tx.UpdateTask(&task)
	})
	if err != nil {
		return Task{}, err
	}

	return task, nil
}

// Toggle flips a task between pending and completed.
func (s *Service) Toggle(ctx context.Context, userID, taskID uuid.UUID) (Task, error) {
	var task Task
	err := s.inTx(ctx, func(tx Tx) error {
		var txErr error
		task, txErr = findOwnedTask(tx, userID, taskID)
		if txErr != nil {
			return txErr
		}

		if task.Status == StatusPending {
			task.Status = StatusCompleted
		} else {
			task.Status = StatusPending
		}
		task.UpdatedAt = s.NowFunc()

		return tx.UpdateTask(&task)
	})
	if err != nil {
		return Task{}, err
	}

	return task, nil
}

// Delete removes a task.
func (s *Service) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	return s.inTx(ctx, func(tx Tx) error {
		task, txErr := findOwnedTask(tx, userID, taskID)
		if txErr != nil {
			return txErr
		}

		return tx.DeleteTask(task.ID)
	})
}

// TaskByID returns a single task of the user or errorz.ErrNotFound.
func (s *Service) TaskByID(ctx context.Context, userID, taskID uuid.UUID) (Task, error) {
	found, err := s.store.FindTasks(ctx, &TaskFilter{
		IDs:     []uuid.UUID{taskID},
		UserIDs: []uuid.UUID{userID},
	})
	if err != nil {
		return Task{}, err
	}

	if len(found) != 1 {
		return Task{}, errorz.ErrNotFound
	}

	return found[0], nil
}

// List returns all tasks of the user, optionally narrowed to a status.
func (s *Service) List(ctx context.Context, userID uuid.UUID, statuses ...Status) ([]Task, error) {
	return s.store.FindTasks(ctx, &TaskFilter{
		UserIDs:  []uuid.UUID{userID},
		Statuses: statuses,
	})
}

// Stats summarizes the tasks of the user for the dashboard.
func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (Stats, error) {
	found, err := s.store.FindTasks(ctx, &TaskFilter{
		UserIDs: []uuid.UUID{userID},
	})
	if err != nil {
		return Stats{}, err
	}

	now := s.NowFunc()

	var stats Stats
	stats.Total = len(found)
	for _, task := range found {
		if task.Status == StatusCompleted {
			stats.Completed++
			continue
		}

		if task.DueAt != nil && now.Sub(*task.DueAt) >= OverdueWindow {
			stats.Overdue++
			continue
		}

		stats.Active++
	}

	return stats, nil
}

func findOwnedTask(tx Tx, userID, taskID uuid.UUID) (Task, error) {
	found, err := tx.FindTasks(&TaskFilter{
		IDs:     []uuid.UUID{taskID},
		UserIDs: []uuid.UUID{userID},
	})
	if err != nil {
		return Task{}, err
	}

	if len(found) != 1 {
		return Task{}, errorz.ErrNotFound
	}

	return found[0], nil
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
