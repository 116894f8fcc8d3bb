package tasks

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taskward/taskward/internal/errorz"
)

// OverdueWindow is how long a pending task may be past its due date
// before it counts as overdue instead of active.
const OverdueWindow = 24 * time.Hour

const maxTitleBytes = 200

var (
	ErrInvalidStatus = errors.New("invalid status")
	ErrMissingTitle  = errors.New("title is required")
	ErrTitleTooLong  = errors.New("title is too long")
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ParseStatus parses a status submitted by a user.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending, StatusCompleted:
		return Status(raw), nil
	default:
		return "", ErrInvalidStatus
	}
}

// Task contains the data for a single task. Tasks always belong to
// exactly one user.
type Task struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Title       string
	Description string
	DueAt       *time.Time
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Stats summarizes the tasks of a single user for the dashboard.
//
// A pending task past its due date stays active for OverdueWindow
// before it moves to the overdue bucket.
type Stats struct {
	Total     int
	Active    int
	Completed int
	Overdue   int
}

// TaskInput is the user provided part of a task.
type TaskInput struct {
	Title       string
	Description string
	DueAt       *time.Time
}

func (i TaskInput) Validate() error {
	var errs errorz.InvalidInput

	title := strings.TrimSpace(i.Title)
	if title == "" {
		errs = append(errs, errorz.Keyed{Key: "title", Err: ErrMissingTitle})
	} else if len(title) > maxTitleBytes {
		errs = append(errs, errorz.Keyed{Key: "title", Err: ErrTitleTooLong})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}
