package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/taskward/taskward/internal/errorz"
	"github.com/taskward/taskward/internal/tasks"
)

const (
	flashTaskCreated = "Task created."
	flashTaskUpdated = "Task updated."
	flashTaskDeleted = "Task deleted."
)

// dueAtLayout is the format used by datetime-local form inputs.
const dueAtLayout = "2006-01-02T15:04"

// taskForm is the HTML form representation of a task.
type taskForm struct {
	Title       string
	Description string
	DueAt       string
}

func (f taskForm) taskInput() (tasks.TaskInput, error) {
	in := tasks.TaskInput{
		Title:       f.Title,
		Description: f.Description,
	}

	if f.DueAt != "" {
		due, err := time.Parse(dueAtLayout, f.DueAt)
		if err != nil {
			return in, errorz.InvalidInput{
				errorz.Keyed{Key: "DueAt", Err: err},
			}
		}
		in.DueAt = &due
	}

	return in, nil
}

func (s *Server) taskRoutes() {
	// Task list with the dashboard counters.
	{
		const route = "GET /tasks"
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := userFromCtx(r.Context())
			if err != nil {
				s.handleError(w, r, err)
				return
			}

			list, err := s.deps.TaskService.List(r.Context(), user.ID)
			if err != nil {
				s.handleError(w, r, err)
				return
			}

			stats, err := s.deps.TaskService.Stats(r.Context(), user.ID)
			if err != nil {
				s.handleError(w, r, err)
				return
			}

			err = s.writeView(w, r, "tasks", struct {
				Tasks []tasks.Task
				Stats tasks.Stats
			}{
				Tasks: list,
				Stats: stats,
			})
			if err != nil {
				s.handleError(w, r, err)
				return
			}
		})

		s.loggedIn(route, h)
	}

	s.loggedIn("GET /tasks/new", s.staticHandler("task-form"))

	{
		const route = "POST /tasks"
		h := newHandler(s, func(ctx context.Context, f taskForm) (tasks.Task, error) {
			user, err := userFromCtx(ctx)
			if err != nil {
				return tasks.Task{}, err
			}

			in, err := f.taskInput()
			if err != nil {
				return tasks.Task{}, err
			}

			return s.deps.TaskService.Create(ctx, user.ID, in)
		})
		h.onSuccess(func(r result[taskForm, tasks.Task]) error {
			return r.s.flashAndRedirect(r.w, r.r, r.sess, flashTaskCreated, "/tasks")
		})
		h.onFail(func(sh shared, err error) {
			if isInvalidInput(err) {
				s.failFlash(sh, flashBadInput, "/tasks/new")
				return
			}
			s.handleError(sh.w, sh.r, err)
		})

		s.loggedIn(route, h)
	}

	{
		const route = "GET /tasks/{id}/edit"
		h := newHandler(s, func(ctx context.Context, taskID uuid.UUID) (tasks.Task, error) {
			user, err := userFromCtx(ctx)
			if err != nil {
				return tasks.Task{}, err
			}

			return s.deps.TaskService.TaskByID(ctx, user.ID, taskID)
		})
		h.request(taskIDFromPath)
		h.onSuccess(func(r result[uuid.UUID, tasks.Task]) error {
			return r.s.writeView(r.w, r.r, "task-form", r.out)
		})

		s.loggedIn(route, h)
	}

	{
		const route = "POST /tasks/{id}"

		type taskUpdate struct {
			id   uuid.UUID
			form taskForm
		}

		h := newHandler(s, func(ctx context.Context, up taskUpdate) (tasks.Task, error) {
			user, err := userFromCtx(ctx)
			if err != nil {
				return tasks.Task{}, err
			}

			in, err := up.form.taskInput()
			if err != nil {
				return tasks.Task{}, err
			}

			return s.deps.TaskService.Update(ctx, user.ID, up.id, in)
		})
		h.request(func(sh shared) (taskUpdate, error) {
			id, err := taskIDFromPath(sh)
			if err != nil {
				return taskUpdate{}, err
			}

			form, err := defaultReqToIn[taskForm](s, sh)
			if err != nil {
				return taskUpdate{}, err
			}

			return taskUpdate{id: id, form: form}, nil
		})
		h.onSuccess(func(r result[taskUpdate, tasks.Task]) error {
			return r.s.flashAndRedirect(r.w, r.r, r.sess, flashTaskUpdated, "/tasks")
		})
		h.onFail(func(sh shared, err error) {
			if isInvalidInput(err) {
				edit := fmt.Sprintf("/tasks/%s/edit", sh.r.PathValue("id"))
				s.failFlash(sh, flashBadInput, edit)
				return
			}
			s.handleError(sh.w, sh.r, err)
		})

		s.loggedIn(route, h)
	}

	{
		const route = "POST /tasks/{id}/toggle"
		h := newHandler(s, func(ctx context.Context, taskID uuid.UUID) (tasks.Task, error) {
			user, err := userFromCtx(ctx)
			if err != nil {
				return tasks.Task{}, err
			}

			return s.deps.TaskService.Toggle(ctx, user.ID, taskID)
		})
		h.request(taskIDFromPath)
		h.onSuccess(func(r result[uuid.UUID, tasks.Task]) error {
			http.Redirect(r.w, r.r, "/tasks", http.StatusFound)
			return nil
		})

		s.loggedIn(route, h)
	}

	{
		const route = "POST /tasks/{id}/delete"
		h := newInputHandler(s, func(ctx context.Context, taskID uuid.UUID) error {
			user, err := userFromCtx(ctx)
			if err != nil {
				return err
			}

			return s.deps.TaskService.Delete(ctx, user.ID, taskID)
		})
		h.request(taskIDFromPath)
		h.onSuccess(func(r result[uuid.UUID, struct{}]) error {
			return r.s.flashAndRedirect(r.w, r.r, r.sess, flashTaskDeleted, "/tasks")
		})

		s.loggedIn(route, h)
	}
}

// taskIDFromPath reads the task ID from the {id} path segment. Invalid
// IDs are treated the same as unknown ones.
func taskIDFromPath(sh shared) (uuid.UUID, error) {
	id, err := uuid.Parse(sh.r.PathValue("id"))
	if err != nil {
		return uuid.Nil, errorz.ErrNotFound
	}

	return id, nil
}
