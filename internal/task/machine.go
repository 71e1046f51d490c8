package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/btouchard/taskboard/internal/authz"
	"github.com/btouchard/taskboard/internal/domain"
	"github.com/btouchard/taskboard/internal/notify"
	"github.com/btouchard/taskboard/internal/store"
)

// UpdateRequest is a partial update. Nil fields are left untouched.
// Executors are added to the existing set; none are ever removed.
type UpdateRequest struct {
	Description *string         `json:"description,omitempty"`
	Urgency     *bool           `json:"urgency,omitempty"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	Status      *string         `json:"status,omitempty"`
	Executors   []domain.UserID `json:"executors_id,omitempty"`
}

func (r UpdateRequest) empty() bool {
	return r.Status == nil && !r.touchesDetails()
}

// touchesDetails reports whether anything besides the status is set.
func (r UpdateRequest) touchesDetails() bool {
	return r.Description != nil || r.Urgency != nil || r.Deadline != nil || len(r.Executors) > 0
}

// maxUpdateAttempts bounds how often Update re-reads a task that another
// request changed between the read and the write.
const maxUpdateAttempts = 3

// Update applies req to a task according to the requester's role.
//
// A USER may only move a task it executes into one of its permitted statuses.
// A MANAGER may change any field and add executors. Terminal tasks never
// change status again. On success the creator and every executor, new ones
// included, receive a task_updated event.
//
// The checks run against the task as read, and the write only lands while the
// stored status is unchanged. When another request got there first the task
// is read and checked again.
func (s *Service) Update(ctx context.Context, requester *domain.User, taskID int64, req UpdateRequest) (*domain.Task, error) {
	if err := authz.RequireRole(requester, domain.RoleUser, domain.RoleManager); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		t, err := s.store.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if req.empty() {
			return t, nil
		}

		patch, added, err := s.plan(ctx, requester, t, req)
		if err != nil {
			return nil, err
		}

		err = s.store.UpdateTask(ctx, taskID, t.Status, patch, added)
		switch {
		case err == nil:
			return s.afterUpdate(ctx, requester, t, patch, added), nil
		case errors.Is(err, store.ErrTaskChanged), errors.Is(err, domain.ErrConflict):
			if attempt == maxUpdateAttempts {
				return nil, fmt.Errorf("task %d keeps changing: %w", taskID, domain.ErrConflict)
			}
			slog.Debug("task changed during update, retrying", "task_id", taskID, "attempt", attempt)
		default:
			return nil, fmt.Errorf("updating task: %w", err)
		}
	}
}

// plan validates req against t and returns the columns to write and the
// executors to add.
func (s *Service) plan(ctx context.Context, requester *domain.User, t *domain.Task, req UpdateRequest) (store.TaskPatch, []domain.UserID, error) {
	patch := store.TaskPatch{
		Description: req.Description,
		Urgency:     req.Urgency,
		Deadline:    req.Deadline,
	}

	if req.Status != nil {
		status, err := domain.ParseStatus(*req.Status)
		if err != nil {
			return patch, nil, err
		}
		if err := checkTransition(requester.Role, t.Status, status); err != nil {
			return patch, nil, err
		}
		patch.Status = &status
	}

	if requester.Role == domain.RoleUser {
		if req.touchesDetails() {
			return patch, nil, fmt.Errorf("%w: users may only change the status", domain.ErrPermissionDenied)
		}
		if !t.HasExecutor(requester.ID) {
			return patch, nil, fmt.Errorf("%w: user %d is not an executor of task %d",
				domain.ErrPermissionDenied, requester.ID, t.ID)
		}
	}

	added, err := s.newExecutors(ctx, t, req.Executors)
	if err != nil {
		return patch, nil, err
	}
	return patch, added, nil
}

// afterUpdate reloads the committed task and notifies its subscribers. When
// the reload fails the patch is applied to the copy read before the write.
func (s *Service) afterUpdate(ctx context.Context, requester *domain.User, prev *domain.Task, patch store.TaskPatch, added []domain.UserID) *domain.Task {
	updated, err := s.store.GetTask(ctx, prev.ID)
	if err != nil {
		slog.Warn("reloading updated task", "task_id", prev.ID, "error", err)
		updated = applyPatch(prev, patch, added)
	}

	slog.Info("task updated",
		"task_id", updated.ID,
		"user_id", requester.ID,
		"status", string(updated.Status),
		"executors_added", len(added))

	s.notifier.Notify(ctx,
		notify.NewTaskEvent(notify.TaskUpdated, updated.ID, "%s update the task #%d", requester.Username, updated.ID),
		updated.Subscribers()...)
	return updated
}

func applyPatch(t *domain.Task, patch store.TaskPatch, added []domain.UserID) *domain.Task {
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Urgency != nil {
		t.Urgency = *patch.Urgency
	}
	if patch.Deadline != nil {
		t.Deadline = patch.Deadline
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	for _, id := range added {
		t.Executors = append(t.Executors, domain.Executor{UserID: id, TaskID: t.ID, IsExecutor: true})
	}
	return t
}

// checkTransition enforces the role's permitted statuses and the absence of
// any transition out of a terminal status.
func checkTransition(role domain.Role, from, to domain.Status) error {
	if !authz.CanSetStatus(role, to) {
		return fmt.Errorf("%w: role %q cannot set status %q", domain.ErrPermissionDenied, role, to)
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: task is %q and cannot change status", domain.ErrPermissionDenied, from)
	}
	return nil
}

// newExecutors returns the requested ids not yet associated with t. Each of
// them must be an existing USER-role user; ids already associated are not
// checked again.
func (s *Service) newExecutors(ctx context.Context, t *domain.Task, requested []domain.UserID) ([]domain.UserID, error) {
	var added []domain.UserID
	for _, id := range uniqueIDs(requested) {
		if !t.HasExecutor(id) {
			added = append(added, id)
		}
	}

	users, err := s.lookupUsers(ctx, added)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Role != domain.RoleUser {
			return nil, fmt.Errorf("user %d with role %q: %w", u.ID, u.Role, domain.ErrNotFound)
		}
	}
	return added, nil
}
