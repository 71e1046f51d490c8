// Package task implements the task lifecycle: creation by managers, the
// role-driven status machine and deletion, with push notifications emitted
// after every committed mutation.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/btouchard/taskboard/internal/authz"
	"github.com/btouchard/taskboard/internal/domain"
	"github.com/btouchard/taskboard/internal/mail"
	"github.com/btouchard/taskboard/internal/notify"
	"github.com/btouchard/taskboard/internal/store"
)

// MaxNameLength is the longest task name accepted, in characters.
const MaxNameLength = 155

// Store is the persistence the service needs.
type Store interface {
	CreateTask(ctx context.Context, t *domain.Task, executors []domain.UserID) error
	UpdateTask(ctx context.Context, id int64, expected domain.Status, patch store.TaskPatch, added []domain.UserID) error
	GetTask(ctx context.Context, id int64) (*domain.Task, error)
	ListTasks(ctx context.Context, f store.TaskFilter) ([]domain.Task, error)
	DeleteTask(ctx context.Context, id int64) error
	GetUsers(ctx context.Context, ids []domain.UserID) ([]domain.User, error)
}

// CreateRequest carries the fields of a new task.
type CreateRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	Urgency     bool            `json:"urgency"`
	Executors   []domain.UserID `json:"executors_id"`
}

// Service owns every task mutation.
type Service struct {
	store    Store
	notifier notify.Notifier
	mailer   mail.Sender
	now      func() time.Time
}

// NewService creates a Service. A nil mailer disables executor emails.
func NewService(st Store, notifier notify.Notifier, mailer mail.Sender) *Service {
	if mailer == nil {
		mailer = mail.Nop{}
	}
	return &Service{
		store:    st,
		notifier: notifier,
		mailer:   mailer,
		now:      time.Now,
	}
}

// Create stores a new task on behalf of a manager and assigns its executors.
// Every executor must be an existing user with the USER role. Each executor
// is notified individually once the task is committed.
func (s *Service) Create(ctx context.Context, requester *domain.User, req CreateRequest) (*domain.Task, error) {
	if err := authz.RequireRole(requester, domain.RoleManager); err != nil {
		return nil, err
	}

	name, err := normalizeName(req.Name)
	if err != nil {
		return nil, err
	}

	executorIDs := uniqueIDs(req.Executors)
	executors, err := s.lookupUsers(ctx, executorIDs)
	if err != nil {
		return nil, err
	}
	for _, u := range executors {
		if u.Role != domain.RoleUser {
			return nil, fmt.Errorf("%w: user %d has role %q and cannot execute tasks",
				domain.ErrPermissionDenied, u.ID, u.Role)
		}
	}

	creator := requester.ID
	t := &domain.Task{
		Name:        name,
		Description: req.Description,
		CreatedAt:   s.now().UTC(),
		Deadline:    req.Deadline,
		Urgency:     req.Urgency,
		Status:      domain.StatusCreated,
		CreatorID:   &creator,
	}
	if err := s.store.CreateTask(ctx, t, executorIDs); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	slog.Info("task created",
		"task_id", t.ID,
		"user_id", requester.ID,
		"executors", len(executorIDs))

	event := notify.NewTaskEvent(notify.TaskCreated, t.ID, "%s create new task", requester.Username)
	for _, u := range executors {
		s.notifier.Notify(ctx, event, u.ID)
		s.mailExecutor(ctx, name, u)
	}

	return s.store.GetTask(ctx, t.ID)
}

func (s *Service) mailExecutor(ctx context.Context, taskName string, u domain.User) {
	err := s.mailer.Send(ctx, mail.Message{
		To:      u.Email,
		Subject: "Created task " + taskName,
		Body:    u.Username + " you have new task",
	})
	if err != nil {
		slog.Warn("queueing executor email", "user_id", u.ID, "error", err)
	}
}

// Delete removes a task. Only the manager who created it may do so. The
// task's subscribers are notified after the row is gone.
func (s *Service) Delete(ctx context.Context, requester *domain.User, taskID int64) error {
	if err := authz.RequireRole(requester, domain.RoleManager); err != nil {
		return err
	}

	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !t.IsCreator(requester.ID) {
		return fmt.Errorf("%w: only the creator may delete task %d", domain.ErrPermissionDenied, taskID)
	}

	subscribers := t.Subscribers()
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}

	slog.Info("task deleted", "task_id", taskID, "user_id", requester.ID)

	s.notifier.Notify(ctx,
		notify.NewTaskEvent(notify.TaskDeleted, taskID, "Manager %s delete the task #%d", requester.Username, taskID),
		subscribers...)
	return nil
}

// Get returns a task with its creator and executors.
func (s *Service) Get(ctx context.Context, taskID int64) (*domain.Task, error) {
	return s.store.GetTask(ctx, taskID)
}

// List returns the tasks matching f, newest first.
func (s *Service) List(ctx context.Context, f store.TaskFilter) ([]domain.Task, error) {
	return s.store.ListTasks(ctx, f)
}

// lookupUsers resolves ids, failing with domain.ErrNotFound on the first id
// that has no user.
func (s *Service) lookupUsers(ctx context.Context, ids []domain.UserID) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading executors: %w", err)
	}
	if len(users) == len(ids) {
		return users, nil
	}
	found := make(map[domain.UserID]struct{}, len(users))
	for _, u := range users {
		found[u.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return nil, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
		}
	}
	return users, nil
}

// normalizeName trims the name and capitalizes it: first letter upper case,
// the rest lower case.
func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: task name is required", domain.ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", fmt.Errorf("%w: task name exceeds %d characters", domain.ErrValidation, MaxNameLength)
	}
	first, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(first)) + strings.ToLower(name[size:]), nil
}

func uniqueIDs(ids []domain.UserID) []domain.UserID {
	seen := make(map[domain.UserID]struct{}, len(ids))
	out := make([]domain.UserID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
