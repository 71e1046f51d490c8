package domain

import (
	"fmt"
	"strings"
	"time"
)

// UserID identifies a user. It is also the key push channels are registered under.
type UserID int64

// Role is the access level of a user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleUser    Role = "user"
	RoleManager Role = "manager"
)

// ParseRole accepts the lowercase wire form as well as the upper-case names
// stored by older databases ("ADMIN", "USER", "MANAGER").
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleUser, RoleManager:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
	}
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusCreated  Status = "created"
	StatusAtWork   Status = "at work"
	StatusOnCheck  Status = "on check"
	StatusFrozen   Status = "frozen"
	StatusCancel   Status = "cancel"
	StatusFinished Status = "finished"
)

var statusByName = map[string]Status{
	"created":  StatusCreated,
	"at work":  StatusAtWork,
	"at_work":  StatusAtWork,
	"on check": StatusOnCheck,
	"on_check": StatusOnCheck,
	"frozen":   StatusFrozen,
	"cancel":   StatusCancel,
	"finished": StatusFinished,
}

// ParseStatus maps a status string onto a Status. Both "at work" and
// "AT_WORK" spellings are accepted.
func ParseStatus(s string) (Status, error) {
	st, ok := statusByName[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	return st, nil
}

// IsTerminal reports whether no transition leaves this status.
func (s Status) IsTerminal() bool {
	return s == StatusFrozen || s == StatusCancel || s == StatusFinished
}

// User is a registered account.
type User struct {
	ID           UserID    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Ref returns the short public form of the user.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Username: u.Username, Email: u.Email}
}

// UserRef is the public projection of a user embedded in task responses.
type UserRef struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Executor links a user to a task they work on.
type Executor struct {
	UserID     UserID   `json:"user_id"`
	TaskID     int64    `json:"task_id"`
	IsExecutor bool     `json:"is_executor"`
	User       *UserRef `json:"user,omitempty"`
}

// Task is a unit of work created by a manager and worked by executors.
type Task struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Urgency     bool       `json:"urgency"`
	Status      Status     `json:"status"`
	CreatorID   *UserID    `json:"creator_id,omitempty"`
	Creator     *UserRef   `json:"creator,omitempty"`
	Executors   []Executor `json:"executors"`
}

// ExecutorIDs returns the user ids of the task's executors in association order.
func (t *Task) ExecutorIDs() []UserID {
	ids := make([]UserID, 0, len(t.Executors))
	for _, e := range t.Executors {
		ids = append(ids, e.UserID)
	}
	return ids
}

// HasExecutor reports whether id is associated with the task.
func (t *Task) HasExecutor(id UserID) bool {
	for _, e := range t.Executors {
		if e.UserID == id {
			return true
		}
	}
	return false
}

// IsCreator reports whether id created the task. Tasks whose creator was
// removed have no creator.
func (t *Task) IsCreator(id UserID) bool {
	return t.CreatorID != nil && *t.CreatorID == id
}

// Subscribers returns the creator and every executor, without duplicates.
// These are the recipients of task-scoped events.
func (t *Task) Subscribers() []UserID {
	seen := make(map[UserID]struct{}, len(t.Executors)+1)
	var out []UserID
	if t.CreatorID != nil {
		seen[*t.CreatorID] = struct{}{}
		out = append(out, *t.CreatorID)
	}
	for _, e := range t.Executors {
		if _, ok := seen[e.UserID]; ok {
			continue
		}
		seen[e.UserID] = struct{}{}
		out = append(out, e.UserID)
	}
	return out
}
