package notify

import (
	"encoding/json"
	"fmt"
)

// Kind tags a domain event.
type Kind string

const (
	TaskCreated Kind = "task_created"
	TaskUpdated Kind = "task_updated"
	TaskDeleted Kind = "task_deleted"
	UserAdded   Kind = "user_added"
	UserDeleted Kind = "user_deleted"
	// Announcement is an operator message sent from the admin surface.
	Announcement Kind = "announcement"
)

// Event is what recipients receive on their push channels.
type Event struct {
	Kind    Kind   `json:"event"`
	Message string `json:"message"`
	TaskID  int64  `json:"task_id,omitempty"`
}

// NewTaskEvent builds a task-scoped event.
func NewTaskEvent(kind Kind, taskID int64, format string, args ...any) Event {
	return Event{Kind: kind, TaskID: taskID, Message: fmt.Sprintf(format, args...)}
}

// NewEvent builds an event that is not tied to a task.
func NewEvent(kind Kind, format string, args ...any) Event {
	return Event{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Encode returns the wire form of the event.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding event: %w", err)
	}
	return data, nil
}
