package admin

import (
	"github.com/btouchard/taskboard/internal/domain"
	"github.com/btouchard/taskboard/internal/notify"
)

// MCPSender is the subset of the MCP server used to push notifications.
// Defined consumer-side per Go convention.
type MCPSender interface {
	SendNotificationToAllClients(method string, params map[string]any)
}

// Observer mirrors every fanned-out event to connected admin clients as an
// MCP log message.
type Observer struct {
	sender MCPSender
}

// NewObserver creates an Observer pushing through sender.
func NewObserver(sender MCPSender) *Observer {
	return &Observer{sender: sender}
}

// Observe implements notify.Observer.
func (o *Observer) Observe(event notify.Event, recipients []domain.UserID) {
	data := map[string]any{
		"event":      string(event.Kind),
		"message":    event.Message,
		"recipients": len(recipients),
	}
	if event.TaskID != 0 {
		data["task_id"] = event.TaskID
	}

	o.sender.SendNotificationToAllClients("notifications/message", map[string]any{
		"level":  levelFor(event.Kind),
		"logger": "taskboard",
		"data":   data,
	})
}

func levelFor(kind notify.Kind) string {
	switch kind {
	case notify.TaskDeleted, notify.UserDeleted:
		return "warning"
	default:
		return "info"
	}
}
