package admin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/taskboard/internal/domain"
	"github.com/btouchard/taskboard/internal/notify"
)

type sentNotification struct {
	method string
	params map[string]any
}

type recordingSender struct {
	sent []sentNotification
}

func (r *recordingSender) SendNotificationToAllClients(method string, params map[string]any) {
	r.sent = append(r.sent, sentNotification{method: method, params: params})
}

func TestObserver_MirrorsTaskEvent(t *testing.T) {
	t.Parallel()
	sender := &recordingSender{}

	NewObserver(sender).Observe(
		notify.NewTaskEvent(notify.TaskUpdated, 12, "boss update the task #%d", 12),
		[]domain.UserID{1, 2, 3})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "notifications/message", sender.sent[0].method)
	assert.Equal(t, "info", sender.sent[0].params["level"])

	data := sender.sent[0].params["data"].(map[string]any)
	assert.Equal(t, "task_updated", data["event"])
	assert.Equal(t, int64(12), data["task_id"])
	assert.Equal(t, 3, data["recipients"])
}

func TestObserver_DeletionsAreWarnings(t *testing.T) {
	t.Parallel()
	sender := &recordingSender{}

	NewObserver(sender).Observe(notify.NewEvent(notify.UserDeleted, "user bob has been deleted"), nil)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "warning", sender.sent[0].params["level"])
	_, hasTask := sender.sent[0].params["data"].(map[string]any)["task_id"]
	assert.False(t, hasTask)
}

func TestNewServer_RegistersTools(t *testing.T) {
	t.Parallel()

	s := NewServer("test")
	RegisterTools(s, &Deps{Presence: fakePresence{}, Notifier: &recordingNotifier{}})

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	for _, name := range []string{"list_users", "list_tasks", "get_task", "online_users", "broadcast_message"} {
		assert.Contains(t, string(raw), `"name":"`+name+`"`)
	}
}
