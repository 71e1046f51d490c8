package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/taskboard/internal/config"
	"github.com/btouchard/taskboard/internal/domain"
	"github.com/btouchard/taskboard/internal/notify"
)

type tokenAuth map[string]*domain.User

func (a tokenAuth) Authenticate(_ context.Context, raw string) (*domain.User, error) {
	if u, ok := a[raw]; ok {
		return u, nil
	}
	return nil, errors.New("unknown token")
}

func testConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		WriteTimeout:   time.Second,
		PingInterval:   time.Second,
		MaxMessageSize: 4096,
	}
}

func newTestServer(t *testing.T, registry *notify.Registry) *httptest.Server {
	t.Helper()
	users := tokenAuth{
		"alice-token": {ID: 1, Username: "alice", Role: domain.RoleUser},
		"bob-token":   {ID: 2, Username: "bob", Role: domain.RoleUser},
	}
	srv := httptest.NewServer(NewHandler(registry, users, testConfig()))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token
	c, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestHandler_RegistersAndDelivers(t *testing.T) {
	t.Parallel()
	registry := notify.NewRegistry()
	srv := newTestServer(t, registry)

	client := dial(t, srv, "alice-token")
	require.Eventually(t, func() bool { return registry.Count(1) == 1 }, 2*time.Second, 10*time.Millisecond)

	registry.Broadcast(context.Background(), 1, []byte(`{"event":"task_created"}`))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.JSONEq(t, `{"event":"task_created"}`, string(data))
}

func TestHandler_MultipleSessionsPerUser(t *testing.T) {
	t.Parallel()
	registry := notify.NewRegistry()
	srv := newTestServer(t, registry)

	first := dial(t, srv, "alice-token")
	second := dial(t, srv, "alice-token")
	require.Eventually(t, func() bool { return registry.Count(1) == 2 }, 2*time.Second, 10*time.Millisecond)

	registry.Broadcast(context.Background(), 1, []byte("hello"))

	for _, c := range []*websocket.Conn{first, second} {
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	}
}

func TestHandler_DisconnectUnregisters(t *testing.T) {
	t.Parallel()
	registry := notify.NewRegistry()
	srv := newTestServer(t, registry)

	client := dial(t, srv, "bob-token")
	require.Eventually(t, func() bool { return registry.Count(2) == 1 }, 2*time.Second, 10*time.Millisecond)

	_ = client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = client.Close()

	require.Eventually(t, func() bool { return registry.Count(2) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, registry.Online())
}

func TestHandler_RejectsMissingOrBadToken(t *testing.T) {
	t.Parallel()
	registry := notify.NewRegistry()
	srv := newTestServer(t, registry)
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"

	for _, url := range []string{base, base + "?token=forged"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	}
	assert.Empty(t, registry.Online())
}

func TestConn_SendAfterCloseFails(t *testing.T) {
	t.Parallel()

	accepted := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- newConn(socket, time.Second)
	}))
	t.Cleanup(srv.Close)

	dial(t, srv, "")
	var c *Conn
	select {
	case c = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
	}

	require.NoError(t, c.Send(context.Background(), []byte("x")))

	c.Close()
	c.Close()
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Send(context.Background(), []byte("x")), ErrClosed)
}

func TestOriginChecker(t *testing.T) {
	t.Parallel()

	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://board.example.com/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	sameHost := originChecker(nil)
	assert.True(t, sameHost(req("")))
	assert.True(t, sameHost(req("http://board.example.com")))
	assert.False(t, sameHost(req("http://evil.example.com")))

	listed := originChecker([]string{"https://app.example.com/"})
	assert.True(t, listed(req("https://app.example.com")))
	assert.False(t, listed(req("https://board.example.com")))

	assert.True(t, originChecker([]string{"*"})(req("http://anything")))
}
