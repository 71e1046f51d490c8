// Package ws serves the push channel: an authenticated WebSocket per client
// session, registered under the user's id for the lifetime of the socket.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/btouchard/taskboard/internal/auth"
	"github.com/btouchard/taskboard/internal/config"
	"github.com/btouchard/taskboard/internal/domain"
	"github.com/btouchard/taskboard/internal/notify"
)

// Authenticator resolves a bearer token into a user.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*domain.User, error)
}

// Handler upgrades authenticated requests and ties each socket to the
// registry.
type Handler struct {
	registry *notify.Registry
	auth     Authenticator
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
}

// NewHandler creates a Handler.
func NewHandler(registry *notify.Registry, authn Authenticator, cfg config.WebSocketConfig) *Handler {
	return &Handler{
		registry: registry,
		auth:     authn,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

// ServeHTTP blocks for the lifetime of the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := auth.TokenFromRequest(r)
	if raw == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	user, err := h.auth.Authenticate(r.Context(), raw)
	if err != nil {
		slog.Debug("push channel rejected", "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		slog.Debug("websocket upgrade failed", "user_id", user.ID, "error", err)
		return
	}

	c := newConn(socket, h.cfg.WriteTimeout)
	h.registry.Connect(user.ID, c)
	slog.Info("push channel opened", "user_id", user.ID, "channel_id", c.ID())

	go c.keepAlive(h.cfg.PingInterval)
	err = c.readLoop(h.cfg.MaxMessageSize, 2*h.cfg.PingInterval+h.cfg.WriteTimeout)

	h.registry.Disconnect(user.ID, c)
	c.Close()

	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		slog.Warn("push channel dropped", "user_id", user.ID, "channel_id", c.ID(), "error", err)
		return
	}
	slog.Info("push channel closed", "user_id", user.ID, "channel_id", c.ID())
}

// originChecker allows the configured origins. With none configured only
// same-host requests pass; "*" allows any origin.
func originChecker(allowed []string) func(*http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) == 0 {
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		}
		return slices.ContainsFunc(allowed, func(a string) bool {
			return strings.EqualFold(strings.TrimRight(a, "/"), origin)
		})
	}
}
