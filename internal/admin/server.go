// Package admin exposes operator tools over MCP for administrators.
package admin

import (
	"context"
	"net/http"

	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/taskboard/internal/domain"
	"github.com/btouchard/taskboard/internal/notify"
	"github.com/btouchard/taskboard/internal/store"
)

// Directory is the read access the tools need.
type Directory interface {
	ListUsers(ctx context.Context, f store.UserFilter) ([]domain.User, error)
	UserIDs(ctx context.Context) ([]domain.UserID, error)
	ListTasks(ctx context.Context, f store.TaskFilter) ([]domain.Task, error)
	GetTask(ctx context.Context, id int64) (*domain.Task, error)
}

// Presence reports who currently holds a push channel.
type Presence interface {
	Online() []domain.UserID
	Count(recipient domain.UserID) int
}

// Deps holds shared dependencies injected into tool handlers.
type Deps struct {
	Directory Directory
	Presence  Presence
	Notifier  notify.Notifier
}

// NewServer creates the MCP server. Tools are added by RegisterTools once
// their dependencies exist, so the server can be handed to an Observer first.
func NewServer(version string) *server.MCPServer {
	return server.NewMCPServer(
		"Taskboard Admin",
		version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)
}

// Handler serves s over streamable HTTP.
func Handler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s)
}
