// Package api serves the HTTP interface: authentication, accounts, tasks
// and the push channel endpoint.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/btouchard/taskboard/internal/config"
	"github.com/btouchard/taskboard/internal/domain"
	"github.com/btouchard/taskboard/internal/task"
	"github.com/btouchard/taskboard/internal/user"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds everything the router wires together. PushChannel and Admin
// are optional.
type Deps struct {
	Tasks       *task.Service
	Users       *user.Service
	Auth        Authenticator
	Health      Pinger
	PushChannel http.Handler
	Admin       http.Handler
	RateLimit   config.RateLimitConfig
}

// NewRouter builds the HTTP handler.
func NewRouter(deps *Deps) http.Handler {
	h := &handlers{tasks: deps.Tasks, users: deps.Users, health: deps.Health}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	r.Get("/health", h.healthCheck)

	r.Group(func(r chi.Router) {
		r.Use(IPRateLimit(deps.RateLimit))

		r.Post("/api/auth/login", h.login)
		r.With(OptionalAuth(deps.Auth)).Post("/api/users", h.register)

		if deps.PushChannel != nil {
			r.Handle("/ws", deps.PushChannel)
		}

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(deps.Auth))

			r.Get("/api/users", h.listUsers)
			r.Get("/api/users/me", h.me)
			r.Get("/api/users/{id}", h.getUser)
			r.Patch("/api/users/{id}", h.updateUser)
			r.Delete("/api/users/{id}", h.deleteUser)

			r.Post("/api/tasks", h.createTask)
			r.Get("/api/tasks", h.listTasks)
			r.Get("/api/tasks/{id}", h.getTask)
			r.Patch("/api/tasks/{id}", h.updateTask)
			r.Delete("/api/tasks/{id}", h.deleteTask)

			if deps.Admin != nil {
				r.With(RequireRole(domain.RoleAdmin)).Handle("/admin/mcp", deps.Admin)
			}
		})
	})

	return r
}

type handlers struct {
	tasks  *task.Service
	users  *user.Service
	health Pinger
}

func (h *handlers) healthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
