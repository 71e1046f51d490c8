package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/btouchard/taskboard/internal/domain"
	"github.com/btouchard/taskboard/internal/store"
	"github.com/btouchard/taskboard/internal/task"
)

func (h *handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var req task.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.tasks.Create(r.Context(), UserFromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	f, err := taskFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tasks, err := h.tasks.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *handlers) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req task.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.tasks.Update(r.Context(), UserFromContext(r.Context()), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.tasks.Delete(r.Context(), UserFromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// taskFilter reads the list filters: name (substring), status, created_at
// (YYYY-MM-DD), creator, creator_role, executor, limit and offset.
func taskFilter(r *http.Request) (store.TaskFilter, error) {
	q := r.URL.Query()
	f := store.TaskFilter{
		NameContains:     q.Get("name"),
		CreatorUsername:  q.Get("creator"),
		ExecutorUsername: q.Get("executor"),
	}

	if v := q.Get("status"); v != "" {
		st, err := domain.ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	if v := q.Get("creator_role"); v != "" {
		role, err := domain.ParseRole(v)
		if err != nil {
			return f, err
		}
		f.CreatorRole = role
	}
	if v := q.Get("created_at"); v != "" {
		day, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return f, fmt.Errorf("%w: created_at must be YYYY-MM-DD", domain.ErrValidation)
		}
		f.CreatedOn = day
	}

	var err error
	f.Limit, f.Offset, err = pagination(r)
	return f, err
}
