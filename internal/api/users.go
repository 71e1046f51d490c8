package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/taskboard/internal/domain"
	"github.com/btouchard/taskboard/internal/store"
	"github.com/btouchard/taskboard/internal/user"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// login accepts JSON or an OAuth2 password-grant style form.
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid form: %v", domain.ErrValidation, err))
			return
		}
		c.Username = r.PostForm.Get("username")
		c.Password = r.PostForm.Get("password")
	} else if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}

	tok, err := h.users.Login(r.Context(), c.Username, c.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req user.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.users.Register(r.Context(), UserFromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.UserFilter{Username: q.Get("username")}
	if role := q.Get("role"); role != "" {
		parsed, err := domain.ParseRole(role)
		if err != nil {
			writeError(w, r, err)
			return
		}
		f.Role = parsed
	}
	var err error
	if f.Limit, f.Offset, err = pagination(r); err != nil {
		writeError(w, r, err)
		return
	}

	users, err := h.users.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, UserFromContext(r.Context()))
}

func (h *handlers) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.users.Profile(r.Context(), domain.UserID(id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req user.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.users.Update(r.Context(), UserFromContext(r.Context()), domain.UserID(id), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.users.Delete(r.Context(), UserFromContext(r.Context()), domain.UserID(id)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid id %q", domain.ErrValidation, raw)
	}
	return id, nil
}

// pagination reads limit and offset. The limit defaults to 50 and is capped
// at 100.
func pagination(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	limit = defaultPageSize
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("%w: invalid limit %q", domain.ErrValidation, v)
		}
	}
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("%w: invalid offset %q", domain.ErrValidation, v)
		}
	}
	return min(limit, maxPageSize), offset, nil
}
