// Package user manages accounts: registration, login, profile updates and
// removal, plus the bootstrap operations used by the CLI.
package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/btouchard/taskboard/internal/authz"
	"github.com/btouchard/taskboard/internal/domain"
	"github.com/btouchard/taskboard/internal/notify"
	"github.com/btouchard/taskboard/internal/store"
)

// ErrInvalidCredentials is returned by Login for an unknown username or a
// wrong password. The two cases are not distinguished.
var ErrInvalidCredentials = errors.New("invalid username or password")

const maxUsernameLength = 64

// Store is the persistence the service needs.
type Store interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	ListUsers(ctx context.Context, f store.UserFilter) ([]domain.User, error)
	UserIDs(ctx context.Context) ([]domain.UserID, error)
	CountUsersWithRole(ctx context.Context, role domain.Role) (int, error)
	UpdateUser(ctx context.Context, u *domain.User) error
	DeleteUser(ctx context.Context, id domain.UserID) error
	ListTasks(ctx context.Context, f store.TaskFilter) ([]domain.Task, error)
}

// Hasher hashes and checks passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(u *domain.User) (string, time.Time, error)
}

// RegisterRequest describes a new account. Role defaults to user.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// UpdateRequest is a partial account update. Nil fields are left untouched.
type UpdateRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TaskSummary is the short form of a task listed on a profile.
type TaskSummary struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"created_at"`
	Deadline  *time.Time    `json:"deadline,omitempty"`
	Urgency   bool          `json:"urgency"`
	Status    domain.Status `json:"status"`
}

// Profile is a user together with the tasks they created and the tasks
// they work on.
type Profile struct {
	domain.User
	CreatedTasks []TaskSummary `json:"created_tasks"`
	InWork       []TaskSummary `json:"in_work"`
}

// Service owns every account mutation.
type Service struct {
	store    Store
	hasher   Hasher
	tokens   TokenIssuer
	notifier notify.Notifier
	now      func() time.Time
}

// NewService creates a Service.
func NewService(st Store, hasher Hasher, tokens TokenIssuer, notifier notify.Notifier) *Service {
	return &Service{
		store:    st,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		now:      time.Now,
	}
}

// Register creates an account. Only an admin may register an account with a
// role other than user; requester may be nil for self-registration. Every
// user is told about the newcomer.
func (s *Service) Register(ctx context.Context, requester *domain.User, req RegisterRequest) (*domain.User, error) {
	role := domain.RoleUser
	if req.Role != "" {
		r, err := domain.ParseRole(req.Role)
		if err != nil {
			return nil, err
		}
		role = r
	}
	if role != domain.RoleUser {
		if err := authz.RequireRole(requester, domain.RoleAdmin); err != nil {
			return nil, err
		}
	}

	u, err := s.create(ctx, req.Username, req.Email, req.Password, role)
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, notify.NewEvent(notify.UserAdded, "new user %s added", u.Username))
	return u, nil
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (*Token, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		slog.Warn("login rejected", "user_id", u.ID)
		return nil, ErrInvalidCredentials
	}

	raw, expires, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	slog.Info("user logged in", "user_id", u.ID)
	return &Token{AccessToken: raw, TokenType: "bearer", ExpiresAt: expires}, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return s.store.GetUser(ctx, id)
}

// Profile returns a user with the tasks they created and the tasks they
// execute.
func (s *Service) Profile(ctx context.Context, id domain.UserID) (*Profile, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	created, err := s.store.ListTasks(ctx, store.TaskFilter{CreatorID: id})
	if err != nil {
		return nil, err
	}
	inWork, err := s.store.ListTasks(ctx, store.TaskFilter{ExecutorID: id})
	if err != nil {
		return nil, err
	}
	return &Profile{User: *u, CreatedTasks: summarize(created), InWork: summarize(inWork)}, nil
}

func summarize(tasks []domain.Task) []TaskSummary {
	out := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskSummary{
			ID:        t.ID,
			Name:      t.Name,
			CreatedAt: t.CreatedAt,
			Deadline:  t.Deadline,
			Urgency:   t.Urgency,
			Status:    t.Status,
		})
	}
	return out
}

// List returns users matching f.
func (s *Service) List(ctx context.Context, f store.UserFilter) ([]domain.User, error) {
	return s.store.ListUsers(ctx, f)
}

// Update changes an account. Users may edit themselves; admins may edit
// anyone. The role may only be changed by an admin, and never on their own
// account.
func (s *Service) Update(ctx context.Context, requester *domain.User, id domain.UserID, req UpdateRequest) (*domain.User, error) {
	if requester == nil {
		return nil, fmt.Errorf("%w: no authenticated user", domain.ErrPermissionDenied)
	}

	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if requester.Role != domain.RoleAdmin && requester.ID != u.ID {
		return nil, fmt.Errorf("%w: cannot edit another user", domain.ErrPermissionDenied)
	}

	if req.Role != nil {
		if requester.Role != domain.RoleAdmin || requester.ID == u.ID {
			return nil, fmt.Errorf("%w: cannot change role", domain.ErrPermissionDenied)
		}
		role, err := domain.ParseRole(*req.Role)
		if err != nil {
			return nil, err
		}
		u.Role = role
	}
	if req.Username != nil {
		name, err := validUsername(*req.Username)
		if err != nil {
			return nil, err
		}
		u.Username = name
	}
	if req.Email != nil {
		email, err := validEmail(*req.Email)
		if err != nil {
			return nil, err
		}
		u.Email = email
	}
	if req.Password != nil {
		hash, err := s.hashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	slog.Info("user updated", "user_id", u.ID, "by", requester.ID)
	return u, nil
}

// Delete removes an account. Admin only. The remaining users are told.
func (s *Service) Delete(ctx context.Context, requester *domain.User, id domain.UserID) error {
	if err := authz.RequireRole(requester, domain.RoleAdmin); err != nil {
		return err
	}

	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	slog.Info("user deleted", "user_id", id, "by", requester.ID)

	s.broadcast(ctx, notify.NewEvent(notify.UserDeleted, "user %s has been deleted", u.Username))
	return nil
}

// CreateSuperuser creates the first admin account. It refuses when the
// username or email is taken or when an admin already exists.
func (s *Service) CreateSuperuser(ctx context.Context, username, email, password string) (*domain.User, error) {
	admins, err := s.store.CountUsersWithRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if admins > 0 {
		return nil, fmt.Errorf("%w: a superuser already exists", domain.ErrConflict)
	}
	return s.create(ctx, username, email, password, domain.RoleAdmin)
}

// LoadUsers creates the accounts listed in a JSON array of objects with
// username, email, password and role. It stops at the first failure and
// reports how many accounts were created before it.
func (s *Service) LoadUsers(ctx context.Context, r io.Reader) (int, error) {
	var entries []RegisterRequest
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return 0, fmt.Errorf("%w: decoding users: %v", domain.ErrValidation, err)
	}

	for i, e := range entries {
		role := domain.RoleUser
		if e.Role != "" {
			parsed, err := domain.ParseRole(e.Role)
			if err != nil {
				return i, fmt.Errorf("entry %d: %w", i, err)
			}
			role = parsed
		}
		if _, err := s.create(ctx, e.Username, e.Email, e.Password, role); err != nil {
			return i, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return len(entries), nil
}

func (s *Service) create(ctx context.Context, username, email, password string, role domain.Role) (*domain.User, error) {
	name, err := validUsername(username)
	if err != nil {
		return nil, err
	}
	addr, err := validEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		Username:     name,
		Email:        addr,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	slog.Info("user created", "user_id", u.ID, "role", string(u.Role))
	return u, nil
}

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

func (s *Service) hashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is required", domain.ErrValidation)
	}
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("%w: password must be at most %d bytes", domain.ErrValidation, maxPasswordBytes)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return hash, nil
}

// broadcast sends event to every registered user.
func (s *Service) broadcast(ctx context.Context, event notify.Event) {
	ids, err := s.store.UserIDs(ctx)
	if err != nil {
		slog.Error("resolving user recipients", "event", event.Kind, "error", err)
		return
	}
	s.notifier.Notify(ctx, event, ids...)
}

func validUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	if len(name) > maxUsernameLength {
		return "", fmt.Errorf("%w: username exceeds %d characters", domain.ErrValidation, maxUsernameLength)
	}
	return name, nil
}

func validEmail(email string) (string, error) {
	addr, err := netmail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return "", fmt.Errorf("%w: invalid email %q", domain.ErrValidation, email)
	}
	return addr.Address, nil
}
