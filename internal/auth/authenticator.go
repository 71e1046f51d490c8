package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/btouchard/taskboard/internal/domain"
)

// UserLookup loads the account a token was issued for.
type UserLookup interface {
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)
}

// Authenticator resolves bearer tokens into users.
type Authenticator struct {
	tokens *TokenManager
	users  UserLookup
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(tokens *TokenManager, users UserLookup) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate verifies raw and returns the current state of its user. A
// token whose user has since been deleted is invalid.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*domain.User, error) {
	id, err := a.tokens.Verify(raw)
	if err != nil {
		return nil, err
	}
	u, err := a.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("loading token user: %w", err)
	}
	return u, nil
}

// TokenFromRequest extracts a bearer token from the Authorization header,
// falling back to the token query parameter used by browser WebSocket
// clients, which cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
