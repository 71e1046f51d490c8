// Package authz holds the role policy shared by every state-changing operation.
package authz

import (
	"fmt"
	"slices"

	"github.com/btouchard/taskboard/internal/domain"
)

// RequireRole fails with domain.ErrPermissionDenied unless the requester's
// role is one of allowed. It has no side effects and is meant to be called
// before anything is read or written on the requester's behalf.
func RequireRole(requester *domain.User, allowed ...domain.Role) error {
	if requester == nil {
		return fmt.Errorf("%w: no authenticated user", domain.ErrPermissionDenied)
	}
	if !slices.Contains(allowed, requester.Role) {
		return fmt.Errorf("%w: role %q is not allowed", domain.ErrPermissionDenied, requester.Role)
	}
	return nil
}

var permittedStatuses = map[domain.Role][]domain.Status{
	domain.RoleUser:    {domain.StatusAtWork, domain.StatusOnCheck},
	domain.RoleManager: {domain.StatusFrozen, domain.StatusCancel, domain.StatusFinished},
	// Admins manage tasks through the admin surface, not the status machine.
	domain.RoleAdmin: {},
}

// PermittedStatuses returns the statuses a role may set on a task.
func PermittedStatuses(role domain.Role) []domain.Status {
	return slices.Clone(permittedStatuses[role])
}

// CanSetStatus reports whether role may move a task into status.
func CanSetStatus(role domain.Role, status domain.Status) bool {
	return slices.Contains(permittedStatuses[role], status)
}
