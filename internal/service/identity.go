package service

import (
	"fmt"

	"keymarket/internal/models"
)

// Identity is the caller of a service operation. The HTTP layer resolves it
// from the session token and passes it in explicitly.
type Identity struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (id Identity) IsAdmin() bool {
	return id.Role == models.RoleAdmin
}

// requireRole returns ErrForbidden unless the identity has one of roles.
func requireRole(id Identity, roles ...string) error {
	for _, r := range roles {
		if id.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q may not perform this operation", ErrForbidden, id.Role)
}
