package account

import (
	"time"

	"github.com/google/uuid"
)

// Account is the read-only projection of an authenticated user supplied by
// the identity collaborator. The engine only consults it for ownership,
// self-bid, and admin checks.
type Account struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Roles    []Role    `json:"roles"`

	CreatedAt time.Time `json:"created_at"`
}

type Role int

const (
	RoleUser Role = iota
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseRole maps a role claim string to a Role, defaulting to RoleUser.
func ParseRole(s string) Role {
	if s == "admin" {
		return RoleAdmin
	}
	return RoleUser
}

// IsAdmin reports whether the account carries the admin role.
func (a *Account) IsAdmin() bool {
	for _, r := range a.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}
