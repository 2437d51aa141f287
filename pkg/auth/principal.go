package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

// Principal is the authenticated caller of a core operation. It is always
// passed explicitly; services never read it from request context.
type Principal struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// System is the principal used by background jobs and webhook reconciliation.
var System = Principal{Role: enums.UserRoleAdmin}

func (p Principal) IsAdmin() bool {
	return p.Role == enums.UserRoleAdmin
}

// Valid reports whether the principal identifies a user with a known role.
func (p Principal) Valid() bool {
	return p.UserID != uuid.Nil && p.Role.IsValid()
}
