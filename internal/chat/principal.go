package chat

import "github.com/google/uuid"

// Principal is the authenticated caller as asserted by the upstream identity
// provider. It is trusted as-is and never re-validated here.
type Principal struct {
	UserID uuid.UUID
	Role   string
}
