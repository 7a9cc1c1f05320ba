package models

import (
	"time"

	"github.com/google/uuid"
)

// AssistantUserID is the reserved author id for generated replies. The row is
// seeded with the schema so messages written by the assistant always have a
// valid author.
var AssistantUserID = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")

// User is the local mirror of a directory entry maintained by the surrounding
// application. Authentication itself happens upstream; this record only carries
// what the messaging core needs (roster name, role filter, active flag).
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
