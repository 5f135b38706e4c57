package cellar

import (
	"strings"

	"github.com/google/uuid"
)

// IDGenerator produces record identifiers. Implementations must return values
// that are unpredictable and collision-resistant.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator issues random (version 4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// NameGenerator produces default names for records created without one.
type NameGenerator func() string

// RandomName returns a 12 character lowercase hex name.
func RandomName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
