package scheduler

import "github.com/google/uuid"

// IDGenerator mints session identifiers. It is an interface (rather than
// a bare function) so tests can inject deterministic ids; the production
// implementation mints random UUIDs.
type IDGenerator interface {
	NewSessionID() string
}

type uuidGenerator struct{}

// NewIDGenerator returns the production IDGenerator, backed by
// github.com/google/uuid.
func NewIDGenerator() IDGenerator { return uuidGenerator{} }

func (uuidGenerator) NewSessionID() string { return uuid.NewString() }
