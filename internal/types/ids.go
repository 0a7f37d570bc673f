package types

import (
	"time"

	"github.com/google/uuid"
)

// ActionID identifies one journal entry for an executed rule.
// UUIDv7 time-ordering keeps journal inserts clustered in B-tree indexes.
type ActionID string

// NewActionID generates a UUIDv7 action identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewActionID() ActionID {
	return ActionID(uuid.Must(uuid.NewV7()).String())
}

// ParseActionID validates and converts a string to ActionID.
func ParseActionID(s string) (ActionID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return ActionID(s), nil
}

// ActionIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func ActionIDTime(id ActionID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
