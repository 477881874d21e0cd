package uuidv7

import "github.com/google/uuid"

// New returns a UUIDv7 per RFC 9562. Version and decision identifiers are
// time-ordered so storage scans follow creation order.
func New() (uuid.UUID, error) {
	return uuid.NewV7()
}

// NewString returns a UUIDv7 string.
func NewString() (string, error) {
	u, err := New()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
