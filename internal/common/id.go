package common

import (
	"github.com/google/uuid"
)

// NewProjectID generates a short unique project identifier.
// Format: first 8 hex characters of a UUID, enough to keep
// workspace directory names readable.
func NewProjectID() string {
	return uuid.New().String()[:8]
}

// NewCallID generates a unique call identifier with the "call_" prefix
// Format: call_<uuid>
func NewCallID() string {
	return "call_" + uuid.New().String()
}
