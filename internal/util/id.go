package util

import "github.com/google/uuid"

// NewID returns a globally unique identifier for entities and jobs.
func NewID() string {
	return uuid.NewString()
}
