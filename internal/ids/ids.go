// Package ids generates task and row identifiers.
package ids

import "github.com/google/uuid"

// New returns a random UUID string.
func New() string {
	return uuid.New().String()
}
