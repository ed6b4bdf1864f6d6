// Package id generates and validates the identifiers used for sessions
// and participants.
//
// Identifiers are UUIDv4 strings. Inbound ids arriving over the wire are
// validated with Valid before they reach any session state.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID generates a random UUIDv4 identifier.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return value.String(), nil
}

// Valid reports whether value parses as a UUID.
func Valid(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
