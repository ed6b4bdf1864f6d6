package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	usernameMinLength = 2
	usernameMaxLength = 20
)

// usernamePattern allows letters, digits, spaces, underscores, and hyphens.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)

var (
	// ErrUsernameEmpty indicates a missing or blank username.
	ErrUsernameEmpty = errors.New("username cannot be empty")
	// ErrUsernameLength indicates a username outside the 2-20 char range.
	ErrUsernameLength = fmt.Errorf("username must be %d-%d characters", usernameMinLength, usernameMaxLength)
	// ErrUsernameCharset indicates a username with disallowed characters.
	ErrUsernameCharset = errors.New("username can only contain letters, numbers, spaces, underscores, and hyphens")
)

// ValidateUsername trims and validates a display name, returning the
// normalized value.
func ValidateUsername(username string) (string, error) {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return "", ErrUsernameEmpty
	}
	if len(trimmed) < usernameMinLength || len(trimmed) > usernameMaxLength {
		return "", ErrUsernameLength
	}
	if !usernamePattern.MatchString(trimmed) {
		return "", ErrUsernameCharset
	}
	return trimmed, nil
}

// ErrColumnInvalid indicates a column index outside the board.
var ErrColumnInvalid = errors.New("column is out of range")

// ValidateColumn rejects column indexes outside [0, cols) before they
// reach any session state.
func ValidateColumn(col, cols int) error {
	if col < 0 || col >= cols {
		return fmt.Errorf("%w: column must be between 0 and %d", ErrColumnInvalid, cols-1)
	}
	return nil
}
