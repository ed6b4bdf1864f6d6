// Package errors provides structured error handling for the game service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors, rejected before touching any session.
	CodeUsernameInvalid Code = "USERNAME_INVALID"
	CodeColumnInvalid   Code = "COLUMN_INVALID"
	CodeGameIDInvalid   Code = "GAME_ID_INVALID"
	CodePlayerIDInvalid Code = "PLAYER_ID_INVALID"

	// State errors, rejected with session state unchanged.
	CodeSessionNotFound    Code = "SESSION_NOT_FOUND"
	CodeSessionNotWaiting  Code = "SESSION_NOT_WAITING"
	CodeSessionNotActive   Code = "SESSION_NOT_ACTIVE"
	CodeSessionTerminal    Code = "SESSION_TERMINAL"
	CodeUnknownParticipant Code = "UNKNOWN_PARTICIPANT"
	CodeNotYourTurn        Code = "NOT_YOUR_TURN"
	CodeColumnFull         Code = "COLUMN_FULL"
	CodeMoveInProgress     Code = "MOVE_IN_PROGRESS"

	// Storage errors.
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes for the REST surface.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUsernameInvalid,
		CodeColumnInvalid,
		CodeGameIDInvalid,
		CodePlayerIDInvalid:
		return http.StatusBadRequest

	case CodeSessionNotWaiting,
		CodeSessionNotActive,
		CodeSessionTerminal,
		CodeNotYourTurn,
		CodeColumnFull:
		return http.StatusConflict

	case CodeMoveInProgress:
		return http.StatusTooManyRequests

	case CodeSessionNotFound,
		CodeUnknownParticipant,
		CodeNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
