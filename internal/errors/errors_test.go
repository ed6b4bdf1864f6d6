package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestGetCode(t *testing.T) {
	coded := New(CodeColumnFull, "column is full")
	if got := GetCode(coded); got != CodeColumnFull {
		t.Fatalf("GetCode = %q, want %q", got, CodeColumnFull)
	}

	wrapped := fmt.Errorf("submit move: %w", coded)
	if got := GetCode(wrapped); got != CodeColumnFull {
		t.Fatalf("GetCode through wrap = %q, want %q", got, CodeColumnFull)
	}

	if got := GetCode(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("GetCode for plain error = %q, want %q", got, CodeUnknown)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(CodeSessionNotFound, "game not found", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to satisfy errors.Is")
	}
	if err.Error() != "game not found" {
		t.Fatalf("Error() = %q, want user-facing message", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeUsernameInvalid, http.StatusBadRequest},
		{CodeColumnFull, http.StatusConflict},
		{CodeMoveInProgress, http.StatusTooManyRequests},
		{CodeSessionNotFound, http.StatusNotFound},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Fatalf("HTTPStatus(%s) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(New(CodeNotYourTurn, "not your turn")); got != "not your turn" {
		t.Fatalf("UserMessage = %q", got)
	}
	if got := UserMessage(stderrors.New("internal detail")); got != "an unexpected error occurred" {
		t.Fatalf("UserMessage for plain error = %q", got)
	}
}
