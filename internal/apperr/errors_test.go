package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindAuth, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindLimitExceeded, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Status(); got != tt.want {
				t.Errorf("Status() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSentinelMatchesCopies(t *testing.T) {
	sentinel := Conflict("already_member", "already a member")
	copied := sentinel.WithMessage("already a member of %s", "Team")

	if !errors.Is(copied, sentinel) {
		t.Error("copy with a new message should still match the sentinel")
	}
	if copied.Message == sentinel.Message {
		t.Error("WithMessage should not mutate the sentinel")
	}

	wrapped := fmt.Errorf("join: %w", copied)
	if !errors.Is(wrapped, sentinel) {
		t.Error("wrapped copy should match the sentinel")
	}
	if errors.Is(wrapped, Conflict("already_forgiven", "x")) {
		t.Error("different codes must not match")
	}
}

func TestFromTreatsUnknownAsInternal(t *testing.T) {
	cause := errors.New("socket closed")
	e := From(fmt.Errorf("find user: %w", cause))

	if e.Kind != KindInternal {
		t.Fatalf("Kind = %v, want internal", e.Kind)
	}
	if e.Message != MessageInternal {
		t.Errorf("internal message leaked detail: %q", e.Message)
	}
	if !errors.Is(e, cause) {
		t.Error("internal error should unwrap to the cause")
	}
	if From(nil) != nil {
		t.Error("From(nil) should be nil")
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NotFound("group_not_found", "missing"))
	if KindOf(err) != KindNotFound {
		t.Errorf("KindOf = %v, want not_found", KindOf(err))
	}
}
