package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKind_Status(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindAccessDenied, http.StatusForbidden},
		{KindNotRequired, http.StatusLocked},
		{KindComputation, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Status(); got != tt.want {
				t.Errorf("Status() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIs_Wrapped(t *testing.T) {
	err := fmt.Errorf("get topic view: %w", AccessDenied("previous topic not completed", ""))

	if !Is(err, KindAccessDenied) {
		t.Error("Is(KindAccessDenied) = false, want true")
	}
	if Is(err, KindNotFound) {
		t.Error("Is(KindNotFound) = true, want false")
	}
}

func TestNotFound_Unwrap(t *testing.T) {
	base := errors.New("no rows")
	err := NotFound("topic", "t-1", base)

	if !errors.Is(err, base) {
		t.Error("errors.Is(err, base) = false, want true")
	}
	if err.Error() != `not_found: topic "t-1" not found: no rows` {
		t.Errorf("Error() = %q", err.Error())
	}
}
