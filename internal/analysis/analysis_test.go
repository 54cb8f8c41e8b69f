package analysis

import (
	"errors"
	"testing"
	"time"
)

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	tests := map[Status]bool{
		StatusNotStarted: false,
		StatusRunning:    false,
		StatusCompleted:  true,
		StatusFailed:     true,
		Status("other"):  false,
	}
	for status, want := range tests {
		if got := status.Terminal(); got != want {
			t.Fatalf("%q.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestServiceErrorUnwrapsToKind(t *testing.T) {
	t.Parallel()

	err := NewServiceError("submit", 429, "TooManyRequests", "slow down", ErrRateLimited, 3*time.Second)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err.RetryAfter() != 3*time.Second {
		t.Fatalf("unexpected retry after %v", err.RetryAfter())
	}
	if got := err.Error(); got != "submit: http status 429 TooManyRequests: slow down" {
		t.Fatalf("unexpected message %q", got)
	}
}
