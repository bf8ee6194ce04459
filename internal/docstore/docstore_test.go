package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"receipts/internal/core"
)

func TestRemoteWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := Remote("add project", cause)
	if !errors.Is(err, ErrRemote) || !errors.Is(err, cause) {
		t.Fatalf("expected ErrRemote wrapping cause, got %v", err)
	}
	if got := Remote("x", fmt.Errorf("wrapped: %w", ErrNotFound)); !errors.Is(got, ErrNotFound) || errors.Is(got, ErrRemote) {
		t.Fatalf("ErrNotFound must pass through, got %v", got)
	}
	if got := Remote("add entry", core.ErrUnknownProject); !errors.Is(got, core.ErrUnknownProject) || errors.Is(got, ErrRemote) {
		t.Fatalf("ErrUnknownProject must pass through, got %v", got)
	}
	if !errors.Is(Remote("x", context.Canceled), context.Canceled) {
		t.Fatalf("cause lost")
	}
	if Remote("x", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
