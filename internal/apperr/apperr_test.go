package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := New(KindOverlap, "schedules.create", "slot taken")
	err := fmt.Errorf("assign: %w", base)
	if KindOf(err) != KindOverlap {
		t.Fatalf("expected overlap kind, got %q", KindOf(err))
	}
	if !Is(err, KindOverlap) || Is(err, KindNotFound) {
		t.Fatalf("unexpected Is result")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(KindStore, "incidents.get", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cause to be preserved")
	}
	if err.Error() != "incidents.get: STORE_UNAVAILABLE: context deadline exceeded" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if Wrap(KindStore, "x", nil) != nil {
		t.Fatalf("wrapping nil must return nil")
	}
}

func TestKindOfUntyped(t *testing.T) {
	if KindOf(errors.New("boom")) != "" {
		t.Fatalf("untyped errors have no kind")
	}
}
