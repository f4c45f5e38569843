package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("summarize: %w", EmptyText("summarizer"))
	if !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected empty text kind, got %v", err)
	}
	if errors.Is(err, ErrValidation) {
		t.Fatalf("empty text must not match validation")
	}
}

func TestDependencyClassifiesDeadline(t *testing.T) {
	err := Dependency("fetch", fmt.Errorf("get: %w", context.DeadlineExceeded))
	if KindOf(err) != KindDependencyTimeout {
		t.Fatalf("kind = %s, want %s", KindOf(err), KindDependencyTimeout)
	}

	err = Dependency("fetch", errors.New("connection refused"))
	if KindOf(err) != KindDependencyFailure {
		t.Fatalf("kind = %s, want %s", KindOf(err), KindDependencyFailure)
	}
}

func TestDependencyKeepsClassifiedErrors(t *testing.T) {
	inner := EmptyText("fetch")
	if got := Dependency("pipeline", inner); !errors.Is(got, ErrEmptyText) {
		t.Fatalf("classified error was rewrapped: %v", got)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("plain errors should be internal")
	}
}
