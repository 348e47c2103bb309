package application

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestValidationError(t *testing.T) {
	t.Parallel()

	vErr := &ValidationError{}
	if vErr.HasErrors() {
		t.Fatalf("empty validation error must report no errors")
	}

	vErr.add("title", "title is required")
	if !vErr.HasErrors() {
		t.Fatalf("expected recorded error to be reported")
	}

	wrapped := fmt.Errorf("create: %w", vErr)
	var target *ValidationError
	if !errors.As(wrapped, &target) {
		t.Fatalf("expected errors.As to unwrap ValidationError")
	}
	if target.FieldErrors["title"] != "title is required" {
		t.Fatalf("unexpected field errors %v", target.FieldErrors)
	}
}

func TestConflictErrorCarriesBorders(t *testing.T) {
	t.Parallel()

	left := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	wrapped := fmt.Errorf("create: %w", &ConflictError{LeftBorder: &left})

	var target *ConflictError
	if !errors.As(wrapped, &target) {
		t.Fatalf("expected errors.As to unwrap ConflictError")
	}
	if target.LeftBorder == nil || !target.LeftBorder.Equal(left) {
		t.Fatalf("expected left border %v, got %v", left, target.LeftBorder)
	}
}
