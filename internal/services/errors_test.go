package services

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestWrapPreservesMarkerAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrIO, "propagation", "rewrite", "write en.srt", cause)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO marker, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain, got %v", err)
	}
	if !strings.Contains(err.Error(), "propagation: rewrite: write en.srt") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := Wrap(nil, "", "", "", nil)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "operation failed") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Wrap(ErrValidation, "a", "b", "", nil), "validation"},
		{Wrap(ErrNotFound, "a", "b", "", nil), "not_found"},
		{Wrap(ErrPrecondition, "a", "b", "", nil), "precondition"},
		{Wrap(ErrCanceled, "a", "b", "", context.Canceled), "canceled"},
		{errors.New("boom"), "io"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := WithEpisodeID(context.Background(), "S01E07")
	ctx = WithRunID(ctx, "S01E07:2026-01-01T00:00:00Z")
	ctx = WithRequestID(ctx, "req-1")

	if v, ok := EpisodeIDFromContext(ctx); !ok || v != "S01E07" {
		t.Fatalf("episode id = %q, %v", v, ok)
	}
	if v, ok := RunIDFromContext(ctx); !ok || v != "S01E07:2026-01-01T00:00:00Z" {
		t.Fatalf("run id = %q, %v", v, ok)
	}
	if v, ok := RequestIDFromContext(ctx); !ok || v != "req-1" {
		t.Fatalf("request id = %q, %v", v, ok)
	}
	if same := WithRunID(ctx, ""); same != ctx {
		t.Fatal("expected empty run id to leave context untouched")
	}
}
