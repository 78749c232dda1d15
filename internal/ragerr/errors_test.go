package ragerr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesOwnSentinelOnly(t *testing.T) {
	err := Parse("parse report.pdf", errors.New("bad xref"))
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	if errors.Is(err, ErrEmbedding) {
		t.Errorf("parse error should not match ErrEmbedding")
	}
}

func TestError_UnwrapsCause(t *testing.T) {
	err := Generation("respond", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected cause to be reachable, got %v", err)
	}
	if !errors.Is(err, ErrGeneration) {
		t.Errorf("expected ErrGeneration, got %v", err)
	}
}

func TestError_WrappedByFmt(t *testing.T) {
	inner := SpaceMismatch("search", 3, 4)
	err := fmt.Errorf("query: %w", inner)
	if KindOf(err) != KindEmbeddingSpaceMismatch {
		t.Errorf("expected kind %q, got %q", KindEmbeddingSpaceMismatch, KindOf(err))
	}
	if !errors.Is(err, ErrEmbeddingSpaceMismatch) {
		t.Errorf("expected ErrEmbeddingSpaceMismatch through fmt wrap")
	}
}

func TestEmbedding_KeepsMismatchKind(t *testing.T) {
	err := Embedding("index", SpaceMismatch("index", 8, 4))
	if KindOf(err) != KindEmbeddingSpaceMismatch {
		t.Errorf("expected mismatch kind preserved, got %q", KindOf(err))
	}
}

func TestParse_DoesNotDoubleWrap(t *testing.T) {
	first := Parse("validate", errors.New("negative page"))
	second := Parse("chunk", first)
	if second != first {
		t.Errorf("expected the same error back, got %v", second)
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if k := KindOf(errors.New("plain")); k != "" {
		t.Errorf("expected empty kind, got %q", k)
	}
}
