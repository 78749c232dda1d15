// Package ragerr defines the error taxonomy shared by the ingestion and query paths.
package ragerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide recovery per document or per request.
type Kind string

const (
	KindParse                  Kind = "parse_error"
	KindInvalidConfiguration   Kind = "invalid_configuration"
	KindEmbedding              Kind = "embedding_error"
	KindEmbeddingSpaceMismatch Kind = "embedding_space_mismatch"
	KindGeneration             Kind = "generation_error"
)

// Sentinels for errors.Is checks.
var (
	ErrParse                  = errors.New("parse error")
	ErrInvalidConfiguration   = errors.New("invalid configuration")
	ErrEmbedding              = errors.New("embedding error")
	ErrEmbeddingSpaceMismatch = errors.New("embedding space mismatch")
	ErrGeneration             = errors.New("generation error")
)

var sentinels = map[Kind]error{
	KindParse:                  ErrParse,
	KindInvalidConfiguration:   ErrInvalidConfiguration,
	KindEmbedding:              ErrEmbedding,
	KindEmbeddingSpaceMismatch: ErrEmbeddingSpaceMismatch,
	KindGeneration:             ErrGeneration,
}

// Error carries the kind, the operation that failed, and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Parse wraps err as a ParseError. An err that is already a ParseError is returned as is.
func Parse(op string, err error) error {
	if errors.Is(err, ErrParse) {
		return err
	}
	return newError(KindParse, op, err)
}

// InvalidConfiguration builds an InvalidConfiguration error from a formatted message.
func InvalidConfiguration(op, format string, args ...any) error {
	return newError(KindInvalidConfiguration, op, fmt.Errorf(format, args...))
}

// Embedding wraps err as an EmbeddingError unless it already carries an embedding kind.
func Embedding(op string, err error) error {
	if errors.Is(err, ErrEmbedding) || errors.Is(err, ErrEmbeddingSpaceMismatch) {
		return err
	}
	return newError(KindEmbedding, op, err)
}

// SpaceMismatch reports vectors of dimension got where want was expected.
func SpaceMismatch(op string, want, got int) error {
	return newError(KindEmbeddingSpaceMismatch, op, fmt.Errorf("expected dimension %d, got %d", want, got))
}

// Generation wraps err as a GenerationError.
func Generation(op string, err error) error {
	if errors.Is(err, ErrGeneration) {
		return err
	}
	return newError(KindGeneration, op, err)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
