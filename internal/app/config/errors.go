package config

import "fmt"

// ErrKind classifies a configuration failure.
type ErrKind string

const (
	ErrIO     ErrKind = "io"
	ErrSyntax ErrKind = "syntax"
	ErrSchema ErrKind = "schema"
)

// Error is a recoverable configuration failure: the previous snapshot
// stays active and the failure is surfaced to the engine as a
// structured event.
type Error struct {
	Kind ErrKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s error (%s): %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
