// Package failure classifies pipeline errors so callers can decide, per
// kind, whether to skip a link, skip a source, or abort the run.
package failure

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a pipeline failure.
type Kind int

const (
	// Unknown is reported for errors that carry no kind.
	Unknown Kind = iota
	// Network covers connect, timeout, and non-2xx responses.
	Network
	// Parse covers HTML and PDF parse errors.
	Parse
	// Persistence covers write or read errors on a specific batch or row.
	Persistence
	// Connection covers opening storage and initializing the schema. It is
	// the only kind that aborts a run.
	Connection
)

func (k Kind) String() string {
	switch k {
	case Network:
		return "network"
	case Parse:
		return "parse"
	case Persistence:
		return "persistence"
	case Connection:
		return "connection"
	default:
		return "unknown"
	}
}

// Error is a failure of a given kind raised by operation Op, optionally
// about URL.
type Error struct {
	Kind Kind
	Op   string
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s failure in %s (%s): %v", e.Kind, e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s failure in %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err as a failure of the given kind. A nil err yields nil.
func New(kind Kind, op, url string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, URL: url, Err: err}
}

// KindOf returns the kind of the outermost failure in err's chain, or
// Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return Is(err, Connection)
}
