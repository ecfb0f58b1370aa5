// Package resilience provides the typed error kinds from spec.md §7 and a
// small retry helper for the Archive Client, adapted from the teacher's
// internal/core/resilience package (errors.go, error_classifier.go,
// retry.go) to this dispatcher's five error kinds instead of the
// teacher's HTTP/LLM-oriented ones.
package resilience

import (
	"errors"
	"fmt"
)

// Kind discriminates the error categories spec.md §7 defines. The comment
// on each constant says what raises it.
type Kind string

const (
	// ConfigLoad: main or module configuration missing, unparseable, or
	// lacking mandatory keys / a valid TriggerLevel.
	ConfigLoad Kind = "config_load"
	// ModuleLoad: module code file missing or fails to load, symbol
	// missing, constructor fails.
	ModuleLoad Kind = "module_load"
	// FilterError: malformed regex in a filter.
	FilterError Kind = "filter_error"
	// ArchiveIO: any archive-client failure.
	ArchiveIO Kind = "archive_io"
	// ModuleRuntime: exception/error from a module's process call.
	ModuleRuntime Kind = "module_runtime"
)

// Error wraps an underlying cause with the Kind that classifies how the
// caller should react to it (tombstone a module, skip a filter entry,
// log and continue, ...). It is always created with %w-compatible
// wrapping so errors.Is/errors.As/errors.Unwrap work against the cause.
type Error struct {
	Kind Kind
	Op   string // component/operation that raised it, e.g. "module.load"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap constructs an *Error. err == nil returns nil so Wrap can be used
// inline in a return statement without an extra nil check.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, and reports whether one was found.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
