package core

import (
	"errors"
	"fmt"
)

// ConfigurationError reports an invalid layout.
type ConfigurationError struct {
	Table  string // Table being built, if known
	Field  string // Offending layout field
	Value  int    // Offending value
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("invalid layout for table %q: %s=%d %s", e.Table, e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid layout: %s=%d %s", e.Field, e.Value, e.Reason)
}

// NotFoundError reports a table name missing from the spreadsheet metadata.
type NotFoundError struct {
	SpreadsheetID string
	Table         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("table not found: %q in spreadsheet %s", e.Table, e.SpreadsheetID)
}

// TransportError wraps a failure returned by the [Transport]. The original
// error stays reachable through errors.Is and errors.As.
type TransportError struct {
	Op  string // "metadata", "values" or "batch_values"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HookError wraps an error returned by a validator or formatter hook.
type HookError struct {
	Stage  string // "validator" or "formatter"
	Table  string
	Column string
	Line   int
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook failed: table %q, column %q, line %d: %v", e.Stage, e.Table, e.Column, e.Line, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is or wraps a [NotFoundError].
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConfiguration reports whether err is or wraps a [ConfigurationError].
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsTransport reports whether err is or wraps a [TransportError].
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
