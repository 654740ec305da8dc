package envelope

import (
	"strings"

	"wrap-rpc/traceback"
)

// RemoteError represents a failure that originated in another process. The
// original error type may not exist locally, so only its identity, formatted
// message, and traceback text are reproduced — not its behavior.
//
// RemoteError retains the traceback record and display strings it was
// reconstructed from; wrapping and re-sanitizing it yields the original
// envelope unchanged.
type RemoteError struct {
	record  *traceback.Traceback
	strings []string
	local   error // instance of the resolved local type, or a placeholder
}

// fromRecord rebuilds the caller-facing error from one serialized record.
// The display strings from the wire are kept verbatim.
func fromRecord(rec *traceback.Traceback, display []string) *RemoteError {
	e := &RemoteError{record: rec, strings: display}
	if rec != nil {
		e.local = rec.Type.New(rec.Msg)
	}
	return e
}

// FromTraceback builds a RemoteError from a decoded traceback record.
func FromTraceback(rec *traceback.Traceback) *RemoteError {
	return fromRecord(rec, nil)
}

// FromStrings builds the degraded form carrying only pre-formatted display
// lines, used when no structured traceback is available.
func FromStrings(display []string) *RemoteError {
	return &RemoteError{strings: display}
}

// Error returns the final display line of the remote traceback,
// e.g. "RuntimeError: bad timing".
func (e *RemoteError) Error() string {
	lines := e.Format()
	if len(lines) == 0 {
		return "remote error"
	}
	return strings.TrimRight(lines[len(lines)-1], "\n")
}

// Format returns the remote traceback's display lines: the wire-provided
// strings when present, otherwise lines rendered from the record.
func (e *RemoteError) Format() []string {
	if len(e.strings) > 0 {
		return e.strings
	}
	if e.record != nil {
		return e.record.Format()
	}
	return nil
}

// String is the fully-joined formatted traceback text.
func (e *RemoteError) String() string {
	return strings.Join(e.Format(), "")
}

// TracebackRecord exposes the retained record so re-serialization is a pure
// pass-through rather than a re-derivation.
func (e *RemoteError) TracebackRecord() *traceback.Traceback {
	return e.record
}

// Strings exposes the retained display lines.
func (e *RemoteError) Strings() []string {
	return e.strings
}

// Unwrap exposes an instance of the resolved local error type (or a
// placeholder), so errors.Is and errors.As match remote failures the same
// way they match local ones.
func (e *RemoteError) Unwrap() error {
	return e.local
}
