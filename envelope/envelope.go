// Package envelope implements the versioned success/failure wrapper that
// carries call results over transports which only move plain serializable
// values. Ordinary results pass through untouched; failures travel as a
// tagged envelope holding a structured traceback record that the receiving
// process re-raises as a RemoteError.
//
// Wire form:
//
//	{"_wrapped_response_": "1.0", "success": true,  "result": ...}
//	{"_wrapped_response_": "1.0", "success": false, "errors": [{...}]}
//
// Any value without the version tag is a plain passthrough result, so genuine
// objects are never misidentified as envelopes.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"wrap-rpc/traceback"
)

// Version tags every envelope on the wire.
const Version = "1.0"

const versionKey = "_wrapped_response_"

// ErrNotSanitized is returned when a failure envelope still holding a live
// error value is marshaled. Live errors are valid only in-process; Sanitize
// must run before an envelope crosses the transport boundary.
var ErrNotSanitized = errors.New("envelope holds a live error; call Sanitize before encoding")

// Envelope is the tagged success/failure wrapper.
type Envelope struct {
	Version string
	Success bool
	Result  any
	Errors  []ErrorRecord
}

// ErrorRecord is one failure entry. Exactly one of the three shapes is
// populated: a live error (same-process only), a serialized traceback with
// redundant display strings, or display strings alone (the degraded form used
// when no structured traceback exists).
type ErrorRecord struct {
	Exception error                // live; never marshaled
	Traceback *traceback.Traceback // serialized form
	Strings   []string             // pre-formatted display lines
}

// WrapResult wraps any value as a success envelope.
func WrapResult(result any) *Envelope {
	return &Envelope{Version: Version, Success: true, Result: result}
}

// WrapError wraps a live error as a failure envelope. The error object is
// referenced unchanged; unwrapping in the same process yields it back
// identically. Only the first record is ever interpreted — the list shape is
// a forward-compatible extension point.
func WrapError(err error) *Envelope {
	return &Envelope{
		Version: Version,
		Success: false,
		Errors:  []ErrorRecord{{Exception: err}},
	}
}

// Sanitize converts every live error record into its serialized form so the
// envelope can cross the transport boundary. Success envelopes and
// already-sanitized records pass through unchanged, so Sanitize is
// idempotent. A RemoteError re-sanitizes to the exact record it was
// reconstructed from, never a re-derivation.
func (e *Envelope) Sanitize() *Envelope {
	if e.Success {
		return e
	}
	for i, rec := range e.Errors {
		e.Errors[i] = rec.sanitize()
	}
	return e
}

func (r ErrorRecord) sanitize() ErrorRecord {
	if r.Exception == nil {
		return r
	}
	if re, ok := r.Exception.(*RemoteError); ok {
		return ErrorRecord{Traceback: re.record, Strings: re.strings}
	}
	tb := traceback.FromError(r.Exception)
	return ErrorRecord{Traceback: tb, Strings: tb.Format()}
}

// IsEnvelope reports whether a value is a wrapped response, either as the
// struct itself or as a decoded JSON object carrying the version tag.
func IsEnvelope(v any) bool {
	switch val := v.(type) {
	case *Envelope:
		return val != nil
	case Envelope:
		return true
	case map[string]any:
		_, ok := val[versionKey]
		return ok
	default:
		return false
	}
}

// Unwrap resolves a potentially-wrapped response. Plain values come back
// as-is; success envelopes yield their result; failure envelopes always
// yield a non-nil error — the original live error when still in-process,
// otherwise a RemoteError reconstructed from the first error record.
func Unwrap(v any) (any, error) {
	switch val := v.(type) {
	case *Envelope:
		return val.unwrap()
	case Envelope:
		return val.unwrap()
	case map[string]any:
		if _, ok := val[versionKey]; !ok {
			return v, nil
		}
		env, err := fromMap(val)
		if err != nil {
			return nil, err
		}
		return env.unwrap()
	default:
		return v, nil
	}
}

func (e *Envelope) unwrap() (any, error) {
	if e.Success {
		return e.Result, nil
	}
	if len(e.Errors) == 0 {
		return nil, errors.New("failure envelope carries no error records")
	}
	rec := e.Errors[0]
	switch {
	case rec.Exception != nil:
		return nil, rec.Exception
	case rec.Traceback != nil:
		return nil, fromRecord(rec.Traceback, rec.Strings)
	default:
		return nil, FromStrings(rec.Strings)
	}
}

// fromMap rebuilds an Envelope from a decoded JSON object, running the full
// validated decode path (bad traceback version tags abort here).
func fromMap(m map[string]any) (*Envelope, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("re-encode wrapped response: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

type wireEnvelope struct {
	Version string          `json:"_wrapped_response_"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Errors  []ErrorRecord   `json:"errors,omitempty"`
}

// MarshalJSON encodes the envelope in wire form. Failure envelopes must be
// sanitized first; a live error record fails the encode.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	if e.Success {
		result, err := json.Marshal(e.Result)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			Version string          `json:"_wrapped_response_"`
			Success bool            `json:"success"`
			Result  json.RawMessage `json:"result"`
		}{e.Version, true, result})
	}
	return json.Marshal(struct {
		Version string        `json:"_wrapped_response_"`
		Success bool          `json:"success"`
		Errors  []ErrorRecord `json:"errors"`
	}{e.Version, false, e.Errors})
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Version = w.Version
	e.Success = w.Success
	e.Errors = w.Errors
	e.Result = nil
	if w.Success && len(w.Result) > 0 {
		if err := json.Unmarshal(w.Result, &e.Result); err != nil {
			return err
		}
	}
	return nil
}

type wireErrorRecord struct {
	Traceback *traceback.Traceback `json:"python_traceback_exception,omitempty"`
	Strings   []string             `json:"error_strings,omitempty"`
}

func (r ErrorRecord) MarshalJSON() ([]byte, error) {
	if r.Exception != nil {
		return nil, ErrNotSanitized
	}
	return json.Marshal(wireErrorRecord{Traceback: r.Traceback, Strings: r.Strings})
}

func (r *ErrorRecord) UnmarshalJSON(data []byte) error {
	var w wireErrorRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.Exception = nil
	r.Traceback = w.Traceback
	r.Strings = w.Strings
	return nil
}
