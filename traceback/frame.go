// Package traceback implements the serializable traceback record that travels
// inside failure envelopes: stack frames, error-type identity, and the
// recursive cause/context chain, all encoded as plain JSON so any
// value-preserving transport can carry them.
//
// The wire layout is fixed (see the envelope package) and interoperates with
// the Python implementation this module talks to.
package traceback

import (
	"encoding/json"
	"fmt"
)

// Frame is one stack frame of a captured traceback.
// Locals is a best-effort snapshot of already-stringified values; it is only
// populated when a caller attaches it explicitly (never captured implicitly,
// since locals may contain sensitive data).
type Frame struct {
	Filename   string
	Line       int
	EndLine    int // 0 when unknown
	Function   string
	SourceLine string
	Locals     map[string]string
}

// Stack is an ordered frame list, outermost call first.
// Serialization preserves order exactly; nothing is reordered or deduplicated.
type Stack []Frame

// MarshalJSON encodes the frame in its wire form:
// a 5-element array [filename, lineno, function, sourceLine, locals],
// extended with a 6th element for the end line when one is known.
func (f Frame) MarshalJSON() ([]byte, error) {
	fields := []any{f.Filename, f.Line, f.Function, f.SourceLine, f.Locals}
	if f.EndLine != 0 {
		fields = append(fields, f.EndLine)
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes the 5- or 6-element array form.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("frame record: %w", err)
	}
	if len(fields) != 5 && len(fields) != 6 {
		return fmt.Errorf("frame record: expected 5 or 6 elements, got %d", len(fields))
	}

	targets := []any{&f.Filename, &f.Line, &f.Function, &f.SourceLine, &f.Locals}
	if len(fields) == 6 {
		targets = append(targets, &f.EndLine)
	}
	for i, raw := range fields {
		if err := json.Unmarshal(raw, targets[i]); err != nil {
			return fmt.Errorf("frame record element %d: %w", i, err)
		}
	}
	return nil
}
