package traceback

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FormatVersion tags every traceback record on the wire. Decoding rejects any
// other tag outright rather than guessing at an unknown layout.
const FormatVersion = "TracebackException:1.0"

// maxDepth bounds the cause/context recursion in both directions.
// Well-formed chains are shallow; this guard exists because decoded records
// are attacker-reachable data.
const maxDepth = 50

var (
	// ErrUnsupportedFormat is returned when a record carries an unknown
	// format-version tag.
	ErrUnsupportedFormat = errors.New("unsupported traceback record version")

	// ErrChainTooDeep is returned when a cause/context chain exceeds maxDepth,
	// or when a chain loops back on itself.
	ErrChainTooDeep = errors.New("traceback chain too deep")
)

// SyntaxInfo carries the extra source-location fields present only for
// syntax-class errors.
type SyntaxInfo struct {
	Filename  string `json:"filename"`
	Line      int    `json:"lineno"`
	EndLine   int    `json:"end_lineno"`
	Text      string `json:"text"`
	Offset    int    `json:"offset"`
	EndOffset int    `json:"end_offset"`
	Msg       string `json:"msg"`
}

// Traceback is the structured form of one formatted error: its message, type
// identity, stack, optional syntax metadata, and recursively the error that
// caused it (explicit chaining) or was being handled when it occurred
// (implicit chaining). Each node owns its children; the chain is a tree,
// never a graph.
type Traceback struct {
	Cause           *Traceback
	Context         *Traceback
	SuppressContext bool
	Msg             string
	Stack           Stack
	Type            ErrorType
	Syntax          *SyntaxInfo
}

// record is the wire shape of a Traceback. Field names match the Python
// implementation this module interoperates with.
type record struct {
	Type            string      `json:"type"`
	Cause           *record     `json:"__cause__"`
	Context         *record     `json:"__context__"`
	SuppressContext bool        `json:"__suppress_context__"`
	Str             string      `json:"_str"`
	Stack           Stack       `json:"stack"`
	ExcType         ErrorType   `json:"exc_type"`
	SyntaxError     *SyntaxInfo `json:"syntax_error"`
}

// MarshalJSON encodes the full chain in wire form, guarding against cycles
// and runaway depth.
func (t *Traceback) MarshalJSON() ([]byte, error) {
	rec, err := t.toRecord(0, make(map[*Traceback]bool))
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

func (t *Traceback) toRecord(depth int, seen map[*Traceback]bool) (*record, error) {
	if t == nil {
		return nil, nil
	}
	if depth >= maxDepth || seen[t] {
		return nil, ErrChainTooDeep
	}
	seen[t] = true

	cause, err := t.Cause.toRecord(depth+1, seen)
	if err != nil {
		return nil, err
	}
	context, err := t.Context.toRecord(depth+1, seen)
	if err != nil {
		return nil, err
	}
	stack := t.Stack
	if stack == nil {
		stack = Stack{} // the peer always emits a list, never null
	}
	return &record{
		Type:            FormatVersion,
		Cause:           cause,
		Context:         context,
		SuppressContext: t.SuppressContext,
		Str:             t.Msg,
		Stack:           stack,
		ExcType:         t.Type,
		SyntaxError:     t.Syntax,
	}, nil
}

// UnmarshalJSON decodes a wire record, validating the format-version tag of
// every node in the chain and re-resolving each type identity against the
// local registry. A bad tag anywhere aborts the whole decode.
func (t *Traceback) UnmarshalJSON(data []byte) error {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("traceback record: %w", err)
	}
	decoded, err := rec.toTraceback(0)
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}

func (r *record) toTraceback(depth int) (*Traceback, error) {
	if r == nil {
		return nil, nil
	}
	if depth >= maxDepth {
		return nil, ErrChainTooDeep
	}
	if r.Type != FormatVersion {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, r.Type)
	}

	cause, err := r.Cause.toTraceback(depth + 1)
	if err != nil {
		return nil, err
	}
	context, err := r.Context.toTraceback(depth + 1)
	if err != nil {
		return nil, err
	}
	return &Traceback{
		Cause:           cause,
		Context:         context,
		SuppressContext: r.SuppressContext,
		Msg:             r.Str,
		Stack:           r.Stack,
		Type:            Resolve(r.ExcType),
		Syntax:          r.SyntaxError,
	}, nil
}

// Encode serializes the traceback to its wire JSON.
func (t *Traceback) Encode() ([]byte, error) {
	return json.Marshal(t)
}

// Decode parses wire JSON produced by Encode (or by the peer implementation).
func Decode(data []byte) (*Traceback, error) {
	var t Traceback
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
