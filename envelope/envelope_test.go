package envelope

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wrap-rpc/traceback"
)

func chainedError() error {
	return traceback.New("bad timing").CausedBy(traceback.New("division by zero"))
}

func TestPlainValuesPassThrough(t *testing.T) {
	for _, v := range []any{nil, 42, "hello dolly", []any{1, 2}, map[string]any{"a": 1}} {
		got, err := Unwrap(v)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestWrapResultRoundTrip(t *testing.T) {
	env := WrapResult("hello dolly")

	assert.True(t, IsEnvelope(env))
	assert.True(t, env.Success)

	got, err := Unwrap(env)
	require.NoError(t, err)
	assert.Equal(t, "hello dolly", got)
}

func TestObjectsWithoutTagAreNotEnvelopes(t *testing.T) {
	v := map[string]any{"success": true, "result": "impostor"}
	assert.False(t, IsEnvelope(v))

	got, err := Unwrap(v)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestLiveUnwrapPreservesIdentity(t *testing.T) {
	original := chainedError()
	env := WrapError(original)

	assert.True(t, IsEnvelope(env))
	assert.False(t, env.Success)

	_, err := Unwrap(env)
	require.Error(t, err)
	assert.Same(t, original, err, "pre-sanitize unwrap must yield the original error object")
}

func TestSanitizeIdempotent(t *testing.T) {
	env := WrapError(chainedError()).Sanitize()

	first, err := json.Marshal(env)
	require.NoError(t, err)

	second, err := json.Marshal(env.Sanitize())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSanitizeLeavesSuccessUntouched(t *testing.T) {
	env := WrapResult(7)
	assert.Same(t, env, env.Sanitize())
	assert.Equal(t, 7, env.Result)
}

func TestLiveEnvelopeRefusesToMarshal(t *testing.T) {
	env := WrapError(errors.New("still live"))

	_, err := json.Marshal(env)
	require.Error(t, err)
	assert.ErrorContains(t, err, ErrNotSanitized.Error())
}

func TestSanitizedUnwrapYieldsRemoteError(t *testing.T) {
	env := WrapError(chainedError()).Sanitize()

	_, err := Unwrap(env)
	require.Error(t, err)

	var re *RemoteError
	require.ErrorAs(t, err, &re)

	text := re.String()
	zero := strings.Index(text, "division by zero")
	bad := strings.Index(text, "bad timing")
	require.GreaterOrEqual(t, zero, 0)
	require.GreaterOrEqual(t, bad, 0)
	assert.Less(t, zero, bad, "cause must appear before the final exception")
}

func TestUnwrapDecodedWireEnvelope(t *testing.T) {
	wire, err := json.Marshal(WrapError(chainedError()).Sanitize())
	require.NoError(t, err)

	// the transport hands the receiver a decoded JSON object, not a struct
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(wire, &decoded))
	require.True(t, IsEnvelope(decoded))

	_, uerr := Unwrap(decoded)
	var re *RemoteError
	require.ErrorAs(t, uerr, &re)
	assert.Contains(t, re.String(), "bad timing")
}

func TestRewrapFixpoint(t *testing.T) {
	env := WrapError(chainedError()).Sanitize()
	original, err := json.Marshal(env)
	require.NoError(t, err)

	_, uerr := Unwrap(env)
	var re *RemoteError
	require.ErrorAs(t, uerr, &re)

	rewrapped, err := json.Marshal(WrapError(re).Sanitize())
	require.NoError(t, err)
	assert.Equal(t, string(original), string(rewrapped),
		"re-sanitizing an unwrapped RemoteError must be a pure pass-through")
}

func TestRewrapFixpointAcrossTheWire(t *testing.T) {
	wire, err := json.Marshal(WrapError(chainedError()).Sanitize())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(wire, &decoded))
	_, uerr := Unwrap(decoded)
	var re *RemoteError
	require.ErrorAs(t, uerr, &re)

	rewrapped, err := json.Marshal(WrapError(re).Sanitize())
	require.NoError(t, err)
	assert.JSONEq(t, string(wire), string(rewrapped))
}

func TestStringsOnlyFailure(t *testing.T) {
	env := &Envelope{
		Version: Version,
		Success: false,
		Errors:  []ErrorRecord{{Strings: []string{"something awful happened\n"}}},
	}

	_, err := Unwrap(env)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Nil(t, re.TracebackRecord())
	assert.Equal(t, "something awful happened", re.Error())
}

func TestFailureEnvelopeWithNoRecords(t *testing.T) {
	env := &Envelope{Version: Version, Success: false}
	_, err := Unwrap(env)
	assert.Error(t, err, "unwrapping a failure must never return a value")
}

func TestUnwrapRejectsUnknownTracebackVersion(t *testing.T) {
	wire := `{"_wrapped_response_": "1.0", "success": false, "errors": [{
	  "python_traceback_exception": {"type": "TracebackException:9.9",
	    "__cause__": null, "__context__": null, "__suppress_context__": false,
	    "_str": "x", "stack": [], "exc_type": {"module": "", "name": "E", "repr": ""},
	    "syntax_error": null},
	  "error_strings": ["E: x\n"]}]}`

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(wire), &decoded))

	_, err := Unwrap(decoded)
	require.Error(t, err)
	assert.ErrorIs(t, err, traceback.ErrUnsupportedFormat)
}

type quotaError struct{ msg string }

func (e *quotaError) Error() string { return e.msg }

func TestResolvedRemoteTypeMatchesWithErrorsAs(t *testing.T) {
	traceback.RegisterType("wrap-rpc/envelope", "quotaError", func(msg string) error {
		return &quotaError{msg: msg}
	})

	wire, err := json.Marshal(WrapError(&quotaError{msg: "quota exhausted"}).Sanitize())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(wire, &decoded))
	_, uerr := Unwrap(decoded)

	var qe *quotaError
	require.ErrorAs(t, uerr, &qe, "a registered type must resolve to a real local instance")
	assert.Equal(t, "quota exhausted", qe.msg)
}

func TestUnresolvedRemoteTypeYieldsPlaceholder(t *testing.T) {
	rec := &traceback.Traceback{
		Msg:  "log jam",
		Type: traceback.Resolve(traceback.ErrorType{Module: "lumber", Name: "LumberError"}),
	}

	re := FromTraceback(rec)
	var ph *traceback.PlaceholderError
	require.ErrorAs(t, re, &ph)
	assert.Equal(t, "LumberError", ph.Name)
}
