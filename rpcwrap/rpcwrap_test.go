package rpcwrap

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wrap-rpc/envelope"
	"wrap-rpc/traceback"
)

// problemHandler mimics a handler that fails while computing: the final
// error is explicitly chained from the one that triggered it.
func problemHandler() (any, error) {
	return nil, traceback.New("bad timing").CausedBy(traceback.New("division by zero"))
}

func okHandler() (any, error) {
	return "notreached", nil
}

func TestHandleCallSuccess(t *testing.T) {
	env, err := HandleCall(nil, okHandler)
	require.NoError(t, err)
	require.True(t, envelope.IsEnvelope(env))
	assert.True(t, env.Success)

	result, err := envelope.Unwrap(env)
	require.NoError(t, err)
	assert.Equal(t, "notreached", result)
}

func TestHandleCallFailure(t *testing.T) {
	var reported error
	env, err := HandleCall(func(e error) { reported = e }, problemHandler)
	require.NoError(t, err, "handlers return, they never re-raise")
	require.NotNil(t, reported, "the error callback must see the live error")
	assert.Contains(t, reported.Error(), "bad timing")

	require.True(t, envelope.IsEnvelope(env))
	assert.False(t, env.Success)

	// the returned envelope is already sanitized: it must marshal cleanly
	_, merr := json.Marshal(env)
	assert.NoError(t, merr)
}

func TestHandleCallNilCallback(t *testing.T) {
	env, err := HandleCall(nil, problemHandler)
	require.NoError(t, err)
	assert.False(t, env.Success)
}

func TestHandleCallContextCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var reported error
	env, err := HandleCallContext(ctx, func(e error) { reported = e }, func(ctx context.Context) (any, error) {
		return nil, ctx.Err()
	})

	require.ErrorIs(t, err, context.Canceled, "cancellation must not be wrapped")
	assert.Nil(t, env)
	assert.Nil(t, reported, "cancellation is not reported as a handler failure")
}

func TestCallUnwrapsFailure(t *testing.T) {
	env, err := HandleCall(nil, problemHandler)
	require.NoError(t, err)

	_, err = Call(func() (any, error) { return env, nil })
	require.Error(t, err)

	var re *envelope.RemoteError
	require.ErrorAs(t, err, &re)

	text := re.String()
	zero := strings.Index(text, "division by zero")
	bad := strings.Index(text, "bad timing")
	require.GreaterOrEqual(t, zero, 0)
	require.GreaterOrEqual(t, bad, 0)
	assert.Less(t, zero, bad, "chain order: context/cause before the final exception")
}

func TestCallPassesPlainValuesThrough(t *testing.T) {
	got, err := Call(func() (any, error) { return "plain", nil })
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}

func TestWrappedHandlerAndCallerCompose(t *testing.T) {
	handler := WrapHandler(nil, func(ctx context.Context) (any, error) {
		return problemHandler()
	})
	caller := WrapCaller(handler)

	_, err := caller(context.Background())
	require.Error(t, err)

	var re *envelope.RemoteError
	assert.ErrorAs(t, err, &re)
}

func TestUnsanitizedSameProcessRoundTrip(t *testing.T) {
	original := traceback.New("in-process failure")
	env := envelope.WrapError(original)

	_, err := Call(func() (any, error) { return env, nil })
	assert.Same(t, original, err, "same-process unwrap yields the identical error object")
}

func TestRewrapFixpointThroughAdapters(t *testing.T) {
	w1, err := HandleCall(nil, problemHandler)
	require.NoError(t, err)
	first, err := json.Marshal(w1)
	require.NoError(t, err)

	_, uerr := Call(func() (any, error) { return w1, nil })
	var re *envelope.RemoteError
	require.ErrorAs(t, uerr, &re)

	w2, err := HandleCall(nil, func() (any, error) { return nil, re })
	require.NoError(t, err)
	second, err := json.Marshal(w2)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}
