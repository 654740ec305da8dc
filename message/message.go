// Package message defines the RPC message structure exchanged between client
// and server.
//
// RPCMessage carries the data for a single request or response. Unlike
// frameworks that smuggle failures through a bare error string, every
// response payload here is a wrapped-response envelope: success envelopes
// carry the reply, failure envelopes carry the full serialized traceback of
// whatever the handler raised.
package message

import (
	"encoding/json"

	"wrap-rpc/envelope"
)

// RPCMessage is one request or response.
//
//   - On request:  ServiceMethod is set, Payload holds the serialized args.
//   - On response: Payload holds the JSON-encoded envelope.
type RPCMessage struct {
	ServiceMethod string // Format: "ServiceName.MethodName", e.g. "Arith.Add"
	Payload       []byte
}

// Fault builds a response whose payload is a strings-only failure envelope.
// Used by layers that must manufacture a failure from a bare message —
// middleware timeouts, broken transports — where no live error carrying a
// traceback exists.
func Fault(serviceMethod, text string) *RPCMessage {
	env := &envelope.Envelope{
		Version: envelope.Version,
		Success: false,
		Errors:  []envelope.ErrorRecord{{Strings: []string{text}}},
	}
	payload, err := json.Marshal(env)
	if err != nil {
		// a strings-only envelope always marshals
		payload = []byte(`{"_wrapped_response_":"1.0","success":false,"errors":[{"error_strings":["encode failure"]}]}`)
	}
	return &RPCMessage{ServiceMethod: serviceMethod, Payload: payload}
}

// FaultText reports whether the message payload is a failure envelope, and
// if so returns its first display line.
func FaultText(m *RPCMessage) (string, bool) {
	if m == nil || len(m.Payload) == 0 {
		return "", false
	}
	var env envelope.Envelope
	if err := json.Unmarshal(m.Payload, &env); err != nil {
		return "", false
	}
	if env.Version == "" || env.Success || len(env.Errors) == 0 {
		return "", false
	}
	if s := env.Errors[0].Strings; len(s) > 0 {
		return s[0], true
	}
	if tb := env.Errors[0].Traceback; tb != nil {
		return tb.Type.String() + ": " + tb.Msg, true
	}
	return "", true
}
