// Package transport implements the client-side transport with multiplexing
// and heartbeat.
//
// ClientTransport runs many concurrent RPC calls over one TCP connection:
// each request gets a unique sequence number, and a background recvLoop
// routes each response to the caller waiting on that sequence.
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop:  ←── response(seq=2) → pending[2] chan → goroutine-2 wakes up
package transport

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"wrap-rpc/codec"
	"wrap-rpc/message"
	"wrap-rpc/protocol"
)

// ClientTransport manages one multiplexed connection.
type ClientTransport struct {
	conn    net.Conn
	codec   codec.CodecType
	seq     uint32     // monotonically increasing, protected by sending
	pending sync.Map   // map[uint32]chan *message.RPCMessage
	sending sync.Mutex // writes must be serialized or frames interleave
}

// NewClientTransport starts the receive and heartbeat loops for conn.
func NewClientTransport(conn net.Conn, codecType codec.CodecType) *ClientTransport {
	t := &ClientTransport{
		conn:  conn,
		codec: codecType,
	}
	go t.recvLoop()
	go t.heartbeatLoop(30 * time.Second)
	return t
}

// Send serializes and writes one request frame, returning the sequence
// number and the channel its response will arrive on. The sending mutex
// keeps the whole frame (header + body) atomic on the shared connection.
func (t *ClientTransport) Send(serviceMethod string, args any) (uint32, <-chan *message.RPCMessage, error) {
	t.sending.Lock()
	defer t.sending.Unlock()

	t.seq++
	seq := t.seq

	payload, err := json.Marshal(args)
	if err != nil {
		return 0, nil, err
	}

	msg := message.RPCMessage{
		ServiceMethod: serviceMethod,
		Payload:       payload,
	}
	cdc := codec.GetCodec(t.codec)
	body, err := cdc.Encode(&msg)
	if err != nil {
		return 0, nil, err
	}

	header := protocol.Header{
		CodecType: byte(t.codec),
		MsgType:   protocol.MsgTypeRequest,
		Seq:       seq,
		BodyLen:   uint32(len(body)),
	}

	// register the response channel before writing, to not race recvLoop
	respChan := make(chan *message.RPCMessage, 1)
	t.pending.Store(seq, respChan)

	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		return 0, nil, err
	}

	return seq, respChan, nil
}

// recvLoop is the single reader for this connection. It parses response
// frames sequentially (a byte stream permits only one reader) and routes
// each one to the pending caller registered under its sequence number.
func (t *ClientTransport) recvLoop() {
	for {
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.failAllPending(err)
			return
		}

		resp := message.RPCMessage{}
		cdc := codec.GetCodec(codec.CodecType(header.CodecType))
		if err := cdc.Decode(body, &resp); err != nil {
			continue // undecodable frame; the caller times out or retries
		}

		if channel, ok := t.pending.LoadAndDelete(header.Seq); ok {
			channel.(chan *message.RPCMessage) <- &resp
		}
	}
}

// failAllPending runs when the connection breaks: every waiting caller gets
// a fault-envelope response carrying the transport error, so nobody blocks
// forever.
func (t *ClientTransport) failAllPending(err error) {
	t.pending.Range(func(key, value any) bool {
		channel := value.(chan *message.RPCMessage)
		channel <- message.Fault("", "connection lost: "+err.Error())
		return true
	})
	t.pending.Clear()
}

// Conn returns the underlying connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

// heartbeatLoop sends periodic empty heartbeat frames so idle connections
// are not reaped by the server or middleboxes.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		header := &protocol.Header{
			MsgType: protocol.MsgTypeHeartbeat,
			BodyLen: 0,
		}
		t.sending.Lock()
		err := protocol.Encode(t.conn, header, nil)
		t.sending.Unlock()
		if err != nil {
			return
		}
	}
}
