// Package server implements the RPC server: service registration, middleware
// chain, parallel request processing, and graceful shutdown.
//
// Request pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → per request: go handleRequest (parallel)
//	    → Codec.Decode → Middleware Chain → dispatch (reflect.Call)
//	    → envelope wrap/sanitize → Codec.Encode → write response
//
// Handler outcomes always come back as envelope payloads: results as success
// envelopes, errors as sanitized failure envelopes carrying the full
// traceback. The handle-side contract is "handlers return, callers raise" —
// nothing a handler raises escapes as a bare transport error.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"wrap-rpc/codec"
	"wrap-rpc/message"
	"wrap-rpc/middleware"
	"wrap-rpc/protocol"
	"wrap-rpc/registry"
	"wrap-rpc/rpcwrap"
	"wrap-rpc/traceback"
)

// Server registers services and handles incoming requests.
type Server struct {
	serviceMap    map[string]*service
	listener      net.Listener
	wg            sync.WaitGroup // in-flight requests, for graceful shutdown
	shutdown      atomic.Bool    // suppresses the Accept error on intentional close
	middlewares   []middleware.Middleware
	handler       middleware.HandlerFunc // middleware(middleware(...(dispatch)))
	registry      registry.Registry      // nil when not using discovery
	advertiseAddr string                 // address registered in the registry; differs
	// from the listen address because ":8080" is not routable
	logger *zap.Logger
}

// NewServer creates a server with an empty service map and a no-op logger.
func NewServer() *Server {
	return &Server{
		serviceMap: make(map[string]*service),
		logger:     zap.NewNop(),
	}
}

// WithLogger sets the structured logger used for request errors.
func (svr *Server) WithLogger(logger *zap.Logger) *Server {
	if logger != nil {
		svr.logger = logger
	}
	return svr
}

// Register exposes a receiver's RPC-shaped methods
// (func (s *S) Method(args *A, reply *R) error) for remote calls.
func (svr *Server) Register(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	svr.serviceMap[svc.name] = svc
	return nil
}

// Use appends a middleware; middlewares run in registration order.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on the given address, optionally registers with the
// registry, and runs the accept loop.
//
// advertiseAddr is the address registered for discovery (e.g.
// "127.0.0.1:8080"); pass reg nil to skip discovery.
func (svr *Server) Serve(network, address string, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	svr.listener = listener

	// build the middleware chain once, not per request
	svr.handler = middleware.Chain(svr.middlewares...)(svr.dispatchHandler)

	svr.advertiseAddr = advertiseAddr
	if reg != nil {
		svr.registry = reg
		for serviceName := range svr.serviceMap {
			if err := svr.registry.Register(serviceName, registry.ServiceInstance{
				Addr: advertiseAddr,
			}, 10); err != nil {
				svr.logger.Warn("service registration failed",
					zap.String("service", serviceName), zap.Error(err))
			}
		}
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		go svr.handleConn(conn)
	}
}

// handleConn reads frames sequentially (one reader per connection) and
// dispatches each request to its own goroutine. A shared per-connection
// write mutex keeps concurrently-written response frames from interleaving.
func (svr *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	writeMu := &sync.Mutex{}
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			break // connection closed or protocol error
		}

		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}

		go svr.handleRequest(header, body, conn, writeMu)
	}
}

// handleRequest processes one request: decode → middleware → dispatch →
// encode → write.
func (svr *Server) handleRequest(header *protocol.Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	svr.wg.Add(1)
	defer svr.wg.Done()

	c := codec.GetCodec(codec.CodecType(header.CodecType))
	msg := message.RPCMessage{}
	if err := c.Decode(body, &msg); err != nil {
		svr.logger.Warn("undecodable request frame", zap.Error(err))
		return
	}

	resp := svr.handler(context.Background(), &msg)

	writeMu.Lock()
	defer writeMu.Unlock()

	result, err := c.Encode(resp)
	if err != nil {
		svr.logger.Error("failed to encode response", zap.Error(err))
		return
	}

	replyHeader := protocol.Header{
		CodecType: header.CodecType,
		MsgType:   protocol.MsgTypeResponse,
		Seq:       header.Seq, // same seq as the request, for multiplexing
		BodyLen:   uint32(len(result)),
	}
	if err := protocol.Encode(conn, &replyHeader, result); err != nil {
		svr.logger.Error("failed to write response", zap.Error(err))
	}
}

// dispatchHandler is the innermost handler: it runs the reflective dispatch
// under the handle-side envelope adapter, so every outcome becomes an
// envelope payload. Cancellation errors are the documented exception — they
// cannot be reported to the remote caller and degrade to a fault payload
// here at the outermost layer.
func (svr *Server) dispatchHandler(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
	env, err := rpcwrap.HandleCallContext(ctx, svr.logHandlerError, func(ctx context.Context) (any, error) {
		return svr.dispatch(ctx, req)
	})
	if err != nil {
		return message.Fault(req.ServiceMethod, err.Error())
	}

	payload, err := json.Marshal(env)
	if err != nil {
		svr.logger.Error("failed to encode envelope", zap.Error(err))
		return message.Fault(req.ServiceMethod, "failed to encode response envelope")
	}
	return &message.RPCMessage{ServiceMethod: req.ServiceMethod, Payload: payload}
}

func (svr *Server) logHandlerError(err error) {
	svr.logger.Warn("handler raised", zap.Error(err))
}

// dispatch resolves "Service.Method", rebuilds the args, and invokes the
// method via reflection, returning the reply value or the handler's error.
// Dispatch errors get a captured stack so remote callers see where the
// lookup failed.
func (svr *Server) dispatch(ctx context.Context, req *message.RPCMessage) (any, error) {
	split := strings.Split(req.ServiceMethod, ".")
	if len(split) != 2 {
		return nil, traceback.Newf("invalid service method format: %q", req.ServiceMethod)
	}
	serviceName, methodName := split[0], split[1]

	svc, ok := svr.serviceMap[serviceName]
	if !ok {
		return nil, traceback.Newf("unknown service: %q", serviceName)
	}
	mt, ok := svc.method[methodName]
	if !ok {
		return nil, traceback.Newf("unknown method: %q", req.ServiceMethod)
	}

	argv := reflect.New(mt.ArgType)
	replyv := reflect.New(mt.ReplyType)

	if err := json.Unmarshal(req.Payload, argv.Interface()); err != nil {
		return nil, traceback.Newf("invalid arguments for %s", req.ServiceMethod).CausedBy(err)
	}

	if err := svc.call(mt, argv, replyv); err != nil {
		return nil, err
	}
	return replyv.Interface(), nil
}

// Shutdown deregisters from discovery, stops accepting, and waits for
// in-flight requests up to the timeout.
func (svr *Server) Shutdown(timeout time.Duration) error {
	// deregister first so clients stop routing here
	if svr.registry != nil {
		for serviceName := range svr.serviceMap {
			svr.registry.Deregister(serviceName, svr.advertiseAddr)
		}
	}

	// flag before close, so the Accept error is recognized as intentional
	svr.shutdown.Store(true)
	svr.listener.Close()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}
