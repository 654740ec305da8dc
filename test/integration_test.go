package test

import (
	"net"
	"strings"
	"testing"
	"time"

	"wrap-rpc/client"
	"wrap-rpc/codec"
	"wrap-rpc/envelope"
	"wrap-rpc/loadbalance"
	"wrap-rpc/middleware"
	"wrap-rpc/registry"
	"wrap-rpc/server"
	"wrap-rpc/traceback"
)

type MathArgs struct {
	A int
	B int
}

type MathService struct{}

func (s *MathService) Add(args *MathArgs, reply *int) error {
	*reply = args.A + args.B
	return nil
}

func (s *MathService) Div(args *MathArgs, reply *int) error {
	if args.B == 0 {
		return traceback.New("cannot compute ratio").
			CausedBy(traceback.New("division by zero"))
	}
	*reply = args.A / args.B
	return nil
}

func (s *MathService) Slow(args *MathArgs, reply *int) error {
	time.Sleep(200 * time.Millisecond)
	*reply = args.A
	return nil
}

// startServer runs a MathService server on addr and registers it with reg.
func startServer(t *testing.T, addr string, reg registry.Registry, mws ...middleware.Middleware) *server.Server {
	t.Helper()

	svr := server.NewServer()
	if err := svr.Register(&MathService{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	for _, mw := range mws {
		svr.Use(mw)
	}

	go func() {
		if err := svr.Serve("tcp", addr, addr, reg); err != nil {
			t.Errorf("Serve failed: %v", err)
		}
	}()
	t.Cleanup(func() { svr.Shutdown(time.Second) })

	waitForServer(t, addr)
	return svr
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	for i := 0; i < 50; i++ {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server on %s never came up", addr)
}

func TestCallSuccess(t *testing.T) {
	addr := "127.0.0.1:19801"
	reg := registry.NewStaticRegistry()
	startServer(t, addr, reg)

	c := client.NewClient(reg, &loadbalance.RoundRobinBalancer{}, byte(codec.CodecTypeJSON), 2)

	var reply int
	if err := c.Call("MathService.Add", &MathArgs{A: 3, B: 4}, &reply); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if reply != 7 {
		t.Fatalf("expect 7, got %d", reply)
	}
}

func TestCallRemoteFailureCarriesTraceback(t *testing.T) {
	addr := "127.0.0.1:19802"
	reg := registry.NewStaticRegistry()
	startServer(t, addr, reg)

	c := client.NewClient(reg, &loadbalance.RoundRobinBalancer{}, byte(codec.CodecTypeJSON), 2)

	var reply int
	err := c.Call("MathService.Div", &MathArgs{A: 1, B: 0}, &reply)
	if err == nil {
		t.Fatal("expect error for division by zero, got nil")
	}

	re, ok := err.(*envelope.RemoteError)
	if !ok {
		t.Fatalf("expect *envelope.RemoteError, got %T: %v", err, err)
	}

	text := re.String()
	zero := strings.Index(text, "division by zero")
	ratio := strings.Index(text, "cannot compute ratio")
	if zero < 0 || ratio < 0 {
		t.Fatalf("traceback text missing chained messages:\n%s", text)
	}
	if zero > ratio {
		t.Fatalf("cause must be displayed before the final error:\n%s", text)
	}
	if !strings.Contains(text, "The above exception was the direct cause") {
		t.Fatalf("missing chaining banner:\n%s", text)
	}
}

func TestCallUnknownMethodFails(t *testing.T) {
	addr := "127.0.0.1:19803"
	reg := registry.NewStaticRegistry()
	startServer(t, addr, reg)

	c := client.NewClient(reg, &loadbalance.RoundRobinBalancer{}, byte(codec.CodecTypeJSON), 1)

	var reply int
	err := c.Call("MathService.Nope", &MathArgs{}, &reply)
	if err == nil {
		t.Fatal("expect error for unknown method, got nil")
	}
	if !strings.Contains(err.Error(), "unknown method") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCallWithBinaryCodec(t *testing.T) {
	addr := "127.0.0.1:19804"
	reg := registry.NewStaticRegistry()
	startServer(t, addr, reg)

	c := client.NewClient(reg, &loadbalance.RoundRobinBalancer{}, byte(codec.CodecTypeBinary), 1)

	var reply int
	if err := c.Call("MathService.Add", &MathArgs{A: 20, B: 22}, &reply); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if reply != 42 {
		t.Fatalf("expect 42, got %d", reply)
	}
}

func TestTimeoutMiddlewareFaultsSlowCall(t *testing.T) {
	addr := "127.0.0.1:19805"
	reg := registry.NewStaticRegistry()
	startServer(t, addr, reg,
		middleware.LoggingMiddleware(nil),
		middleware.TimeOutMiddleware(50*time.Millisecond))

	c := client.NewClient(reg, &loadbalance.RoundRobinBalancer{}, byte(codec.CodecTypeJSON), 1)

	var reply int
	err := c.Call("MathService.Slow", &MathArgs{A: 1}, &reply)
	if err == nil {
		t.Fatal("expect timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "request timed out") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConcurrentCalls(t *testing.T) {
	addr := "127.0.0.1:19806"
	reg := registry.NewStaticRegistry()
	startServer(t, addr, reg)

	c := client.NewClient(reg, &loadbalance.RoundRobinBalancer{}, byte(codec.CodecTypeJSON), 4)

	const calls = 20
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		go func(n int) {
			var reply int
			err := c.Call("MathService.Add", &MathArgs{A: n, B: n}, &reply)
			if err == nil && reply != 2*n {
				t.Errorf("expect %d, got %d", 2*n, reply)
			}
			errs <- err
		}(i)
	}
	for i := 0; i < calls; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent Call failed: %v", err)
		}
	}
}
