// Package client implements the calling side: discovery, load balancing,
// pooled multiplexed transports, and call-side envelope unwrapping. Remote
// handler failures surface as *envelope.RemoteError values carrying the full
// remote traceback.
package client

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"

	"wrap-rpc/codec"
	"wrap-rpc/envelope"
	"wrap-rpc/loadbalance"
	"wrap-rpc/registry"
	"wrap-rpc/transport"
)

type Client struct {
	registry   registry.Registry
	balancer   loadbalance.Balancer
	transports map[string]chan *transport.ClientTransport // per-instance pool
	codecType  codec.CodecType
	mu         sync.Mutex
	poolSize   int
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, codecType byte, poolSize int) *Client {
	return &Client{
		registry:   reg,
		balancer:   bal,
		transports: make(map[string]chan *transport.ClientTransport),
		codecType:  codec.CodecType(codecType),
		poolSize:   poolSize,
	}
}

func (c *Client) getTransport(addr string) (*transport.ClientTransport, error) {
	c.mu.Lock()
	pool, ok := c.transports[addr]
	if !ok {
		pool = make(chan *transport.ClientTransport, c.poolSize)
		c.transports[addr] = pool
	}
	c.mu.Unlock()

	if !ok {
		for i := 0; i < c.poolSize; i++ {
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return nil, err
			}
			pool <- transport.NewClientTransport(conn, c.codecType)
		}
	}

	return <-pool, nil
}

func (c *Client) putTransport(addr string, t *transport.ClientTransport) {
	c.transports[addr] <- t
}

// Call invokes serviceMethod on a discovered instance and decodes the reply
// into reply. A failure envelope in the response becomes the returned error:
// a *envelope.RemoteError whose Format() reproduces the remote traceback
// text, chained causes included.
func (c *Client) Call(serviceMethod string, args any, reply any) error {
	split := strings.Split(serviceMethod, ".")
	if len(split) != 2 {
		return fmt.Errorf("invalid serviceMethod format: %v", serviceMethod)
	}
	serviceName := split[0]

	instances, err := c.registry.Discover(serviceName)
	if err != nil {
		return err
	}

	instance, err := c.balancer.Pick(instances)
	if err != nil {
		return err
	}

	t, err := c.getTransport(instance.Addr)
	if err != nil {
		return err
	}
	defer c.putTransport(instance.Addr, t)

	_, ch, err := t.Send(serviceMethod, args)
	if err != nil {
		return err
	}

	resp := <-ch

	// The response payload is a wrapped-response envelope (or, from very old
	// peers, a bare value). Unwrap surfaces failures as errors.
	var decoded any
	if err := json.Unmarshal(resp.Payload, &decoded); err != nil {
		return fmt.Errorf("undecodable response payload: %w", err)
	}
	result, err := envelope.Unwrap(decoded)
	if err != nil {
		return err
	}

	// result is the reply as decoded JSON; re-marshal into the caller's type
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, reply)
}
