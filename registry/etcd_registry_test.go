package registry

import (
	"net"
	"testing"
	"time"
)

const etcdAddr = "127.0.0.1:2379"

func requireEtcd(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", etcdAddr, 200*time.Millisecond)
	if err != nil {
		t.Skipf("etcd not reachable at %s: %v", etcdAddr, err)
	}
	conn.Close()
}

func TestEtcdRegisterDiscoverDeregister(t *testing.T) {
	requireEtcd(t)

	r, err := NewEtcdRegistry([]string{etcdAddr})
	if err != nil {
		t.Fatalf("NewEtcdRegistry failed: %v", err)
	}

	instance := ServiceInstance{Addr: "127.0.0.1:8001", Weight: 1}
	if err := r.Register("ArithTest", instance, 5); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	defer r.Deregister("ArithTest", instance.Addr)

	instances, err := r.Discover("ArithTest")
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	found := false
	for _, in := range instances {
		if in.Addr == instance.Addr {
			found = true
		}
	}
	if !found {
		t.Fatalf("registered instance not discovered: %v", instances)
	}

	if err := r.Deregister("ArithTest", instance.Addr); err != nil {
		t.Fatalf("Deregister failed: %v", err)
	}
	instances, _ = r.Discover("ArithTest")
	for _, in := range instances {
		if in.Addr == instance.Addr {
			t.Fatal("instance still discoverable after deregister")
		}
	}
}
