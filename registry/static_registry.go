package registry

import (
	"fmt"
	"sync"
)

// StaticRegistry is an in-memory Registry for fixed topologies and tests:
// no leases, no TTL expiry, instances stay until deregistered.
type StaticRegistry struct {
	mu       sync.RWMutex
	services map[string][]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		services: make(map[string][]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
}

// Register adds the instance, replacing any earlier entry with the same
// address. The ttl parameter is ignored — static entries do not expire.
func (r *StaticRegistry) Register(serviceName string, instance ServiceInstance, ttl int64) error {
	r.mu.Lock()
	instances := r.services[serviceName]
	replaced := false
	for i, in := range instances {
		if in.Addr == instance.Addr {
			instances[i] = instance
			replaced = true
			break
		}
	}
	if !replaced {
		instances = append(instances, instance)
	}
	r.services[serviceName] = instances
	r.mu.Unlock()

	r.notify(serviceName)
	return nil
}

func (r *StaticRegistry) Deregister(serviceName string, addr string) error {
	r.mu.Lock()
	instances := r.services[serviceName]
	for i, in := range instances {
		if in.Addr == addr {
			r.services[serviceName] = append(instances[:i], instances[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.notify(serviceName)
	return nil
}

func (r *StaticRegistry) Discover(serviceName string) ([]ServiceInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	instances, ok := r.services[serviceName]
	if !ok || len(instances) == 0 {
		return nil, fmt.Errorf("no instances registered for service %q", serviceName)
	}
	out := make([]ServiceInstance, len(instances))
	copy(out, instances)
	return out, nil
}

func (r *StaticRegistry) Watch(serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	r.mu.Lock()
	r.watchers[serviceName] = append(r.watchers[serviceName], ch)
	r.mu.Unlock()
	return ch
}

func (r *StaticRegistry) notify(serviceName string) {
	r.mu.RLock()
	instances := make([]ServiceInstance, len(r.services[serviceName]))
	copy(instances, r.services[serviceName])
	watchers := r.watchers[serviceName]
	r.mu.RUnlock()

	for _, ch := range watchers {
		select {
		case ch <- instances:
		default: // watcher not keeping up; it re-reads on the next event
		}
	}
}
