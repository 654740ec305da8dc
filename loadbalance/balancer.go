// Package loadbalance provides strategies for spreading RPC calls across
// service instances:
//
//   - RoundRobin:      stateless services, equal-capacity instances
//   - WeightedRandom:  heterogeneous instances
//   - ConsistentHash:  stateful services needing cache affinity
package loadbalance

import "wrap-rpc/registry"

// Balancer picks a target instance for each call.
type Balancer interface {
	// Pick selects one instance; called on every call, must be goroutine-safe.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name for logging.
	Name() string
}
