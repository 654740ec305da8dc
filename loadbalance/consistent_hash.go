package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"

	"wrap-rpc/registry"
)

// ConsistentHashBalancer maps keys onto a hash ring so the same key always
// reaches the same instance while the ring is unchanged. Each real instance
// occupies many virtual nodes on the ring; without them a handful of
// instances would cluster and skew the load.
type ConsistentHashBalancer struct {
	replicas int
	ring     []uint32 // sorted hash positions
	nodes    map[uint32]*registry.ServiceInstance
}

// NewConsistentHashBalancer creates a ring with 100 virtual nodes per
// instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		ring:     []uint32{},
		nodes:    make(map[uint32]*registry.ServiceInstance),
	}
}

// Add places an instance onto the ring under its virtual node positions.
func (b *ConsistentHashBalancer) Add(instance *registry.ServiceInstance) {
	for i := 0; i < b.replicas; i++ {
		key := fmt.Sprintf("%s#%d", instance.Addr, i)
		hash := crc32.ChecksumIEEE([]byte(key))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
	// keep sorted for the binary search in Pick
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// Pick finds the instance owning the key: hash it, then take the first ring
// position clockwise from the hash (wrapping past the end).
//
// Consistent hashing is key-based, so this Pick takes a string key rather
// than implementing the Balancer interface.
func (b *ConsistentHashBalancer) Pick(key string) (*registry.ServiceInstance, error) {
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("no instances on the ring")
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}

	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
