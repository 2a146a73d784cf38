//go:build linux

package zstream

import (
	"fmt"
	"sync/atomic"
)

type LoadBalance int8

const (
	RoundRobin LoadBalance = iota
	// LeastLoaded picks the poller with the fewest registered descriptors.
	LeastLoaded
)

type loadBalancer interface {
	LoadBalance() LoadBalance
	Pick() Poller
	Rebalance(pollers []Poller)
}

func newLoadBalancer(lb LoadBalance, pollers []Poller) (loadBalancer, error) {
	switch lb {
	case RoundRobin:
		return &roundRobinLoadBalancer{pollers: pollers}, nil
	case LeastLoaded:
		return &leastLoadedLoadBalancer{pollers: pollers}, nil
	default:
		return nil, fmt.Errorf("%w: not supported loadbalance: %d", ErrInvalidArgument, lb)
	}
}

type roundRobinLoadBalancer struct {
	pollers []Poller
	cur     uint32
}

func (b *roundRobinLoadBalancer) LoadBalance() LoadBalance {
	return RoundRobin
}

func (b *roundRobinLoadBalancer) Pick() Poller {
	idx := int(atomic.AddUint32(&b.cur, 1)) % len(b.pollers)
	return b.pollers[idx]
}

func (b *roundRobinLoadBalancer) Rebalance(pollers []Poller) {
	b.pollers = pollers
}

type leastLoadedLoadBalancer struct {
	pollers []Poller
}

func (b *leastLoadedLoadBalancer) LoadBalance() LoadBalance {
	return LeastLoaded
}

func (b *leastLoadedLoadBalancer) Pick() Poller {
	best := b.pollers[0]
	for _, p := range b.pollers[1:] {
		if p.Load() < best.Load() {
			best = p
		}
	}
	return best
}

func (b *leastLoadedLoadBalancer) Rebalance(pollers []Poller) {
	b.pollers = pollers
}
