//go:build linux

package zstream

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/zhihanii/zlog"
)

var defaultPollerManager = &pollerManager{
	numLoops: runtime.GOMAXPROCS(0)/20 + 1,
	lb:       RoundRobin,
}

// SetNumLoops resizes the poller set used by Attach. Pollers are started
// lazily on the first attachment.
func SetNumLoops(numLoops int) error {
	return defaultPollerManager.SetNumLoops(numLoops)
}

// SetLoadBalance chooses how attachments are spread over pollers.
func SetLoadBalance(lb LoadBalance) error {
	return defaultPollerManager.SetLoadBalancer(lb)
}

type pollerManager struct {
	mu       sync.Mutex
	numLoops int
	lb       LoadBalance
	pollers  []Poller
	balancer loadBalancer
}

func (m *pollerManager) SetNumLoops(numLoops int) error {
	if numLoops < 1 {
		return fmt.Errorf("%w: set invalid numLoops[%d]", ErrInvalidArgument, numLoops)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.numLoops = numLoops
	if len(m.pollers) == 0 {
		return nil
	}
	if numLoops < len(m.pollers) {
		for _, p := range m.pollers[numLoops:] {
			if err := p.Close(); err != nil {
				zlog.Errorf("poller close failed: %v", err)
			}
		}
		m.pollers = m.pollers[:numLoops:numLoops]
		m.balancer.Rebalance(m.pollers)
		return nil
	}
	return m.buildPollers()
}

func (m *pollerManager) SetLoadBalancer(lb LoadBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balancer != nil && m.balancer.LoadBalance() == lb {
		return nil
	}
	balancer, err := newLoadBalancer(lb, m.pollers)
	if err != nil {
		return err
	}
	m.lb, m.balancer = lb, balancer
	return nil
}

// Pick returns a running poller, starting the set on first use.
func (m *pollerManager) Pick() (Poller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pollers) == 0 {
		if err := m.buildPollers(); err != nil {
			return nil, err
		}
	}
	return m.balancer.Pick(), nil
}

func (m *pollerManager) buildPollers() (err error) {
	if m.balancer == nil {
		if m.balancer, err = newLoadBalancer(m.lb, nil); err != nil {
			return err
		}
	}
	defer func() {
		m.balancer.Rebalance(m.pollers)
	}()
	for i := len(m.pollers); i < m.numLoops; i++ {
		p, err := openPoller()
		if err != nil {
			return fmt.Errorf("open poller: %w", err)
		}
		m.pollers = append(m.pollers, p)
		go p.Poll()
	}
	return nil
}
