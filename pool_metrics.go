package zstream

import "github.com/prometheus/client_golang/prometheus"

type poolCollector struct {
	pool *BufferPool

	borrowed  *prometheus.Desc
	released  *prometheus.Desc
	inUse     *prometheus.Desc
	ephemeral *prometheus.Desc
	slots     *prometheus.Desc
	free      *prometheus.Desc
}

// NewPoolCollector exposes BufferPool.Stats as Prometheus metrics. The
// collector reads the pool on every scrape and keeps no state of its own.
func NewPoolCollector(namespace string, pool *BufferPool) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "buffer_pool", name), help, nil, nil)
	}
	return &poolCollector{
		pool:      pool,
		borrowed:  desc("borrowed_total", "Buffers lent by the pool."),
		released:  desc("released_total", "Buffers returned to the pool."),
		inUse:     desc("in_use", "Buffers currently on loan."),
		ephemeral: desc("ephemeral_total", "Borrows served outside the arena."),
		slots:     desc("slots", "Arena slots allocated."),
		free:      desc("free_slots", "Arena slots ready to lend."),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.borrowed
	ch <- c.released
	ch <- c.inUse
	ch <- c.ephemeral
	ch <- c.slots
	ch <- c.free
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stats()
	ch <- prometheus.MustNewConstMetric(c.borrowed, prometheus.CounterValue, float64(s.Borrowed))
	ch <- prometheus.MustNewConstMetric(c.released, prometheus.CounterValue, float64(s.Released))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(s.InUse))
	ch <- prometheus.MustNewConstMetric(c.ephemeral, prometheus.CounterValue, float64(s.Ephemeral))
	ch <- prometheus.MustNewConstMetric(c.slots, prometheus.GaugeValue, float64(s.Slots))
	ch <- prometheus.MustNewConstMetric(c.free, prometheus.GaugeValue, float64(s.Free))
}
