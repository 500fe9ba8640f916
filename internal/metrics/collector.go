package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Sampler reads a point-in-time value into m on every collection tick.
type Sampler func(m *Metrics)

// Collector samples process and caller supplied gauges periodically.
type Collector struct {
	metrics  *Metrics
	interval time.Duration
	samplers []Sampler
	started  time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector creates a collector. A non-positive interval defaults to
// 15 seconds.
func NewCollector(m *Metrics, interval time.Duration, samplers ...Sampler) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		metrics:  m,
		interval: interval,
		samplers: samplers,
		started:  time.Now(),
	}
}

// Start begins sampling in the background. It is a no-op when running.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Stop halts sampling and waits for the loop to exit.
func (c *Collector) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
}

func (c *Collector) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *Collector) collect() {
	if c.metrics == nil {
		return
	}
	c.metrics.Uptime.Set(time.Since(c.started).Seconds())
	c.metrics.GoRoutines.Set(float64(runtime.NumGoroutine()))
	for _, sample := range c.samplers {
		sample(c.metrics)
	}
}
