package metrics

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"
)

// ProgressStats is the part of campaign progress exported as gauges
type ProgressStats struct {
	Active bool
	Total  int
	Sent   int
	Failed int
}

// ProgressProvider exposes the progress of the current campaign
type ProgressProvider interface {
	ProgressStats() ProgressStats
}

// Collector periodically refreshes gauges that are sampled rather than counted
type Collector struct {
	metrics       *Metrics
	progress      ProgressProvider
	storagePath   string
	flushInterval time.Duration
	startTime     time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a new metrics collector
func NewCollector(m *Metrics, progress ProgressProvider, storagePath string, flushInterval time.Duration) *Collector {
	if flushInterval == 0 {
		flushInterval = 10 * time.Second
	}

	return &Collector{
		metrics:       m,
		progress:      progress,
		storagePath:   storagePath,
		flushInterval: flushInterval,
		startTime:     time.Now(),
		stopCh:        make(chan struct{}),
	}
}

// Start begins the collector background loop
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Collector) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	c.Collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// Collect samples system state and campaign progress once
func (c *Collector) Collect() {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	if c.progress != nil {
		p := c.progress.ProgressStats()
		active := 0.0
		if p.Active {
			active = 1
		}
		c.metrics.CampaignActive.Set(active)
		c.metrics.CampaignProgress.WithLabelValues("total").Set(float64(p.Total))
		c.metrics.CampaignProgress.WithLabelValues("sent").Set(float64(p.Sent))
		c.metrics.CampaignProgress.WithLabelValues("failed").Set(float64(p.Failed))
	}
}
