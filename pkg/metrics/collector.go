package metrics

import (
	"strconv"
	"time"
)

// RaftStatsProvider is satisfied by *meta.Member. It is declared here,
// rather than importing pkg/meta directly, to avoid a cycle: pkg/meta
// already imports pkg/metrics to update RaftLeader and
// PartitionTableVersion inline as those values change.
type RaftStatsProvider interface {
	RaftStats() map[string]string
}

// Collector periodically polls a RaftStatsProvider for the raft.Stats()
// fields that aren't convenient to update inline at their call sites —
// term, peer count, log index, applied index — the way the teacher's
// Collector polled a manager on a ticker.
type Collector struct {
	provider RaftStatsProvider
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector over provider.
func NewCollector(provider RaftStatsProvider) *Collector {
	return &Collector{
		provider: provider,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics on the given interval.
func (c *Collector) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	stats := c.provider.RaftStats()
	if stats == nil {
		return
	}
	setGaugeFromStat(RaftTerm, stats, "term")
	setGaugeFromStat(RaftPeers, stats, "num_peers")
	setGaugeFromStat(RaftLogIndex, stats, "last_log_index")
	setGaugeFromStat(RaftAppliedIndex, stats, "applied_index")
}

func setGaugeFromStat(g interface{ Set(float64) }, stats map[string]string, key string) {
	raw, ok := stats[key]
	if !ok {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return
	}
	g.Set(v)
}
