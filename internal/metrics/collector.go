package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/quotestream/internal/connection"
)

const namespace = "quotestream"

// StatsSource is anything that reports manager statistics.
type StatsSource interface {
	Stats() connection.Stats
}

// SinkStatsFunc reports cumulative written and failed counts for a sink.
type SinkStatsFunc func() (written, failed int64)

// Collector reads a StatsSource on every scrape. It holds no counters of
// its own so values always match Manager.Stats.
type Collector struct {
	source StatsSource

	state          *prometheus.Desc
	health         *prometheus.Desc
	autoReconnect  *prometheus.Desc
	connections    *prometheus.Desc
	successes      *prometheus.Desc
	errors         *prometheus.Desc
	messages       *prometheus.Desc
	reconnects     *prometheus.Desc
	consecutive    *prometheus.Desc
	subscriptions  *prometheus.Desc
	published      *prometheus.Desc
	dropped        *prometheus.Desc
	decodeFailures *prometheus.Desc
	consumers      *prometheus.Desc
	sinkWritten    *prometheus.Desc
	sinkFailed     *prometheus.Desc

	mu    sync.RWMutex
	sinks map[string]SinkStatsFunc
}

// NewCollector creates a collector over source.
func NewCollector(source StatsSource) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		source:         source,
		state:          desc("connection_state", "1 for the current connection state, 0 otherwise.", "state"),
		health:         desc("health_score", "Connection health score between 0 and 1."),
		autoReconnect:  desc("auto_reconnect_enabled", "1 if automatic reconnection is enabled."),
		connections:    desc("connections_total", "Connection attempts."),
		successes:      desc("connections_successful_total", "Successful connections."),
		errors:         desc("errors_total", "Recorded connection errors."),
		messages:       desc("messages_received_total", "Raw messages received."),
		reconnects:     desc("reconnect_attempts_total", "Reconnection attempts over the manager lifetime."),
		consecutive:    desc("consecutive_failures", "Consecutive reconnection failures."),
		subscriptions:  desc("subscriptions", "Currently subscribed symbols."),
		published:      desc("updates_published_total", "Decoded updates published to consumers."),
		dropped:        desc("updates_dropped_total", "Updates dropped from slow consumer buffers."),
		decodeFailures: desc("decode_failures_total", "Frames that failed to decode."),
		consumers:      desc("consumers", "Attached update consumers."),
		sinkWritten:    desc("sink_written_total", "Updates written by a sink.", "sink"),
		sinkFailed:     desc("sink_failed_total", "Updates a sink failed to write.", "sink"),
		sinks:          make(map[string]SinkStatsFunc),
	}
}

// AddSink reports a sink's counters under the given name.
func (c *Collector) AddSink(name string, fn SinkStatsFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks[name] = fn
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.state, c.health, c.autoReconnect, c.connections, c.successes,
		c.errors, c.messages, c.reconnects, c.consecutive, c.subscriptions,
		c.published, c.dropped, c.decodeFailures, c.consumers,
		c.sinkWritten, c.sinkFailed,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()

	for _, st := range allStates {
		v := 0.0
		if st == s.State {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, st.String())
	}

	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}

	gauge(c.health, s.HealthScore)
	gauge(c.autoReconnect, boolToFloat(s.AutoReconnect))
	counter(c.connections, s.Quality.TotalConnections)
	counter(c.successes, s.Quality.SuccessfulConnections)
	counter(c.errors, s.Quality.TotalErrors)
	counter(c.messages, s.Quality.MessagesReceived)
	counter(c.reconnects, int64(s.Reconnection.TotalAttempts))
	gauge(c.consecutive, float64(s.Reconnection.ConsecutiveFailures))
	gauge(c.subscriptions, float64(s.Subscriptions))
	counter(c.published, s.UpdatesPublished)
	counter(c.dropped, s.UpdatesDropped)
	counter(c.decodeFailures, s.DecodeFailures)
	gauge(c.consumers, float64(s.Consumers))

	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, fn := range c.sinks {
		written, failed := fn()
		ch <- prometheus.MustNewConstMetric(c.sinkWritten, prometheus.CounterValue, float64(written), name)
		ch <- prometheus.MustNewConstMetric(c.sinkFailed, prometheus.CounterValue, float64(failed), name)
	}
}

var allStates = []connection.State{
	connection.StateDisconnected,
	connection.StateConnecting,
	connection.StateConnected,
	connection.StateReconnecting,
	connection.StateFailed,
	connection.StateSuspended,
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
