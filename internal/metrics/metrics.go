package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ActiveSessionsProvider exposes the number of active call sessions.
type ActiveSessionsProvider interface {
	ActiveCount() int
}

// CallCounter returns call log counts grouped by status.
type CallCounter interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// RelayProvider exposes the number of live media relay sessions.
type RelayProvider interface {
	SessionCount() int
}

// AgentCounter returns the number of agents in a given status.
type AgentCounter interface {
	CountByStatus(ctx context.Context, status string) (int, error)
}

// callStatuses are the statuses exported as labeled call counters.
var callStatuses = []string{"direct", "ivr", "livekit", "completed"}

// Collector is a prometheus.Collector that gathers engine metrics at
// scrape time.
type Collector struct {
	sessions  ActiveSessionsProvider
	calls     CallCounter
	relay     RelayProvider
	agents    AgentCounter
	startTime time.Time

	activeCallsDesc     *prometheus.Desc
	callsTotalDesc      *prometheus.Desc
	relaySessionsDesc   *prometheus.Desc
	agentsAvailableDesc *prometheus.Desc
	uptimeDesc          *prometheus.Desc
}

// NewCollector creates the metrics collector. Any provider may be nil
// if unavailable.
func NewCollector(
	sessions ActiveSessionsProvider,
	calls CallCounter,
	relay RelayProvider,
	agents AgentCounter,
	startTime time.Time,
) *Collector {
	return &Collector{
		sessions:  sessions,
		calls:     calls,
		relay:     relay,
		agents:    agents,
		startTime: startTime,

		activeCallsDesc: prometheus.NewDesc(
			"callserver_active_calls",
			"Number of currently active call sessions",
			nil, nil,
		),
		callsTotalDesc: prometheus.NewDesc(
			"callserver_calls_total",
			"Total number of calls processed, by status",
			[]string{"status"}, nil,
		),
		relaySessionsDesc: prometheus.NewDesc(
			"callserver_relay_sessions_active",
			"Number of live media relay sessions",
			nil, nil,
		),
		agentsAvailableDesc: prometheus.NewDesc(
			"callserver_agents_available",
			"Number of agents currently marked available",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"callserver_uptime_seconds",
			"Seconds since the process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCallsDesc
	ch <- c.callsTotalDesc
	ch <- c.relaySessionsDesc
	ch <- c.agentsAvailableDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.sessions != nil {
		ch <- prometheus.MustNewConstMetric(
			c.activeCallsDesc, prometheus.GaugeValue,
			float64(c.sessions.ActiveCount()),
		)
	}

	if c.calls != nil {
		counts, err := c.calls.CountByStatus(ctx)
		if err != nil {
			slog.Error("metrics: failed to count calls by status", "error", err)
		} else {
			for _, status := range callStatuses {
				ch <- prometheus.MustNewConstMetric(
					c.callsTotalDesc, prometheus.CounterValue,
					float64(counts[status]), status,
				)
			}
		}
	}

	if c.relay != nil {
		ch <- prometheus.MustNewConstMetric(
			c.relaySessionsDesc, prometheus.GaugeValue,
			float64(c.relay.SessionCount()),
		)
	}

	if c.agents != nil {
		count, err := c.agents.CountByStatus(ctx, "available")
		if err != nil {
			slog.Error("metrics: failed to count available agents", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.agentsAvailableDesc, prometheus.GaugeValue,
				float64(count),
			)
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}

// Handler registers the collector on a fresh registry and returns the
// scrape endpoint handler.
func Handler(c *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
