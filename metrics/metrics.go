// Package metrics exposes Prometheus counters for tool calls, resource reads
// and data-store latency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded for tool calls and resource reads.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Recorder is safe to use as a nil pointer, in which case nothing is recorded.
type Recorder struct {
	toolCalls     *prometheus.CounterVec
	resourceReads *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_tables_tool_calls_total",
			Help: "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		resourceReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_tables_resource_reads_total",
			Help: "Resource reads by outcome.",
		}, []string{"outcome"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcp_tables_store_duration_seconds",
			Help:    "Latency of data-store operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(r.toolCalls, r.resourceReads, r.storeDuration)
	return r
}

func (r *Recorder) ToolCall(tool, outcome string) {
	if r == nil {
		return
	}
	r.toolCalls.WithLabelValues(tool, outcome).Inc()
}

func (r *Recorder) ResourceRead(outcome string) {
	if r == nil {
		return
	}
	r.resourceReads.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveStore(op string, d time.Duration) {
	if r == nil {
		return
	}
	r.storeDuration.WithLabelValues(op).Observe(d.Seconds())
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
