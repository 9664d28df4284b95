// internal/metrics/collector.go
package metrics

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector mirrors engine activity into Prometheus collectors.
type Collector struct {
	executions     *prometheus.CounterVec
	duration       prometheus.Histogram
	gasUsed        prometheus.Gauge
	rpcLatency     *prometheus.HistogramVec
	probes         *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_executions_total",
			Help: "Swap executions by outcome.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sniper_execution_duration_seconds",
			Help:    "Time from execution start to confirmation or failure.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
		gasUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sniper_execution_gas_used",
			Help: "Gas used by the most recent confirmed execution.",
		}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sniper_rpc_latency_seconds",
			Help:    "Latency of JSON-RPC calls by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_liquidity_probes_total",
			Help: "Liquidity probes by venue and result.",
		}, []string{"venue", "result"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sniper_active_sessions",
			Help: "Sessions that are active or waiting for liquidity.",
		}),
	}

	for _, collector := range []prometheus.Collector{
		c.executions, c.duration, c.gasUsed, c.rpcLatency, c.probes, c.activeSessions,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveExecution implements Observer.
func (c *Collector) ObserveExecution(latency time.Duration, success bool, gasUsed *big.Int) {
	status := "success"
	if !success {
		status = "failed"
	}
	c.executions.WithLabelValues(status).Inc()
	c.duration.Observe(latency.Seconds())
	if gasUsed != nil {
		g, _ := new(big.Float).SetInt(gasUsed).Float64()
		c.gasUsed.Set(g)
	}
}

// ResetExecutions implements Observer.
func (c *Collector) ResetExecutions() {
	c.executions.Reset()
	c.gasUsed.Set(0)
}

// ObserveRPC records the latency of one RPC call.
func (c *Collector) ObserveRPC(method string, d time.Duration) {
	c.rpcLatency.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveProbe counts one per-venue liquidity probe outcome:
// "found", "empty", "no_pair" or "error".
func (c *Collector) ObserveProbe(venue, result string) {
	c.probes.WithLabelValues(venue, result).Inc()
}

// SetActiveSessions updates the live session gauge.
func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}
