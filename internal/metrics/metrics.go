// Package metrics registers the Prometheus collectors of the monitor.
// All helpers are no-ops until Init has been called.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "energy_monitor_"

	// ResultSuccess labels successful operations
	ResultSuccess = "success"
	// ResultError labels failed operations
	ResultError = "error"
)

var (
	registerOnce sync.Once

	fetchTotal   *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec

	activePower prometheus.Gauge
	solarPower  prometheus.Gauge
	anomalies   prometheus.Counter

	sinkWrites       *prometheus.CounterVec
	droppedSnapshots prometheus.Counter

	deviceCommands   *prometheus.CounterVec
	insightRequests  *prometheus.CounterVec
	insightTokensEst *prometheus.CounterVec
)

// Init registers the collectors with the default registry
func Init() {
	registerOnce.Do(func() {
		fetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fetch_total",
				Help: "Total remote fetches by channel and status",
			},
			[]string{"channel", "status"},
		)
		fetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "fetch_latency_seconds",
				Help:    "Remote fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		)

		activePower = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active_power_watts",
				Help: "Last reported active power",
			},
		)
		solarPower = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "solar_power_watts",
				Help: "Last reported solar production",
			},
		)
		anomalies = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "anomalies_total",
				Help: "Total realtime ticks flagged as anomalous",
			},
		)

		sinkWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sink_writes_total",
				Help: "Total snapshot writes by sink and result",
			},
			[]string{"sink", "result"},
		)
		droppedSnapshots = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "dropped_snapshots_total",
				Help: "Snapshots dropped because the processing queue was full",
			},
		)

		deviceCommands = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_commands_total",
				Help: "Total device commands by action and result",
			},
			[]string{"action", "result"},
		)
		insightRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "insight_requests_total",
				Help: "Total insight requests by feature and outcome",
			},
			[]string{"feature", "outcome"},
		)
		insightTokensEst = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "insight_tokens_budgeted_total",
				Help: "Token budget spent on completions by feature",
			},
			[]string{"feature"},
		)

		prometheus.MustRegister(
			fetchTotal,
			fetchLatency,
			activePower,
			solarPower,
			anomalies,
			sinkWrites,
			droppedSnapshots,
			deviceCommands,
			insightRequests,
			insightTokensEst,
		)
	})
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one remote fetch
func ObserveFetch(channel, status string, duration time.Duration) {
	if fetchTotal != nil {
		fetchTotal.WithLabelValues(channel, status).Inc()
	}
	if fetchLatency != nil {
		fetchLatency.WithLabelValues(channel).Observe(duration.Seconds())
	}
}

// SetPower records the latest power readings
func SetPower(active, solar float64) {
	if activePower != nil {
		activePower.Set(active)
	}
	if solarPower != nil {
		solarPower.Set(solar)
	}
}

// IncAnomaly counts an anomalous tick
func IncAnomaly() {
	if anomalies != nil {
		anomalies.Inc()
	}
}

// ObserveSinkWrite records a sink write
func ObserveSinkWrite(sink string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	if sinkWrites != nil {
		sinkWrites.WithLabelValues(sink, result).Inc()
	}
}

// IncDroppedSnapshot counts a snapshot dropped on a full queue
func IncDroppedSnapshot() {
	if droppedSnapshots != nil {
		droppedSnapshots.Inc()
	}
}

// ObserveDeviceCommand records a device command
func ObserveDeviceCommand(action string, err error) {
	if action == "" {
		action = "unknown"
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	if deviceCommands != nil {
		deviceCommands.WithLabelValues(action, result).Inc()
	}
}

// ObserveInsight records an insight request; outcome is one of
// generated, cached, rate_limited, disabled, error
func ObserveInsight(feature, outcome string, tokens int) {
	if insightRequests != nil {
		insightRequests.WithLabelValues(feature, outcome).Inc()
	}
	if insightTokensEst != nil && tokens > 0 {
		insightTokensEst.WithLabelValues(feature).Add(float64(tokens))
	}
}
