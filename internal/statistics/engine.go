// Package statistics keeps rolling power and solar statistics for one monitor and
// derives spike, anomaly and insight signals from them.
//
// None of the queries fail: with too little data they return zero values or nil.
package statistics

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
)

const (
	// MinAnomalySamples is the history length required before anomalies are reported
	MinAnomalySamples = 10

	// AnomalyDeviation is the number of standard deviations that marks an anomaly
	AnomalyDeviation = 3.0

	insightSpikeThreshold = 1.5
)

var log = logrus.WithField("component", "statistics")

// Engine owns the power and solar statistics of one monitor session
type Engine struct {
	mu        sync.RWMutex
	power     *PowerStatistics
	solar     *SolarStatistics
	lastReset time.Time
	now       Clock
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source
func WithClock(now Clock) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an analytics engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	e.power = NewPowerStatistics(e.now)
	e.solar = NewSolarStatistics(e.now)
	e.lastReset = dateOf(e.now())
	return e
}

// Update ingests one realtime sample. A calendar-day rollover since the last
// reset resets both statistics before the sample is applied.
func (e *Engine) Update(power, solar float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	today := dateOf(e.now())
	if today.After(e.lastReset) {
		e.resetDailyLocked()
		e.lastReset = today
	}

	e.power.Update(power)
	if solar > 0 {
		e.solar.Update(solar, power)
	}
}

// ResetDaily resets the daily statistics
func (e *Engine) ResetDaily() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetDailyLocked()
}

func (e *Engine) resetDailyLocked() {
	log.Info("Resetting daily statistics")
	e.power.ResetDaily()
	e.solar.ResetDaily()
}

// LastReset returns the date of the last daily reset
func (e *Engine) LastReset() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastReset
}

// RecentAverage returns the mean power over the trailing window
func (e *Engine) RecentAverage(window time.Duration) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.power.RecentAverage(window)
}

// StandardDeviation returns the sample standard deviation of the retained power history
func (e *Engine) StandardDeviation() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.power.StandardDeviation()
}

// IsSpike reports whether the current power exceeds threshold times the average
func (e *Engine) IsSpike(threshold float64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.power.IsSpike(threshold)
}

// History returns the retained power readings, oldest first
func (e *Engine) History() []models.PowerReading {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.power.History()
}

// PowerSummary returns the rounded power statistics
func (e *Engine) PowerSummary() models.PowerSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.power.Summary()
}

// SolarSummary returns the rounded solar statistics
func (e *Engine) SolarSummary() models.SolarSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.solar.Summary()
}

// DetectAnomaly compares the current reading to the 15 minute average.
// It returns nil with fewer than MinAnomalySamples readings or a flat history.
func (e *Engine) DetectAnomaly() *models.Anomaly {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.power.Len() < MinAnomalySamples {
		return nil
	}

	expected := e.power.RecentAverage(RecentWindow)
	sd := e.power.StandardDeviation()
	if sd <= 0 {
		return nil
	}

	current := e.power.CurrentPower
	deviation := math.Abs(current-expected) / sd
	if deviation <= AnomalyDeviation {
		return nil
	}

	return &models.Anomaly{
		Detected:   true,
		Current:    current,
		Expected:   expected,
		Deviation:  deviation,
		Message:    fmt.Sprintf("Unusual power usage detected: %.0fW (expected ~%.0fW)", current, expected),
		DetectedAt: e.now(),
	}
}

// Insights returns rule-based observations about the current statistics
func (e *Engine) Insights() models.Insights {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var insights []models.Insight

	if e.power.IsSpike(insightSpikeThreshold) {
		insights = append(insights, models.Insight{
			Type: "high_usage",
			Message: fmt.Sprintf("Current usage (%.0fW) is significantly higher than average (%.0fW)",
				e.power.CurrentPower, e.power.AvgPower),
			Severity: "warning",
		})
	}

	if e.power.MaxPower > 0 {
		at := "unknown"
		if !e.power.PeakTime.IsZero() {
			at = e.power.PeakTime.Format("03:04 PM")
		}
		insights = append(insights, models.Insight{
			Type:     "peak_usage",
			Message:  fmt.Sprintf("Peak usage today: %.0fW at %s", e.power.MaxPower, at),
			Severity: "info",
		})
	}

	if len(e.solar.selfConsumption) > 0 {
		avg := e.solar.AverageSelfConsumption()
		switch {
		case avg < 50:
			insights = append(insights, models.Insight{
				Type:     "solar_efficiency",
				Message:  fmt.Sprintf("Low solar self-consumption (%.0f%%). Consider running appliances during sunny hours.", avg),
				Severity: "info",
			})
		case avg > 90:
			insights = append(insights, models.Insight{
				Type:     "solar_efficiency",
				Message:  fmt.Sprintf("Excellent solar self-consumption (%.0f%%)! You're maximizing your solar investment.", avg),
				Severity: "success",
			})
		}
	}

	return models.Insights{
		Insights: insights,
		Power:    e.power.Summary(),
		Solar:    e.solar.Summary(),
	}
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
