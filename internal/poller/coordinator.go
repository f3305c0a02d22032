package poller

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/metrics"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/sense"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/statistics"
)

// ChannelStatus describes the refresh history of one channel
type ChannelStatus struct {
	Name        string     `json:"name"`
	Interval    string     `json:"interval"`
	Refreshes   int        `json:"refreshes"`
	LastAttempt *time.Time `json:"last_attempt"`
	LastSuccess *time.Time `json:"last_success"`
	LastStatus  string     `json:"last_status"`
	LastError   string     `json:"last_error,omitempty"`
}

// channel holds the latest snapshot and refresh bookkeeping of one loop
type channel[T any] struct {
	name     string
	interval time.Duration

	mu          sync.RWMutex
	latest      T
	hasLatest   bool
	refreshes   int
	lastAttempt time.Time
	lastSuccess time.Time
	lastResult  sense.Result
}

func (c *channel[T]) record(snapshot T, result sense.Result, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latest = snapshot
	c.hasLatest = true
	c.refreshes++
	c.lastAttempt = at
	c.lastResult = result
	if result.OK() {
		c.lastSuccess = at
	}
}

func (c *channel[T]) get() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest, c.hasLatest
}

func (c *channel[T]) status() ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := ChannelStatus{
		Name:      c.name,
		Interval:  c.interval.String(),
		Refreshes: c.refreshes,
	}
	if !c.lastAttempt.IsZero() {
		at := c.lastAttempt
		st.LastAttempt = &at
		st.LastStatus = c.lastResult.Status.String()
	}
	if !c.lastSuccess.IsZero() {
		at := c.lastSuccess
		st.LastSuccess = &at
	}
	if c.lastResult.Err != nil {
		st.LastError = c.lastResult.Err.Error()
	}
	return st
}

// RealtimeCoordinator refreshes live power and feeds the statistics engine
type RealtimeCoordinator struct {
	source sense.Source
	engine *statistics.Engine
	now    func() time.Time
	state  channel[models.RealtimeSnapshot]
}

// NewRealtimeCoordinator creates a realtime coordinator
func NewRealtimeCoordinator(source sense.Source, engine *statistics.Engine, interval time.Duration, now func() time.Time) *RealtimeCoordinator {
	if now == nil {
		now = time.Now
	}
	return &RealtimeCoordinator{
		source: source,
		engine: engine,
		now:    now,
		state:  channel[models.RealtimeSnapshot]{name: channelRealtime, interval: interval},
	}
}

// Refresh runs one realtime tick. It never fails: on a fetch failure the last
// known attributes are used, so a snapshot is always produced.
func (c *RealtimeCoordinator) Refresh(ctx context.Context) models.RealtimeSnapshot {
	return c.apply(c.fetch(ctx))
}

// fetch asks the source for live power and logs the outcome by status
func (c *RealtimeCoordinator) fetch(ctx context.Context) sense.Result {
	start := c.now()
	result := c.source.UpdateRealtime(ctx)
	metrics.ObserveFetch(channelRealtime, result.Status.String(), c.now().Sub(start))

	entry := log.WithFields(logrus.Fields{"channel": channelRealtime, "status": result.Status.String()})
	switch result.Status {
	case sense.StatusTimeout:
		entry.WithError(result.Err).Debug("Timeout retrieving realtime data")
	case sense.StatusConnection:
		entry.WithError(result.Err).Warn("Failed to update realtime data")
	case sense.StatusFatal:
		entry.WithError(result.Err).Error("Realtime update rejected")
	}
	return result
}

// apply feeds the current attributes into the engine and stores the snapshot
func (c *RealtimeCoordinator) apply(result sense.Result) models.RealtimeSnapshot {
	attrs := c.source.Attributes()
	c.engine.Update(attrs.ActivePower, attrs.ActiveSolarPower)
	anomaly := c.engine.DetectAnomaly()
	power := c.engine.PowerSummary()
	solar := c.engine.SolarSummary()

	metrics.SetPower(attrs.ActivePower, attrs.ActiveSolarPower)
	if anomaly != nil {
		metrics.IncAnomaly()
		log.WithFields(logrus.Fields{
			"current":   anomaly.Current,
			"expected":  anomaly.Expected,
			"deviation": anomaly.Deviation,
		}).Warn(anomaly.Message)
	}

	devices := attrs.Devices
	if devices == nil {
		devices = []models.Device{}
	}
	voltage := attrs.Voltage
	if voltage == nil {
		voltage = []float64{}
	}

	snapshot := models.RealtimeSnapshot{
		ActivePower:          attrs.ActivePower,
		ActiveSolarPower:     attrs.ActiveSolarPower,
		Voltage:              voltage,
		Frequency:            attrs.Frequency,
		ActiveDevices:        attrs.ActiveDevices(),
		Devices:              devices,
		PeakPower:            power.MaxPower,
		AvgPower:             power.AvgPower,
		PowerVariance:        power.Variance,
		Recent15MinAvg:       power.Recent15MinAvg,
		SolarPeak:            solar.MaxProduction,
		SolarSelfConsumption: solar.AvgSelfConsumption,
		AnomalyDetected:      anomaly != nil,
		Anomaly:              anomaly,
		UpdatedAt:            c.now(),
	}

	if result.OK() {
		log.WithFields(logrus.Fields{
			"interval": c.state.interval,
			"power":    attrs.ActivePower,
			"solar":    attrs.ActiveSolarPower,
		}).Info("Realtime update")
	}

	c.state.record(snapshot, result, snapshot.UpdatedAt)
	return snapshot
}

// Latest returns the last snapshot, false before the first refresh
func (c *RealtimeCoordinator) Latest() (models.RealtimeSnapshot, bool) {
	return c.state.get()
}

// Interval returns the refresh interval
func (c *RealtimeCoordinator) Interval() time.Duration {
	return c.state.interval
}

// Status returns the refresh history
func (c *RealtimeCoordinator) Status() ChannelStatus {
	return c.state.status()
}

// TrendCoordinator refreshes cumulative usage and production
type TrendCoordinator struct {
	source sense.Source
	now    func() time.Time
	state  channel[models.TrendSnapshot]
}

// NewTrendCoordinator creates a trend coordinator
func NewTrendCoordinator(source sense.Source, interval time.Duration, now func() time.Time) *TrendCoordinator {
	if now == nil {
		now = time.Now
	}
	return &TrendCoordinator{
		source: source,
		now:    now,
		state:  channel[models.TrendSnapshot]{name: channelTrend, interval: interval},
	}
}

// Refresh runs one trend tick. Trend data is non-critical: any failure is
// logged at debug level and the previous values are reported.
func (c *TrendCoordinator) Refresh(ctx context.Context) models.TrendSnapshot {
	return c.apply(c.fetch(ctx))
}

func (c *TrendCoordinator) fetch(ctx context.Context) sense.Result {
	start := c.now()
	result := c.source.UpdateTrendData(ctx)
	metrics.ObserveFetch(channelTrend, result.Status.String(), c.now().Sub(start))
	return result
}

func (c *TrendCoordinator) apply(result sense.Result) models.TrendSnapshot {
	attrs := c.source.Attributes()
	entry := log.WithFields(logrus.Fields{"channel": channelTrend, "status": result.Status.String()})
	if result.OK() {
		entry.WithFields(logrus.Fields{
			"daily_usage":   attrs.DailyUsage,
			"monthly_usage": attrs.MonthlyUsage,
		}).Debug("Trend update")
	} else {
		entry.WithError(result.Err).Debug("Failed to update trend data")
	}

	snapshot := models.TrendSnapshot{
		DailyUsage:        attrs.DailyUsage,
		DailyProduction:   attrs.DailyProduction,
		WeeklyUsage:       attrs.WeeklyUsage,
		WeeklyProduction:  attrs.WeeklyProduction,
		MonthlyUsage:      attrs.MonthlyUsage,
		MonthlyProduction: attrs.MonthlyProduction,
		YearlyUsage:       attrs.YearlyUsage,
		YearlyProduction:  attrs.YearlyProduction,
		UpdatedAt:         c.now(),
	}

	c.state.record(snapshot, result, snapshot.UpdatedAt)
	return snapshot
}

// Latest returns the last snapshot, false before the first refresh
func (c *TrendCoordinator) Latest() (models.TrendSnapshot, bool) {
	return c.state.get()
}

// Interval returns the refresh interval
func (c *TrendCoordinator) Interval() time.Duration {
	return c.state.interval
}

// Status returns the refresh history
func (c *TrendCoordinator) Status() ChannelStatus {
	return c.state.status()
}
