package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/config"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
)

// Measurement names
const (
	MeasurementRealtime = "realtime_power"
	MeasurementTrend    = "trend_energy"
	MeasurementAnomaly  = "power_anomaly"
	MeasurementBuckets  = "power_minute"
)

var log = logrus.WithField("component", "influxdb")

// Client represents an InfluxDB v2 client
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	config   config.InfluxDBConfig
	errs     sync.WaitGroup
}

// NewClient initializes the InfluxDB v2 client and verifies connectivity
func NewClient(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(uint(cfg.BatchSize))
	}
	if cfg.BatchTimeout > 0 {
		opts.SetFlushInterval(uint(cfg.BatchTimeout / time.Millisecond))
	}

	// Create the client
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	// Add a health check to verify credentials
	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		config:   cfg,
	}

	// Async write errors only surface on this channel
	c.errs.Add(1)
	go c.logErrors()

	log.WithFields(logrus.Fields{"url": cfg.URL, "bucket": cfg.Bucket}).Info("Connected to InfluxDB")
	return c, nil
}

func (c *Client) logErrors() {
	defer c.errs.Done()
	for err := range c.writeAPI.Errors() {
		log.WithError(err).Error("Async write failed")
	}
}

// Name identifies the sink in logs and metrics
func (c *Client) Name() string { return "influxdb" }

// WriteRealtime writes a realtime snapshot, plus an anomaly point when one was detected
func (c *Client) WriteRealtime(_ context.Context, monitorID string, snapshot models.RealtimeSnapshot) error {
	c.writeAPI.WritePoint(RealtimePoint(monitorID, snapshot))
	if p := AnomalyPoint(monitorID, snapshot); p != nil {
		c.writeAPI.WritePoint(p)
	}
	return nil
}

// WriteTrend writes a trend snapshot
func (c *Client) WriteTrend(_ context.Context, monitorID string, snapshot models.TrendSnapshot) error {
	c.writeAPI.WritePoint(TrendPoint(monitorID, snapshot))
	return nil
}

// WritePowerBuckets writes aggregated realtime power buckets
func (c *Client) WritePowerBuckets(_ context.Context, buckets []models.PowerBucket) error {
	for _, b := range buckets {
		c.writeAPI.WritePoint(BucketPoint(b))
	}
	return nil
}

// Close flushes pending writes and closes the InfluxDB client
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
	c.errs.Wait()
}

// RealtimePoint builds the realtime_power point for a snapshot
func RealtimePoint(monitorID string, s models.RealtimeSnapshot) *write.Point {
	fields := map[string]interface{}{
		"active_power":           s.ActivePower,
		"active_solar_power":     s.ActiveSolarPower,
		"hz":                     s.Frequency,
		"peak_power":             s.PeakPower,
		"avg_power":              s.AvgPower,
		"power_variance":         s.PowerVariance,
		"recent_15min_avg":       s.Recent15MinAvg,
		"solar_peak":             s.SolarPeak,
		"solar_self_consumption": s.SolarSelfConsumption,
		"active_devices":         len(s.ActiveDevices),
		"anomaly_detected":       s.AnomalyDetected,
	}
	for i, v := range s.Voltage {
		fields[fmt.Sprintf("voltage_%d", i)] = v
	}
	return write.NewPoint(MeasurementRealtime, map[string]string{"monitor_id": monitorID}, fields, s.UpdatedAt)
}

// AnomalyPoint builds the power_anomaly point, or nil when no anomaly was detected
func AnomalyPoint(monitorID string, s models.RealtimeSnapshot) *write.Point {
	if !s.AnomalyDetected || s.Anomaly == nil {
		return nil
	}
	a := s.Anomaly
	return write.NewPoint(
		MeasurementAnomaly,
		map[string]string{"monitor_id": monitorID},
		map[string]interface{}{
			"current":   a.Current,
			"expected":  a.Expected,
			"deviation": a.Deviation,
			"message":   a.Message,
		},
		a.DetectedAt,
	)
}

// TrendPoint builds the trend_energy point for a snapshot
func TrendPoint(monitorID string, s models.TrendSnapshot) *write.Point {
	return write.NewPoint(
		MeasurementTrend,
		map[string]string{"monitor_id": monitorID},
		map[string]interface{}{
			"daily_usage":        s.DailyUsage,
			"daily_production":   s.DailyProduction,
			"weekly_usage":       s.WeeklyUsage,
			"weekly_production":  s.WeeklyProduction,
			"monthly_usage":      s.MonthlyUsage,
			"monthly_production": s.MonthlyProduction,
			"yearly_usage":       s.YearlyUsage,
			"yearly_production":  s.YearlyProduction,
		},
		s.UpdatedAt,
	)
}

// BucketPoint builds the power_minute point for an aggregated bucket
func BucketPoint(b models.PowerBucket) *write.Point {
	return write.NewPoint(
		MeasurementBuckets,
		map[string]string{"monitor_id": b.MonitorID},
		map[string]interface{}{
			"reading_count": b.ReadingCount,
			"max_power":     b.MaxPower,
			"min_power":     b.MinPower,
			"avg_power":     b.AvgPower,
		},
		b.Timestamp,
	)
}
