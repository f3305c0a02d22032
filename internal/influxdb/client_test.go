package influxdb

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
)

func fields(p *write.Point) map[string]interface{} {
	out := make(map[string]interface{})
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func tags(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func TestRealtimePoint(t *testing.T) {
	at := time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)
	p := RealtimePoint("m-1", models.RealtimeSnapshot{
		ActivePower:          1500,
		ActiveSolarPower:     600,
		Voltage:              []float64{120.1, 119.8},
		Frequency:            60,
		ActiveDevices:        []string{"Fridge", "Dryer"},
		PeakPower:            2000,
		SolarSelfConsumption: 40,
		UpdatedAt:            at,
	})

	assert.Equal(t, MeasurementRealtime, p.Name())
	assert.Equal(t, map[string]string{"monitor_id": "m-1"}, tags(p))
	assert.Equal(t, at, p.Time())

	f := fields(p)
	assert.Equal(t, 1500.0, f["active_power"])
	assert.Equal(t, 600.0, f["active_solar_power"])
	assert.Equal(t, 120.1, f["voltage_0"])
	assert.Equal(t, 119.8, f["voltage_1"])
	assert.Equal(t, int64(2), f["active_devices"])
	assert.Equal(t, false, f["anomaly_detected"])
	assert.Equal(t, 40.0, f["solar_self_consumption"])
}

func TestAnomalyPoint(t *testing.T) {
	assert.Nil(t, AnomalyPoint("m-1", models.RealtimeSnapshot{}))

	at := time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)
	p := AnomalyPoint("m-1", models.RealtimeSnapshot{
		AnomalyDetected: true,
		Anomaly: &models.Anomaly{
			Detected:   true,
			Current:    5000,
			Expected:   310,
			Deviation:  4.2,
			Message:    "Unusual power usage detected",
			DetectedAt: at,
		},
	})
	require.NotNil(t, p)
	assert.Equal(t, MeasurementAnomaly, p.Name())
	assert.Equal(t, at, p.Time())
	f := fields(p)
	assert.Equal(t, 5000.0, f["current"])
	assert.Equal(t, 4.2, f["deviation"])
	assert.Equal(t, "Unusual power usage detected", f["message"])
}

func TestTrendPoint(t *testing.T) {
	p := TrendPoint("m-1", models.TrendSnapshot{DailyUsage: 12.3, DailyProduction: 4.5, YearlyUsage: 4000})
	assert.Equal(t, MeasurementTrend, p.Name())
	f := fields(p)
	assert.Len(t, f, 8)
	assert.Equal(t, 12.3, f["daily_usage"])
	assert.Equal(t, 4.5, f["daily_production"])
	assert.Equal(t, 4000.0, f["yearly_usage"])
}

func TestBucketPoint(t *testing.T) {
	at := time.Date(2026, 10, 19, 18, 1, 0, 0, time.UTC)
	p := BucketPoint(models.PowerBucket{MonitorID: "m-2", Timestamp: at, ReadingCount: 4, MaxPower: 900, MinPower: 100, AvgPower: 400})
	assert.Equal(t, MeasurementBuckets, p.Name())
	assert.Equal(t, map[string]string{"monitor_id": "m-2"}, tags(p))
	assert.Equal(t, at, p.Time())
	assert.Equal(t, map[string]interface{}{
		"reading_count": int64(4),
		"max_power":     900.0,
		"min_power":     100.0,
		"avg_power":     400.0,
	}, fields(p))
}
