package statistics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestPowerStatistics_BoundedHistory(t *testing.T) {
	clock := newFakeClock()
	stats := NewPowerStatistics(clock.Now)

	for i := 0; i < 150; i++ {
		stats.Update(float64(i))
		clock.Advance(time.Second)
	}

	history := stats.History()
	require.Len(t, history, HistorySize)
	for i, r := range history {
		assert.Equal(t, float64(50+i), r.Value)
	}
	assert.Equal(t, 150, stats.ReadingsCount)
}

func TestPowerStatistics_Mean(t *testing.T) {
	stats := NewPowerStatistics(nil)
	for _, v := range []float64{100, 200, 300} {
		stats.Update(v)
	}

	assert.Equal(t, 200.0, stats.AvgPower)
	assert.Equal(t, 300.0, stats.MaxPower)
	assert.Equal(t, 100.0, stats.MinPower)
	assert.LessOrEqual(t, stats.MinPower, stats.AvgPower)
	assert.LessOrEqual(t, stats.AvgPower, stats.MaxPower)
}

func TestPowerStatistics_MinIgnoresNonPositive(t *testing.T) {
	stats := NewPowerStatistics(nil)
	stats.Update(0)
	stats.Update(-20)

	assert.Equal(t, 0.0, stats.Summary().MinPower)

	stats.Update(250)
	stats.Update(0)
	assert.Equal(t, 250.0, stats.MinPower)
}

func TestPowerStatistics_IsSpike(t *testing.T) {
	stats := NewPowerStatistics(nil)
	stats.AvgPower = 100

	stats.CurrentPower = 200
	assert.False(t, stats.IsSpike(DefaultSpikeThreshold))

	stats.CurrentPower = 201
	assert.True(t, stats.IsSpike(DefaultSpikeThreshold))

	stats.AvgPower = 0
	stats.CurrentPower = 5000
	assert.False(t, stats.IsSpike(DefaultSpikeThreshold))
}

func TestPowerStatistics_RecentAverage(t *testing.T) {
	clock := newFakeClock()
	stats := NewPowerStatistics(clock.Now)

	assert.Equal(t, 0.0, stats.RecentAverage(RecentWindow))

	stats.Update(1000)
	clock.Advance(10 * time.Minute)
	stats.Update(200)
	clock.Advance(10 * time.Minute)
	stats.Update(400)

	assert.Equal(t, 300.0, stats.RecentAverage(RecentWindow))

	clock.Advance(time.Hour)
	assert.Equal(t, 0.0, stats.RecentAverage(RecentWindow))
}

func TestPowerStatistics_StandardDeviation(t *testing.T) {
	stats := NewPowerStatistics(nil)
	assert.Equal(t, 0.0, stats.StandardDeviation())

	stats.Update(2)
	assert.Equal(t, 0.0, stats.StandardDeviation())

	for _, v := range []float64{4, 4, 4, 5, 5, 7, 9} {
		stats.Update(v)
	}
	assert.InDelta(t, 2.138, stats.StandardDeviation(), 0.001)
}

func TestPowerStatistics_ResetKeepsHistory(t *testing.T) {
	stats := NewPowerStatistics(nil)
	stats.Update(800)
	stats.Update(300)

	stats.ResetDaily()

	assert.Equal(t, 300.0, stats.MaxPower)
	assert.Equal(t, 300.0, stats.MinPower)
	assert.True(t, stats.PeakTime.IsZero())
	assert.Equal(t, 0, stats.ReadingsCount)
	assert.Equal(t, 2, stats.Len())
}

func TestSolarStatistics_SelfConsumptionBounds(t *testing.T) {
	solar := NewSolarStatistics(nil)
	cases := []struct {
		production  float64
		consumption float64
	}{
		{1000, 400},
		{1000, 2500},
		{500, 0},
		{750, -100},
		{0.5, 0.25},
	}
	for _, c := range cases {
		solar.Update(c.production, c.consumption)
	}

	rates := solar.SelfConsumptionRates()
	require.Len(t, rates, len(cases))
	for _, r := range rates {
		assert.GreaterOrEqual(t, r, 0.0)
		assert.LessOrEqual(t, r, 100.0)
	}
	assert.Equal(t, 40.0, rates[0])
	assert.Equal(t, 100.0, rates[1])
	assert.Equal(t, 1000.0, solar.MaxProduction)
}

func TestSolarStatistics_BoundedRates(t *testing.T) {
	solar := NewSolarStatistics(nil)
	for i := 0; i < 130; i++ {
		solar.Update(100, float64(i%100))
	}
	assert.Len(t, solar.SelfConsumptionRates(), HistorySize)

	solar.Update(0, 500)
	assert.Len(t, solar.SelfConsumptionRates(), HistorySize)
}

func TestEngine_ColdStart(t *testing.T) {
	engine := NewEngine()
	engine.Update(500, 0)

	summary := engine.PowerSummary()
	assert.Equal(t, 500.0, summary.MaxPower)
	assert.Equal(t, 500.0, summary.MinPower)
	assert.Equal(t, 500.0, summary.AvgPower)
	assert.Equal(t, 1, summary.ReadingsCount)
	assert.Nil(t, engine.DetectAnomaly())
	assert.Equal(t, 0.0, engine.SolarSummary().MaxProduction)
}

func TestEngine_AnomalyGating(t *testing.T) {
	clock := newFakeClock()
	engine := NewEngine(WithClock(clock.Now))

	for i := 0; i < MinAnomalySamples-2; i++ {
		engine.Update(100+float64(i%2)*10, 0)
		clock.Advance(10 * time.Second)
	}
	engine.Update(1_000_000, 0)

	assert.Len(t, engine.History(), MinAnomalySamples-1)
	assert.Nil(t, engine.DetectAnomaly())
}

func TestEngine_DetectAnomaly(t *testing.T) {
	clock := newFakeClock()
	engine := NewEngine(WithClock(clock.Now))

	for i := 0; i < 30; i++ {
		engine.Update(100+float64(i%2)*10, 0)
		clock.Advance(10 * time.Second)
	}
	assert.Nil(t, engine.DetectAnomaly())

	engine.Update(1000, 0)
	anomaly := engine.DetectAnomaly()
	require.NotNil(t, anomaly)
	assert.True(t, anomaly.Detected)
	assert.Equal(t, 1000.0, anomaly.Current)
	assert.Greater(t, anomaly.Deviation, AnomalyDeviation)
	assert.InDelta(t, 4150.0/31.0, anomaly.Expected, 0.001)
	assert.Contains(t, anomaly.Message, "1000W")
}

func TestEngine_FlatHistoryNeverFlags(t *testing.T) {
	engine := NewEngine()
	for i := 0; i < 20; i++ {
		engine.Update(250, 0)
	}
	assert.Equal(t, 0.0, engine.StandardDeviation())
	assert.Nil(t, engine.DetectAnomaly())
}

func TestEngine_DayRollover(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 19, 23, 58, 0, 0, time.UTC)}
	engine := NewEngine(WithClock(clock.Now))

	engine.Update(500, 800)
	require.Equal(t, 800.0, engine.SolarSummary().MaxProduction)

	clock.Advance(5 * time.Minute)
	engine.Update(300, 0)

	summary := engine.PowerSummary()
	assert.Equal(t, 500.0, summary.MaxPower)
	assert.Equal(t, 1, summary.ReadingsCount)
	assert.Nil(t, summary.PeakTime)
	assert.Len(t, engine.History(), 2)
	assert.Equal(t, 0.0, engine.SolarSummary().MaxProduction)
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), engine.LastReset())

	// Second reading on the same day does not reset again
	clock.Advance(time.Minute)
	engine.Update(900, 0)
	assert.Equal(t, 2, engine.PowerSummary().ReadingsCount)
	assert.Equal(t, 900.0, engine.PowerSummary().MaxPower)
}

func TestEngine_Insights(t *testing.T) {
	clock := newFakeClock()
	engine := NewEngine(WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		engine.Update(100, 1000)
	}
	engine.Update(1000, 1000)

	insights := engine.Insights()
	types := make([]string, 0, len(insights.Insights))
	for _, in := range insights.Insights {
		types = append(types, in.Type)
	}
	assert.Contains(t, types, "high_usage")
	assert.Contains(t, types, "peak_usage")
	assert.Contains(t, types, "solar_efficiency")
	assert.Equal(t, 1000.0, insights.Power.MaxPower)
	assert.Equal(t, 1000.0, insights.Solar.MaxProduction)
}

func TestEngine_InsightsEmptyOnColdStart(t *testing.T) {
	engine := NewEngine()
	insights := engine.Insights()
	assert.Empty(t, insights.Insights)
	assert.Equal(t, 0.0, insights.Power.AvgPower)
}
