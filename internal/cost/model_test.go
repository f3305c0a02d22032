package cost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour int) time.Time {
	return time.Date(2026, 10, 19, hour, 30, 0, 0, time.UTC)
}

func touConfig() Config {
	return Config{
		EnergyRate:       0.12,
		DistributionRate: 0.05,
		SolarCredit:      0.10,
		TimeOfUse: []Period{
			{Name: "peak", Rate: Rate(0.20), Hours: []HourRange{{16, 21}}},
			{Name: "standard", Rate: Rate(0.12)},
		},
	}
}

func TestCurrentRate_Flat(t *testing.T) {
	m := New(Config{EnergyRate: 0.12, DistributionRate: 0.04})
	assert.InDelta(t, 0.16, m.CurrentRateAt(at(18)), 1e-9)
	assert.InDelta(t, 0.16, m.TotalRate(), 1e-9)
	assert.False(t, m.HasTimeOfUse())
}

func TestCurrentRate_TimeOfUsePrecedence(t *testing.T) {
	m := New(touConfig())

	assert.InDelta(t, 0.20+0.05, m.CurrentRateAt(at(18)), 1e-9)
	assert.InDelta(t, 0.12+0.05, m.CurrentRateAt(at(10)), 1e-9)
	// End hour is exclusive
	assert.InDelta(t, 0.12+0.05, m.CurrentRateAt(at(21)), 1e-9)
	assert.InDelta(t, 0.20+0.05, m.CurrentRateAt(at(16)), 1e-9)
}

func TestCurrentRate_FirstMatchWins(t *testing.T) {
	m := New(Config{
		EnergyRate: 0.10,
		TimeOfUse: []Period{
			{Name: "shoulder", Rate: Rate(0.30), Hours: []HourRange{{10, 14}}},
			{Name: "peak", Rate: Rate(0.40), Hours: []HourRange{{12, 16}}},
		},
	})
	assert.InDelta(t, 0.30, m.CurrentRateAt(at(13)), 1e-9)
	assert.InDelta(t, 0.40, m.CurrentRateAt(at(15)), 1e-9)
}

func TestCurrentRate_FallbacksWithoutStandard(t *testing.T) {
	m := New(Config{
		EnergyRate:       0.11,
		DistributionRate: 0.02,
		TimeOfUse: []Period{
			{Name: "night", Hours: []HourRange{{0, 6}}},
			{Name: "peak", Rate: Rate(0.25), Hours: []HourRange{{17, 20}}},
		},
	})
	// Period without a rate uses the energy rate
	assert.InDelta(t, 0.13, m.CurrentRateAt(at(3)), 1e-9)
	// No matching period and no standard period
	assert.InDelta(t, 0.13, m.CurrentRateAt(at(10)), 1e-9)
}

func TestCurrentRate_UsesClock(t *testing.T) {
	m := New(touConfig(), WithClock(func() time.Time { return at(17) }))
	assert.InDelta(t, 0.25, m.CurrentRate(), 1e-9)
	assert.InDelta(t, 2.5, m.PeakEventCost(5000, 2), 1e-9)
	assert.InDelta(t, 0.5, m.InstantaneousCost(2000), 1e-9)
}

func TestDailyCost(t *testing.T) {
	flat := New(Config{EnergyRate: 0.12, DistributionRate: 0.05})
	assert.InDelta(t, 1.2, flat.DailyCost(10), 1e-9)

	tou := New(Config{
		EnergyRate:       0.12,
		DistributionRate: 0.05,
		TimeOfUse: []Period{
			{Name: "peak", Rate: Rate(0.20), Hours: []HourRange{{16, 21}}},
			{Name: "off_peak", Rate: Rate(0.08), Hours: []HourRange{{0, 6}, {22, 24}}},
			{Name: "standard", Rate: Rate(0.12)},
		},
	})
	weighted := (0.20*5 + 0.08*8) / 13
	assert.InDelta(t, 10*weighted, tou.DailyCost(10), 1e-9)

	noHours := New(Config{
		EnergyRate: 0.15,
		TimeOfUse:  []Period{{Name: "standard", Rate: Rate(0.30)}},
	})
	assert.InDelta(t, 1.5, noHours.DailyCost(10), 1e-9)
}

func TestNetCostRoundTrip(t *testing.T) {
	models := []*Model{
		New(Config{EnergyRate: 0.12, SolarCredit: 0.10}),
		New(touConfig()),
	}
	values := []float64{0, 0.5, 3, 12.3, 250}
	for _, m := range models {
		for _, u := range values {
			for _, p := range values {
				assert.InDelta(t, m.DailyCost(u)-m.SolarSavings(p), m.NetCost(u, p), 1e-9)
			}
		}
	}
}

func TestEstimateMonthlyBill(t *testing.T) {
	m := New(Config{EnergyRate: 0.12, SolarCredit: 0.10})

	bill := m.EstimateMonthlyBill(10, 2, 30, 10)

	assert.InDelta(t, 300, bill.MonthlyUsageKWh, 1e-9)
	assert.InDelta(t, 60, bill.MonthlyProductionKWh, 1e-9)
	assert.InDelta(t, 240, bill.NetUsageKWh, 1e-9)
	assert.InDelta(t, 36.0, bill.UsageCost, 1e-9)
	assert.InDelta(t, 6.0, bill.SolarSavings, 1e-9)
	assert.InDelta(t, 30.0, bill.NetEnergyCost, 1e-9)
	assert.InDelta(t, 10.0, bill.FixedCharges, 1e-9)
	assert.InDelta(t, 40.0, bill.EstimatedTotal, 1e-9)
	assert.InDelta(t, 0.12, bill.AverageRate, 1e-9)
}

func TestRateInfo(t *testing.T) {
	m := New(touConfig(), WithClock(func() time.Time { return at(9) }))
	info := m.RateInfo()

	assert.True(t, info.HasTimeOfUse)
	assert.Equal(t, []string{"peak", "standard"}, info.TOUPeriods)
	assert.InDelta(t, 0.17, info.CurrentRate, 1e-9)
	assert.Equal(t, 0.12, info.BaseRate)
	assert.Equal(t, 0.10, info.SolarCredit)
}

func TestModelCopiesSchedule(t *testing.T) {
	cfg := touConfig()
	m := New(cfg)

	*cfg.TimeOfUse[0].Rate = 9
	cfg.TimeOfUse[0].Hours[0] = HourRange{0, 24}

	assert.InDelta(t, 0.17, m.CurrentRateAt(at(10)), 1e-9)
	assert.InDelta(t, 0.25, m.CurrentRateAt(at(18)), 1e-9)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, touConfig().Validate())

	assert.Error(t, Config{EnergyRate: -1}.Validate())
	assert.Error(t, Config{SolarCredit: -0.1}.Validate())
	assert.Error(t, Config{TimeOfUse: []Period{{Name: "x", Hours: []HourRange{{20, 18}}}}}.Validate())
	assert.Error(t, Config{TimeOfUse: []Period{{Name: "x", Hours: []HourRange{{20, 25}}}}}.Validate())
	assert.Error(t, Config{TimeOfUse: []Period{{Rate: Rate(0.1)}}}.Validate())
}
