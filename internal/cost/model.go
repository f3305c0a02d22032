// Package cost turns energy quantities and a flat or time-of-use rate structure
// into currency amounts. A Model is immutable; rebuild it when the rates change.
package cost

import (
	"errors"
	"fmt"
	"time"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
)

const (
	// DefaultEnergyRate is the default consumption rate per kWh
	DefaultEnergyRate = 0.12

	// DefaultSolarCredit is the default credit per produced kWh
	DefaultSolarCredit = 0.10

	// DefaultFixedCharges is the default fixed monthly charge
	DefaultFixedCharges = 10.0

	// DefaultDaysInMonth is used when a bill estimate does not name a month length
	DefaultDaysInMonth = 30

	// StandardPeriod names the period used when no hour range matches
	StandardPeriod = "standard"
)

// HourRange is a [Start, End) range of hours of the day
type HourRange struct {
	Start int
	End   int
}

// Contains reports whether hour falls in the range
func (r HourRange) Contains(hour int) bool {
	return r.Start <= hour && hour < r.End
}

// Period is a named time-of-use period. A nil Rate falls back to the energy rate.
type Period struct {
	Name  string
	Rate  *float64
	Hours []HourRange
}

// Rate returns a pointer to v, for building periods
func Rate(v float64) *float64 {
	return &v
}

// Config holds the rates a Model is built from
type Config struct {
	EnergyRate       float64
	DistributionRate float64
	SolarCredit      float64

	// TimeOfUse is scanned in order; on overlapping ranges the first period wins
	TimeOfUse []Period
}

// Validate checks rates and hour ranges
func (c Config) Validate() error {
	if c.EnergyRate < 0 {
		return errors.New("cost: negative energy rate")
	}
	if c.DistributionRate < 0 {
		return errors.New("cost: negative distribution rate")
	}
	if c.SolarCredit < 0 {
		return errors.New("cost: negative solar credit")
	}
	for _, p := range c.TimeOfUse {
		if p.Name == "" {
			return errors.New("cost: time-of-use period without name")
		}
		if p.Rate != nil && *p.Rate < 0 {
			return fmt.Errorf("cost: period %s: negative rate", p.Name)
		}
		for _, h := range p.Hours {
			if h.Start < 0 || h.End > 24 || h.Start >= h.End {
				return fmt.Errorf("cost: period %s: invalid hours [%d, %d)", p.Name, h.Start, h.End)
			}
		}
	}
	return nil
}

// Model computes costs from an immutable rate configuration
type Model struct {
	energyRate       float64
	distributionRate float64
	solarCredit      float64
	periods          []Period
	now              func() time.Time
}

// Option configures a Model
type Option func(*Model)

// WithClock overrides the time source used for the current rate
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

// New builds a Model. The period list is copied.
func New(cfg Config, opts ...Option) *Model {
	periods := make([]Period, len(cfg.TimeOfUse))
	for i, p := range cfg.TimeOfUse {
		hours := make([]HourRange, len(p.Hours))
		copy(hours, p.Hours)
		periods[i] = Period{Name: p.Name, Hours: hours}
		if p.Rate != nil {
			periods[i].Rate = Rate(*p.Rate)
		}
	}

	m := &Model{
		energyRate:       cfg.EnergyRate,
		distributionRate: cfg.DistributionRate,
		solarCredit:      cfg.SolarCredit,
		periods:          periods,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnergyRate returns the base consumption rate
func (m *Model) EnergyRate() float64 { return m.energyRate }

// DistributionRate returns the distribution rate
func (m *Model) DistributionRate() float64 { return m.distributionRate }

// SolarCredit returns the credit per produced kWh
func (m *Model) SolarCredit() float64 { return m.solarCredit }

// TotalRate returns the energy plus distribution rate
func (m *Model) TotalRate() float64 {
	return m.energyRate + m.distributionRate
}

// HasTimeOfUse reports whether a time-of-use schedule is configured
func (m *Model) HasTimeOfUse() bool {
	return len(m.periods) > 0
}

// CurrentRate returns the rate in effect now, including distribution
func (m *Model) CurrentRate() float64 {
	return m.CurrentRateAt(m.now())
}

// CurrentRateAt returns the rate in effect at t, including distribution
func (m *Model) CurrentRateAt(t time.Time) float64 {
	if !m.HasTimeOfUse() {
		return m.TotalRate()
	}

	hour := t.Hour()
	for _, p := range m.periods {
		for _, h := range p.Hours {
			if h.Contains(hour) {
				return m.periodRate(p) + m.distributionRate
			}
		}
	}

	for _, p := range m.periods {
		if p.Name == StandardPeriod {
			return m.periodRate(p) + m.distributionRate
		}
	}
	return m.energyRate + m.distributionRate
}

// averageRate is the hours-weighted time-of-use rate. Distribution is not included.
func (m *Model) averageRate() float64 {
	if !m.HasTimeOfUse() {
		return m.energyRate
	}

	var totalHours int
	var weighted float64
	for _, p := range m.periods {
		if len(p.Hours) == 0 {
			continue
		}
		var hours int
		for _, h := range p.Hours {
			hours += h.End - h.Start
		}
		totalHours += hours
		weighted += m.periodRate(p) * float64(hours)
	}
	if totalHours == 0 {
		return m.energyRate
	}
	return weighted / float64(totalHours)
}

func (m *Model) periodRate(p Period) float64 {
	if p.Rate == nil {
		return m.energyRate
	}
	return *p.Rate
}

// DailyCost returns the cost of usageKWh at the daily average rate
func (m *Model) DailyCost(usageKWh float64) float64 {
	return usageKWh * m.averageRate()
}

// SolarSavings returns the credit earned for productionKWh
func (m *Model) SolarSavings(productionKWh float64) float64 {
	return productionKWh * m.solarCredit
}

// NetCost returns the usage cost minus solar savings
func (m *Model) NetCost(usageKWh, productionKWh float64) float64 {
	return m.DailyCost(usageKWh) - m.SolarSavings(productionKWh)
}

// InstantaneousCost returns the cost per hour of drawing powerW watts at the current rate
func (m *Model) InstantaneousCost(powerW float64) float64 {
	return powerW / 1000 * m.CurrentRate()
}

// PeakEventCost returns the cost of drawing peakPowerW watts for durationHours
func (m *Model) PeakEventCost(peakPowerW, durationHours float64) float64 {
	return peakPowerW / 1000 * durationHours * m.CurrentRate()
}

// EstimateMonthlyBill scales daily averages to a month and adds fixed charges
func (m *Model) EstimateMonthlyBill(dailyUsageKWh, dailyProductionKWh float64, daysInMonth int, fixedCharges float64) models.MonthlyBill {
	days := float64(daysInMonth)
	monthlyUsage := dailyUsageKWh * days
	monthlyProduction := dailyProductionKWh * days

	usageCost := m.DailyCost(dailyUsageKWh) * days
	savings := m.SolarSavings(monthlyProduction)
	netEnergy := usageCost - savings

	return models.MonthlyBill{
		MonthlyUsageKWh:      monthlyUsage,
		MonthlyProductionKWh: monthlyProduction,
		NetUsageKWh:          monthlyUsage - monthlyProduction,
		UsageCost:            usageCost,
		SolarSavings:         savings,
		NetEnergyCost:        netEnergy,
		FixedCharges:         fixedCharges,
		EstimatedTotal:       netEnergy + fixedCharges,
		AverageRate:          m.energyRate,
		CurrentRate:          m.CurrentRate(),
	}
}

// RateInfo describes the configured rates
func (m *Model) RateInfo() models.RateInfo {
	names := make([]string, 0, len(m.periods))
	for _, p := range m.periods {
		names = append(names, p.Name)
	}
	return models.RateInfo{
		BaseRate:     m.energyRate,
		SolarCredit:  m.solarCredit,
		CurrentRate:  m.CurrentRate(),
		HasTimeOfUse: m.HasTimeOfUse(),
		TOUPeriods:   names,
	}
}
