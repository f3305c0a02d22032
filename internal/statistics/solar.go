package statistics

import (
	"math"
	"time"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
)

// SolarStatistics tracks solar production and self-consumption
type SolarStatistics struct {
	MaxProduction float64
	PeakTime      time.Time

	selfConsumption []float64
	now             Clock
}

// NewSolarStatistics creates empty solar statistics
func NewSolarStatistics(now Clock) *SolarStatistics {
	if now == nil {
		now = time.Now
	}
	return &SolarStatistics{
		selfConsumption: make([]float64, 0, HistorySize),
		now:             now,
	}
}

// Update records a production reading together with the concurrent consumption
func (s *SolarStatistics) Update(production, consumption float64) {
	if production > s.MaxProduction {
		s.MaxProduction = production
		s.PeakTime = s.now()
	}

	if production <= 0 {
		return
	}

	selfConsumed := math.Max(0, math.Min(consumption, production))
	rate := selfConsumed / production * 100

	if len(s.selfConsumption) == HistorySize {
		copy(s.selfConsumption, s.selfConsumption[1:])
		s.selfConsumption = s.selfConsumption[:HistorySize-1]
	}
	s.selfConsumption = append(s.selfConsumption, rate)
}

// SelfConsumptionRates returns a copy of the retained self-consumption percentages
func (s *SolarStatistics) SelfConsumptionRates() []float64 {
	out := make([]float64, len(s.selfConsumption))
	copy(out, s.selfConsumption)
	return out
}

// AverageSelfConsumption returns the mean self-consumption percentage, or 0 without readings
func (s *SolarStatistics) AverageSelfConsumption() float64 {
	if len(s.selfConsumption) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.selfConsumption {
		sum += v
	}
	return sum / float64(len(s.selfConsumption))
}

// ResetDaily clears the daily production peak
func (s *SolarStatistics) ResetDaily() {
	s.MaxProduction = 0
	s.PeakTime = time.Time{}
}

// Summary returns a rounded view of the statistics
func (s *SolarStatistics) Summary() models.SolarSummary {
	return models.SolarSummary{
		MaxProduction:      round1(s.MaxProduction),
		PeakTime:           timePtr(s.PeakTime),
		AvgSelfConsumption: round1(s.AverageSelfConsumption()),
	}
}
