package statistics

import (
	"math"
	"time"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
)

const (
	// HistorySize is the number of readings retained for windowed statistics
	HistorySize = 100

	// DefaultSpikeThreshold is the multiple of the average that counts as a spike
	DefaultSpikeThreshold = 2.0

	// RecentWindow is the window used for the recent average and anomaly baseline
	RecentWindow = 15 * time.Minute
)

// Clock returns the current time
type Clock func() time.Time

// PowerStatistics tracks running power statistics over a bounded history.
// MinPower stays at +Inf until the first positive reading arrives.
type PowerStatistics struct {
	MaxPower      float64
	MinPower      float64
	AvgPower      float64
	CurrentPower  float64
	PeakTime      time.Time
	ReadingsCount int

	history []models.PowerReading
	now     Clock
}

// NewPowerStatistics creates empty power statistics
func NewPowerStatistics(now Clock) *PowerStatistics {
	if now == nil {
		now = time.Now
	}
	return &PowerStatistics{
		MinPower: math.Inf(1),
		history:  make([]models.PowerReading, 0, HistorySize),
		now:      now,
	}
}

// Update records a new power reading
func (s *PowerStatistics) Update(power float64) {
	now := s.now()
	s.CurrentPower = power
	s.ReadingsCount++

	if len(s.history) == HistorySize {
		copy(s.history, s.history[1:])
		s.history = s.history[:HistorySize-1]
	}
	s.history = append(s.history, models.PowerReading{Value: power, Timestamp: now})

	if power > s.MaxPower {
		s.MaxPower = power
		s.PeakTime = now
	}

	// Zero and negative readings never count as a minimum
	if power > 0 && power < s.MinPower {
		s.MinPower = power
	}

	s.AvgPower = meanOf(s.history)
}

// History returns a copy of the retained readings, oldest first
func (s *PowerStatistics) History() []models.PowerReading {
	out := make([]models.PowerReading, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of retained readings
func (s *PowerStatistics) Len() int {
	return len(s.history)
}

// RecentAverage returns the mean of readings newer than now-window, or 0 if there are none
func (s *PowerStatistics) RecentAverage(window time.Duration) float64 {
	if len(s.history) == 0 {
		return 0
	}

	cutoff := s.now().Add(-window)
	var sum float64
	var count int
	for _, r := range s.history {
		if r.Timestamp.After(cutoff) {
			sum += r.Value
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// StandardDeviation returns the sample standard deviation of the retained readings.
// It is reported as "variance" in snapshots.
func (s *PowerStatistics) StandardDeviation() float64 {
	n := len(s.history)
	if n < 2 {
		return 0
	}

	mean := meanOf(s.history)
	var sq float64
	for _, r := range s.history {
		d := r.Value - mean
		sq += d * d
	}
	sd := math.Sqrt(sq / float64(n-1))
	if math.IsNaN(sd) || math.IsInf(sd, 0) {
		return 0
	}
	return sd
}

// IsSpike reports whether the current reading exceeds threshold times the average
func (s *PowerStatistics) IsSpike(threshold float64) bool {
	if s.AvgPower == 0 {
		return false
	}
	return s.CurrentPower > s.AvgPower*threshold
}

// ResetDaily collapses max and min to the current reading. History is kept, so
// variance and anomaly detection keep spanning the day boundary.
func (s *PowerStatistics) ResetDaily() {
	s.MaxPower = s.CurrentPower
	s.MinPower = s.CurrentPower
	s.PeakTime = time.Time{}
	s.ReadingsCount = 0
}

// Summary returns a rounded view of the statistics
func (s *PowerStatistics) Summary() models.PowerSummary {
	minPower := s.MinPower
	if math.IsInf(minPower, 1) {
		minPower = 0
	}
	return models.PowerSummary{
		MaxPower:       round1(s.MaxPower),
		MinPower:       round1(minPower),
		AvgPower:       round1(s.AvgPower),
		CurrentPower:   round1(s.CurrentPower),
		PeakTime:       timePtr(s.PeakTime),
		Variance:       round1(s.StandardDeviation()),
		ReadingsCount:  s.ReadingsCount,
		Recent15MinAvg: round1(s.RecentAverage(RecentWindow)),
	}
}

func meanOf(readings []models.PowerReading) float64 {
	if len(readings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range readings {
		sum += r.Value
	}
	return sum / float64(len(readings))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
