// Package poller drives the two refresh channels of a monitor session.
//
// The realtime channel polls live power at a short, configurable interval and
// feeds the statistics engine. The trend channel polls cumulative usage every
// few minutes. Failures on either channel are logged and never stop the loop;
// each channel keeps its own latest snapshot and timestamps.
package poller

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
)

const (
	// DefaultRealtimeInterval is the realtime polling interval when none is configured
	DefaultRealtimeInterval = 60 * time.Second

	// DefaultTrendInterval is the trend polling interval
	DefaultTrendInterval = 5 * time.Minute

	channelRealtime = "realtime"
	channelTrend    = "trend"
)

// RealtimeIntervals lists the accepted realtime polling intervals
var RealtimeIntervals = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

var (
	// ErrSetupFailed is returned by Start when the session can never start, e.g. bad credentials
	ErrSetupFailed = errors.New("poller: setup failed")

	// ErrNotReady is returned by Start when the remote source is temporarily unreachable
	ErrNotReady = errors.New("poller: source not ready")
)

var log = logrus.WithField("component", "poller")

// Config holds the polling intervals
type Config struct {
	RealtimeInterval time.Duration
	TrendInterval    time.Duration
}

// Validate checks the realtime interval against the accepted set
func (c Config) Validate() error {
	if err := ValidateRealtimeInterval(c.RealtimeInterval); err != nil {
		return err
	}
	if c.TrendInterval < 0 {
		return fmt.Errorf("poller: negative trend interval %s", c.TrendInterval)
	}
	return nil
}

// ValidateRealtimeInterval reports whether d is one of RealtimeIntervals. Zero selects the default.
func ValidateRealtimeInterval(d time.Duration) error {
	if d == 0 {
		return nil
	}
	for _, allowed := range RealtimeIntervals {
		if d == allowed {
			return nil
		}
	}
	return fmt.Errorf("poller: realtime interval %s not in %v", d, RealtimeIntervals)
}

func (c Config) withDefaults() Config {
	if c.RealtimeInterval <= 0 {
		c.RealtimeInterval = DefaultRealtimeInterval
	}
	if c.TrendInterval <= 0 {
		c.TrendInterval = DefaultTrendInterval
	}
	return c
}

// Publisher receives every fresh snapshot with the monitor it belongs to.
// Implementations must not block.
type Publisher interface {
	PublishRealtime(monitorID string, snapshot models.RealtimeSnapshot)
	PublishTrend(monitorID string, snapshot models.TrendSnapshot)
}

type nopPublisher struct{}

func (nopPublisher) PublishRealtime(string, models.RealtimeSnapshot) {}
func (nopPublisher) PublishTrend(string, models.TrendSnapshot)       {}
