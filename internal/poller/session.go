package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/sense"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/statistics"
)

// Session owns the remote source, the statistics engine and both coordinators
// of one monitor. It is created and closed by the caller.
type Session struct {
	source    sense.Source
	engine    *statistics.Engine
	realtime  *RealtimeCoordinator
	trend     *TrendCoordinator
	publisher Publisher

	mu      sync.RWMutex
	account sense.Account
	ready   bool
}

// Option configures a Session
type Option func(*sessionOptions)

type sessionOptions struct {
	publisher Publisher
	now       func() time.Time
}

// WithPublisher hands every fresh snapshot to p
func WithPublisher(p Publisher) Option {
	return func(o *sessionOptions) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithClock overrides the time source used for snapshot timestamps
func WithClock(now func() time.Time) Option {
	return func(o *sessionOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewSession creates a session. Start must succeed before Run.
func NewSession(source sense.Source, engine *statistics.Engine, cfg Config, opts ...Option) *Session {
	cfg = cfg.withDefaults()
	o := sessionOptions{publisher: nopPublisher{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Session{
		source:    source,
		engine:    engine,
		realtime:  NewRealtimeCoordinator(source, engine, cfg.RealtimeInterval, o.now),
		trend:     NewTrendCoordinator(source, cfg.TrendInterval, o.now),
		publisher: o.publisher,
	}
}

// Start authenticates and performs the first refresh of both channels.
// Rejected credentials or a missing monitor yield ErrSetupFailed, also when
// they surface on a first refresh; timeouts and connectivity failures during
// login yield ErrNotReady and may be retried. A first refresh that times out
// or cannot connect still starts the session with degraded data.
func (s *Session) Start(ctx context.Context) error {
	account, err := s.source.Authenticate(ctx)
	if err != nil {
		if sense.IsFatal(err) {
			return fmt.Errorf("%w: %w", ErrSetupFailed, err)
		}
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	s.mu.Lock()
	s.account = account
	s.mu.Unlock()

	log.WithField("monitor_id", account.MonitorID).Info("Authenticated, running first refresh")

	result := s.realtime.fetch(ctx)
	if result.Status == sense.StatusFatal {
		return fmt.Errorf("%w: %w", ErrSetupFailed, result.Err)
	}
	s.publisher.PublishRealtime(account.MonitorID, s.realtime.apply(result))

	result = s.trend.fetch(ctx)
	if result.Status == sense.StatusFatal {
		return fmt.Errorf("%w: %w", ErrSetupFailed, result.Err)
	}
	s.publisher.PublishTrend(account.MonitorID, s.trend.apply(result))

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	return nil
}

// Run drives both refresh loops until ctx is cancelled
func (s *Session) Run(ctx context.Context) error {
	if !s.Ready() {
		return fmt.Errorf("%w: session not started", ErrNotReady)
	}

	log.WithFields(logrus.Fields{
		"realtime_interval": s.realtime.Interval(),
		"trend_interval":    s.trend.Interval(),
	}).Info("Starting refresh loops")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runLoop(ctx, s.realtime.Interval(), s.refreshRealtime)
	})
	g.Go(func() error {
		return runLoop(ctx, s.trend.Interval(), s.refreshTrend)
	})
	return g.Wait()
}

func runLoop(ctx context.Context, interval time.Duration, refresh func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			refresh(ctx)
		}
	}
}

func (s *Session) refreshRealtime(ctx context.Context) {
	s.publisher.PublishRealtime(s.Account().MonitorID, s.realtime.Refresh(ctx))
}

func (s *Session) refreshTrend(ctx context.Context) {
	s.publisher.PublishTrend(s.Account().MonitorID, s.trend.Refresh(ctx))
}

// Close releases the remote source
func (s *Session) Close() error {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
	return s.source.Close()
}

// Ready reports whether Start completed
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Account returns the authenticated account
func (s *Session) Account() sense.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// Engine returns the statistics engine fed by the realtime channel
func (s *Session) Engine() *statistics.Engine {
	return s.engine
}

// Realtime returns the realtime coordinator
func (s *Session) Realtime() *RealtimeCoordinator {
	return s.realtime
}

// Trend returns the trend coordinator
func (s *Session) Trend() *TrendCoordinator {
	return s.trend
}

// LatestRealtime returns the last realtime snapshot
func (s *Session) LatestRealtime() (models.RealtimeSnapshot, bool) {
	return s.realtime.Latest()
}

// LatestTrend returns the last trend snapshot
func (s *Session) LatestTrend() (models.TrendSnapshot, bool) {
	return s.trend.Latest()
}
