package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/sense"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/statistics"
)

type stubSource struct {
	mu           sync.Mutex
	authErr      error
	realtimeErr  error
	trendErr     error
	attrs        sense.Attributes
	nextRealtime *sense.Attributes
	nextTrend    *sense.Attributes
	realtimeHits int
	trendHits    int
	closed       bool
}

func (s *stubSource) Authenticate(context.Context) (sense.Account, error) {
	if s.authErr != nil {
		return sense.Account{}, s.authErr
	}
	return sense.Account{UserID: "7", MonitorID: "m-1"}, nil
}

func (s *stubSource) UpdateRealtime(context.Context) sense.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realtimeHits++
	if s.realtimeErr != nil {
		return sense.ResultOf(s.realtimeErr)
	}
	if s.nextRealtime != nil {
		s.attrs.ActivePower = s.nextRealtime.ActivePower
		s.attrs.ActiveSolarPower = s.nextRealtime.ActiveSolarPower
		s.attrs.Devices = s.nextRealtime.Devices
	}
	return sense.Result{Status: sense.StatusOK}
}

func (s *stubSource) UpdateTrendData(context.Context) sense.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trendHits++
	if s.trendErr != nil {
		return sense.ResultOf(s.trendErr)
	}
	if s.nextTrend != nil {
		s.attrs.DailyUsage = s.nextTrend.DailyUsage
		s.attrs.MonthlyUsage = s.nextTrend.MonthlyUsage
	}
	return sense.Result{Status: sense.StatusOK}
}

func (s *stubSource) Attributes() sense.Attributes {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs.Clone()
}

func (s *stubSource) Close() error {
	s.closed = true
	return nil
}

func (s *stubSource) hits() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realtimeHits, s.trendHits
}

type recordingPublisher struct {
	mu       sync.Mutex
	monitors []string
	realtime []models.RealtimeSnapshot
	trend    []models.TrendSnapshot
}

func (p *recordingPublisher) PublishRealtime(monitorID string, s models.RealtimeSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.monitors = append(p.monitors, monitorID)
	p.realtime = append(p.realtime, s)
}

func (p *recordingPublisher) PublishTrend(monitorID string, s models.TrendSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.monitors = append(p.monitors, monitorID)
	p.trend = append(p.trend, s)
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestTrendRefreshFailureKeepsPriorValues(t *testing.T) {
	source := &stubSource{nextTrend: &sense.Attributes{DailyUsage: 12.3, MonthlyUsage: 240}}
	trend := NewTrendCoordinator(source, time.Minute, fixedClock())

	first := trend.Refresh(context.Background())
	require.Equal(t, 12.3, first.DailyUsage)

	source.trendErr = fmt.Errorf("trend DAY: %w", sense.ErrConnect)
	second := trend.Refresh(context.Background())

	assert.Equal(t, 12.3, second.DailyUsage)
	assert.Equal(t, 240.0, second.MonthlyUsage)

	status := trend.Status()
	assert.Equal(t, 2, status.Refreshes)
	assert.Equal(t, "connection", status.LastStatus)
	assert.Contains(t, status.LastError, "connection failed")
	require.NotNil(t, status.LastSuccess)
}

func TestRealtimeRefreshTimeoutStillProducesSnapshot(t *testing.T) {
	source := &stubSource{nextRealtime: &sense.Attributes{ActivePower: 500}}
	engine := statistics.NewEngine()
	realtime := NewRealtimeCoordinator(source, engine, time.Minute, fixedClock())

	realtime.Refresh(context.Background())

	source.realtimeErr = sense.ErrTimeout
	snapshot := realtime.Refresh(context.Background())

	assert.Equal(t, 500.0, snapshot.ActivePower)
	assert.Equal(t, 500.0, snapshot.PeakPower)
	assert.Len(t, engine.History(), 2)
	assert.False(t, snapshot.AnomalyDetected)
	assert.Equal(t, "timeout", realtime.Status().LastStatus)

	latest, ok := realtime.Latest()
	require.True(t, ok)
	assert.Equal(t, snapshot, latest)
}

func TestRealtimeRefreshMergesStatistics(t *testing.T) {
	source := &stubSource{nextRealtime: &sense.Attributes{
		ActivePower:      1200,
		ActiveSolarPower: 3000,
		Devices: []models.Device{
			{ID: "a", Name: "Oven", State: models.DeviceStateOn},
			{ID: "b", Name: "Heater", State: models.DeviceStateOff},
		},
	}}
	realtime := NewRealtimeCoordinator(source, statistics.NewEngine(), time.Minute, fixedClock())

	snapshot := realtime.Refresh(context.Background())

	assert.Equal(t, 1200.0, snapshot.ActivePower)
	assert.Equal(t, 3000.0, snapshot.ActiveSolarPower)
	assert.Equal(t, []string{"Oven"}, snapshot.ActiveDevices)
	assert.Len(t, snapshot.Devices, 2)
	assert.Equal(t, 1200.0, snapshot.PeakPower)
	assert.Equal(t, 1200.0, snapshot.AvgPower)
	assert.Equal(t, 3000.0, snapshot.SolarPeak)
	assert.Equal(t, 40.0, snapshot.SolarSelfConsumption)
	assert.NotNil(t, snapshot.Voltage)
	assert.Nil(t, snapshot.Anomaly)
}

func TestRealtimeRefreshFlagsAnomaly(t *testing.T) {
	source := &stubSource{nextRealtime: &sense.Attributes{}}
	realtime := NewRealtimeCoordinator(source, statistics.NewEngine(), time.Minute, nil)

	for i := 0; i < 20; i++ {
		source.nextRealtime.ActivePower = 300 + float64(i%2)*20
		realtime.Refresh(context.Background())
	}
	source.nextRealtime.ActivePower = 5000
	snapshot := realtime.Refresh(context.Background())

	assert.True(t, snapshot.AnomalyDetected)
	require.NotNil(t, snapshot.Anomaly)
	assert.Equal(t, 5000.0, snapshot.Anomaly.Current)
}

func TestChannelsAgeIndependently(t *testing.T) {
	source := &stubSource{
		nextRealtime: &sense.Attributes{ActivePower: 100},
		nextTrend:    &sense.Attributes{DailyUsage: 1},
	}
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	session := NewSession(source, statistics.NewEngine(), Config{}, WithClock(clock))

	require.NoError(t, session.Start(context.Background()))

	now = now.Add(time.Minute)
	session.Realtime().Refresh(context.Background())

	rt, ok := session.LatestRealtime()
	require.True(t, ok)
	tr, ok := session.LatestTrend()
	require.True(t, ok)
	assert.Equal(t, now, rt.UpdatedAt)
	assert.Equal(t, now.Add(-time.Minute), tr.UpdatedAt)
}

func TestSessionStartErrors(t *testing.T) {
	rejected := fmt.Errorf("status: %w: status 401", sense.ErrAuth)

	tests := []struct {
		name         string
		source       *stubSource
		cause        error
		want         error
		realtimeHits int
		trendHits    int
		readings     int
	}{
		{
			name:   "bad credentials",
			source: &stubSource{authErr: fmt.Errorf("authenticate: %w", sense.ErrAuth)},
			cause:  sense.ErrAuth,
			want:   ErrSetupFailed,
		},
		{
			name:   "no monitor",
			source: &stubSource{authErr: sense.ErrNoMonitor},
			cause:  sense.ErrNoMonitor,
			want:   ErrSetupFailed,
		},
		{
			name:   "timeout",
			source: &stubSource{authErr: fmt.Errorf("authenticate: %w", sense.ErrTimeout)},
			cause:  sense.ErrTimeout,
			want:   ErrNotReady,
		},
		{
			name:   "unreachable",
			source: &stubSource{authErr: sense.ErrConnect},
			cause:  sense.ErrConnect,
			want:   ErrNotReady,
		},
		{
			name:         "realtime rejected on first refresh",
			source:       &stubSource{realtimeErr: rejected},
			cause:        sense.ErrAuth,
			want:         ErrSetupFailed,
			realtimeHits: 1,
		},
		{
			name:         "trend rejected on first refresh",
			source:       &stubSource{trendErr: rejected},
			cause:        sense.ErrAuth,
			want:         ErrSetupFailed,
			realtimeHits: 1,
			trendHits:    1,
			readings:     1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := statistics.NewEngine()
			publisher := &recordingPublisher{}
			session := NewSession(tt.source, engine, Config{}, WithPublisher(publisher))

			err := session.Start(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.cause)
			assert.False(t, session.Ready())

			rt, tr := tt.source.hits()
			assert.Equal(t, tt.realtimeHits, rt)
			assert.Equal(t, tt.trendHits, tr)
			assert.Len(t, engine.History(), tt.readings)
			assert.Len(t, publisher.realtime, tt.readings)
			assert.Empty(t, publisher.trend)
		})
	}
}

func TestSessionStartAllowsDegradedRefresh(t *testing.T) {
	source := &stubSource{
		realtimeErr: sense.ErrTimeout,
		trendErr:    errors.New("boom"),
	}
	publisher := &recordingPublisher{}
	session := NewSession(source, statistics.NewEngine(), Config{}, WithPublisher(publisher))

	require.NoError(t, session.Start(context.Background()))
	assert.True(t, session.Ready())
	assert.Equal(t, sense.Account{UserID: "7", MonitorID: "m-1"}, session.Account())
	assert.Len(t, publisher.realtime, 1)
	assert.Len(t, publisher.trend, 1)
	assert.Equal(t, []string{"m-1", "m-1"}, publisher.monitors)
}

func TestSessionRun(t *testing.T) {
	source := &stubSource{nextRealtime: &sense.Attributes{ActivePower: 250}}
	publisher := &recordingPublisher{}
	session := NewSession(source, statistics.NewEngine(), Config{
		RealtimeInterval: 10 * time.Millisecond,
		TrendInterval:    25 * time.Millisecond,
	}, WithPublisher(publisher))

	assert.ErrorIs(t, session.Run(context.Background()), ErrNotReady)

	require.NoError(t, session.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	require.Eventually(t, func() bool {
		rt, tr := source.hits()
		return rt >= 4 && tr >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	require.NoError(t, session.Close())
	assert.True(t, source.closed)
	assert.False(t, session.Ready())
}

func TestSessionDiagnostics(t *testing.T) {
	source := &stubSource{
		nextRealtime: &sense.Attributes{ActivePower: 640, Devices: []models.Device{{Name: "TV", State: "on"}}},
		trendErr:     sense.ErrTimeout,
	}
	session := NewSession(source, statistics.NewEngine(), Config{RealtimeInterval: 15 * time.Second}, WithClock(fixedClock()))

	before := session.Diagnostics()
	assert.False(t, before.Ready)
	assert.Nil(t, before.RealtimeData)
	assert.Nil(t, before.Realtime.LastAttempt)

	require.NoError(t, session.Start(context.Background()))
	d := session.Diagnostics()

	assert.True(t, d.Ready)
	assert.Equal(t, "m-1", d.Account.MonitorID)
	assert.Equal(t, "15s", d.Realtime.Interval)
	assert.Equal(t, "ok", d.Realtime.LastStatus)
	require.NotNil(t, d.RealtimeData)
	assert.Equal(t, 640.0, d.RealtimeData.ActivePower)
	assert.Equal(t, "timeout", d.Trend.LastStatus)
	assert.Nil(t, d.Trend.LastSuccess)
	assert.Equal(t, 1, d.DevicesCount)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.NoError(t, Config{RealtimeInterval: 30 * time.Second}.Validate())
	assert.Error(t, Config{RealtimeInterval: 7 * time.Second}.Validate())
	assert.Error(t, Config{TrendInterval: -time.Second}.Validate())

	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultRealtimeInterval, cfg.RealtimeInterval)
	assert.Equal(t, DefaultTrendInterval, cfg.TrendInterval)
}
