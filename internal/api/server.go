// Package api serves the monitor state, cost queries, device services and
// insights over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/config"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/cost"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/insights"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/metrics"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/poller"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/statistics"
)

const apiPrefix = "/api/v1"

var log = logrus.WithField("component", "api")

// Monitor is the session state the API reads
type Monitor interface {
	Ready() bool
	LatestRealtime() (models.RealtimeSnapshot, bool)
	LatestTrend() (models.TrendSnapshot, bool)
	Engine() *statistics.Engine
	Diagnostics() poller.Diagnostics
}

// Devices is the device management the API exposes
type Devices interface {
	List(ctx context.Context) ([]models.Device, error)
	Info(ctx context.Context, deviceID string) (map[string]interface{}, error)
	Reset(ctx context.Context, deviceID string) error
	Rename(ctx context.Context, deviceID, name string) error
}

// Server holds the API dependencies
type Server struct {
	monitor  Monitor
	cost     *cost.Model
	costCfg  config.CostConfig
	devices  Devices
	insights *insights.Engine
	router   *mux.Router
	now      func() time.Time
}

// Option configures a Server
type Option func(*Server)

// WithClock sets the time source used for month progress
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer builds the router
func NewServer(monitor Monitor, model *cost.Model, costCfg config.CostConfig, devices Devices, engine *insights.Engine, opts ...Option) *Server {
	s := &Server{
		monitor:  monitor,
		cost:     model,
		costCfg:  costCfg,
		devices:  devices,
		insights: engine,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Routes sit on the root router so a wrong method answers 405, not 404
	r.HandleFunc(apiPrefix+"/realtime", s.realtime).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/trend", s.trend).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/statistics", s.statistics).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/diagnostics", s.diagnostics).Methods(http.MethodGet)

	r.HandleFunc(apiPrefix+"/cost/rate", s.costRate).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/cost/today", s.costToday).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/cost/monthly", s.costMonthly).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/cost/peak", s.costPeak).Methods(http.MethodGet)

	r.HandleFunc(apiPrefix+"/devices", s.listDevices).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/devices/{id}", s.deviceInfo).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/devices/{id}", s.resetDevice).Methods(http.MethodDelete)
	r.HandleFunc(apiPrefix+"/devices/{id}", s.renameDevice).Methods(http.MethodPut)

	// Fixed insight paths first, {feature} would match them too
	r.HandleFunc(apiPrefix+"/insights/privacy", s.insightsPrivacy).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/insights/estimate", s.insightsEstimate).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/insights/{feature}", s.insight).Methods(http.MethodGet)

	return r
}

// Handler returns the router wrapped with access logging to w and panic recovery
func (s *Server) Handler(w io.Writer) http.Handler {
	return handlers.LoggingHandler(w, handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(s.router))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Error encoding response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
