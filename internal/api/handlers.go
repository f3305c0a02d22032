package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/devices"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/insights"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/sense"
)

const (
	errNoRealtime = "no realtime data yet"
	errNoTrend    = "no trend data yet"
)

type healthResponse struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	if !s.monitor.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "starting"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Ready: true})
}

func (s *Server) realtime(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.monitor.LatestRealtime()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, errNoRealtime)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) trend(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.monitor.LatestTrend()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, errNoTrend)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) statistics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Engine().Insights())
}

func (s *Server) diagnostics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Diagnostics())
}

func (s *Server) costRate(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cost.RateInfo())
}

type todayCost struct {
	DailyUsage      float64 `json:"daily_usage"`
	DailyProduction float64 `json:"daily_production"`
	UsageCost       float64 `json:"usage_cost"`
	SolarSavings    float64 `json:"solar_savings"`
	NetCost         float64 `json:"net_cost"`
	CurrentRate     float64 `json:"current_rate"`
	Currency        string  `json:"currency"`
}

func (s *Server) costToday(w http.ResponseWriter, _ *http.Request) {
	trend, ok := s.monitor.LatestTrend()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, errNoTrend)
		return
	}
	writeJSON(w, http.StatusOK, todayCost{
		DailyUsage:      trend.DailyUsage,
		DailyProduction: trend.DailyProduction,
		UsageCost:       s.cost.DailyCost(trend.DailyUsage),
		SolarSavings:    s.cost.SolarSavings(trend.DailyProduction),
		NetCost:         s.cost.NetCost(trend.DailyUsage, trend.DailyProduction),
		CurrentRate:     s.cost.CurrentRate(),
		Currency:        s.costCfg.Currency,
	})
}

func (s *Server) costMonthly(w http.ResponseWriter, r *http.Request) {
	trend, ok := s.monitor.LatestTrend()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, errNoTrend)
		return
	}

	days := s.costCfg.DaysInMonth
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}
	fixed, err := floatParam(r, "fixed", s.costCfg.FixedCharges)
	if err != nil || fixed < 0 {
		writeError(w, http.StatusBadRequest, "fixed must be a non-negative number")
		return
	}

	writeJSON(w, http.StatusOK, s.cost.EstimateMonthlyBill(trend.DailyUsage, trend.DailyProduction, days, fixed))
}

type peakCost struct {
	PeakPower float64 `json:"peak_power"`
	Hours     float64 `json:"hours"`
	Cost      float64 `json:"cost"`
}

func (s *Server) costPeak(w http.ResponseWriter, r *http.Request) {
	hours, err := floatParam(r, "hours", 1)
	if err != nil || hours <= 0 {
		writeError(w, http.StatusBadRequest, "hours must be a positive number")
		return
	}
	peak := s.monitor.Engine().PowerSummary().MaxPower
	writeJSON(w, http.StatusOK, peakCost{
		PeakPower: peak,
		Hours:     hours,
		Cost:      s.cost.PeakEventCost(peak, hours),
	})
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	list, err := s.devices.List(r.Context())
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) deviceInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.devices.Info(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) resetDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.devices.Reset(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeDeviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) renameDevice(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.devices.Rename(r.Context(), mux.Vars(r)["id"], req.Name); err != nil {
		writeDeviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeDeviceError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, devices.ErrInvalidDevice), errors.Is(err, devices.ErrInvalidName):
		status = http.StatusBadRequest
	case errors.Is(err, sense.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, sense.ErrTimeout):
		status = http.StatusGatewayTimeout
	case sense.IsFatal(err):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

func (s *Server) insightsPrivacy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.insights.PrivacyInfo())
}

func (s *Server) insightsEstimate(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.insights.CostEstimate())
}

func (s *Server) insight(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	engine := s.monitor.Engine()
	rt, hasRealtime := s.monitor.LatestRealtime()
	trend, hasTrend := s.monitor.LatestTrend()

	switch mux.Vars(r)["feature"] {
	case "daily":
		if !hasTrend {
			writeError(w, http.StatusServiceUnavailable, errNoTrend)
			return
		}
		power := engine.PowerSummary()
		writeJSON(w, http.StatusOK, s.insights.DailyInsights(ctx, insights.DailyInput{
			DailyUsage:           trend.DailyUsage,
			DailyCost:            s.cost.DailyCost(trend.DailyUsage),
			DailyProduction:      trend.DailyProduction,
			PeakPower:            power.MaxPower,
			PeakTime:             power.PeakTime,
			AvgPower:             power.AvgPower,
			ActiveDevices:        rt.ActiveDevices,
			SolarSelfConsumption: engine.SolarSummary().AvgSelfConsumption,
		}))
	case "anomaly":
		if !hasRealtime || !rt.AnomalyDetected || rt.Anomaly == nil {
			writeError(w, http.StatusNotFound, "no anomaly detected")
			return
		}
		writeJSON(w, http.StatusOK, s.insights.ExplainAnomaly(ctx, *rt.Anomaly, rt.ActiveDevices))
	case "solar":
		if !hasRealtime {
			writeError(w, http.StatusServiceUnavailable, errNoRealtime)
			return
		}
		writeJSON(w, http.StatusOK, s.insights.SolarCoach(ctx, insights.SolarInput{
			Production:      rt.ActiveSolarPower,
			Usage:           rt.ActivePower,
			SelfConsumption: rt.SolarSelfConsumption,
		}))
	case "bill":
		if !hasTrend {
			writeError(w, http.StatusServiceUnavailable, errNoTrend)
			return
		}
		days := s.costCfg.DaysInMonth
		writeJSON(w, http.StatusOK, s.insights.BillForecast(ctx, insights.BillInput{
			DaysElapsed:  s.now().Day(),
			DaysInMonth:  days,
			MonthUsage:   trend.MonthlyUsage,
			DailyAverage: trend.DailyUsage,
			Bill:         s.cost.EstimateMonthlyBill(trend.DailyUsage, trend.DailyProduction, days, s.costCfg.FixedCharges),
			Rates:        s.cost.RateInfo(),
		}))
	default:
		writeError(w, http.StatusNotFound, "unknown insight feature")
	}
}
