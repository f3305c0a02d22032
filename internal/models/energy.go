package models

import (
	"time"
)

// PowerReading represents a single realtime power sample
type PowerReading struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Device represents a device detected by the monitor
type Device struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	State string `json:"state"`
	Icon  string `json:"icon,omitempty"`
}

// Device states reported by the monitor
const (
	DeviceStateUnknown = "unknown"
	DeviceStateOff     = "off"
	DeviceStateOn      = "on"
)

// Anomaly represents an unusual realtime power reading
type Anomaly struct {
	Detected   bool      `json:"detected"`
	Current    float64   `json:"current"`
	Expected   float64   `json:"expected"`
	Deviation  float64   `json:"deviation"`
	Message    string    `json:"message"`
	DetectedAt time.Time `json:"detected_at"`
}

// RealtimeSnapshot is the merged gateway and statistics view produced by one realtime tick
type RealtimeSnapshot struct {
	ActivePower          float64   `json:"active_power"`
	ActiveSolarPower     float64   `json:"active_solar_power"`
	Voltage              []float64 `json:"voltage"`
	Frequency            float64   `json:"hz"`
	ActiveDevices        []string  `json:"active_devices"`
	Devices              []Device  `json:"devices"`
	PeakPower            float64   `json:"peak_power"`
	AvgPower             float64   `json:"avg_power"`
	PowerVariance        float64   `json:"power_variance"`
	Recent15MinAvg       float64   `json:"recent_15min_avg"`
	SolarPeak            float64   `json:"solar_peak"`
	SolarSelfConsumption float64   `json:"solar_self_consumption"`
	AnomalyDetected      bool      `json:"anomaly_detected"`
	Anomaly              *Anomaly  `json:"anomaly_data"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// TrendSnapshot is the cumulative usage and production view produced by one trend tick
type TrendSnapshot struct {
	DailyUsage        float64   `json:"daily_usage"`
	DailyProduction   float64   `json:"daily_production"`
	WeeklyUsage       float64   `json:"weekly_usage"`
	WeeklyProduction  float64   `json:"weekly_production"`
	MonthlyUsage      float64   `json:"monthly_usage"`
	MonthlyProduction float64   `json:"monthly_production"`
	YearlyUsage       float64   `json:"yearly_usage"`
	YearlyProduction  float64   `json:"yearly_production"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// PowerSummary is a rounded view of the power statistics
type PowerSummary struct {
	MaxPower       float64    `json:"max_power"`
	MinPower       float64    `json:"min_power"`
	AvgPower       float64    `json:"avg_power"`
	CurrentPower   float64    `json:"current_power"`
	PeakTime       *time.Time `json:"peak_time"`
	Variance       float64    `json:"variance"`
	ReadingsCount  int        `json:"readings_count"`
	Recent15MinAvg float64    `json:"recent_15min_avg"`
}

// SolarSummary is a rounded view of the solar statistics
type SolarSummary struct {
	MaxProduction      float64    `json:"max_production"`
	PeakTime           *time.Time `json:"peak_time"`
	AvgSelfConsumption float64    `json:"avg_self_consumption"`
}

// Insight is a single rule-based observation about current usage
type Insight struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Insights bundles rule-based observations with the statistics they were derived from
type Insights struct {
	Insights []Insight    `json:"insights"`
	Power    PowerSummary `json:"power_stats"`
	Solar    SolarSummary `json:"solar_stats"`
}

// MonthlyBill is the breakdown of an estimated monthly bill
type MonthlyBill struct {
	MonthlyUsageKWh      float64 `json:"monthly_usage_kwh"`
	MonthlyProductionKWh float64 `json:"monthly_production_kwh"`
	NetUsageKWh          float64 `json:"net_usage_kwh"`
	UsageCost            float64 `json:"usage_cost"`
	SolarSavings         float64 `json:"solar_savings"`
	NetEnergyCost        float64 `json:"net_energy_cost"`
	FixedCharges         float64 `json:"fixed_charges"`
	EstimatedTotal       float64 `json:"estimated_total"`
	AverageRate          float64 `json:"average_rate"`
	CurrentRate          float64 `json:"current_rate"`
}

// RateInfo describes the configured rate structure
type RateInfo struct {
	BaseRate     float64  `json:"base_rate"`
	SolarCredit  float64  `json:"solar_credit"`
	CurrentRate  float64  `json:"current_rate"`
	HasTimeOfUse bool     `json:"has_time_of_use"`
	TOUPeriods   []string `json:"tou_periods"`
}

// PowerBucket represents per-minute aggregated realtime power
type PowerBucket struct {
	MonitorID    string    `json:"monitor_id"`
	Timestamp    time.Time `json:"timestamp"`
	ReadingCount int       `json:"reading_count"`
	MaxPower     float64   `json:"max_power"`
	MinPower     float64   `json:"min_power"`
	AvgPower     float64   `json:"avg_power"`
}

// DeviceCommand is a device service request received from the command topic
type DeviceCommand struct {
	Action   string `json:"action"`
	DeviceID string `json:"device_id"`
	Name     string `json:"name,omitempty"`
}

// Device command actions
const (
	ActionInfo   = "info"
	ActionReset  = "reset"
	ActionRename = "rename"
)
