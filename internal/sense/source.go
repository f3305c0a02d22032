// Package sense talks to the Sense energy monitor cloud API.
//
// The poller only depends on the Source interface; Client is the HTTP
// implementation backed by resty.
package sense

import (
	"context"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
)

// Status classifies the outcome of a fetch
type Status int

const (
	StatusOK Status = iota
	StatusTimeout
	StatusConnection
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusConnection:
		return "connection"
	case StatusFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is the outcome of a fetch. Err is nil when Status is StatusOK.
type Result struct {
	Status Status
	Err    error
}

// OK reports whether the fetch succeeded
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// ResultOf builds a Result from an error
func ResultOf(err error) Result {
	return Result{Status: Classify(err), Err: err}
}

// Account identifies the authenticated user and monitor
type Account struct {
	UserID    string `json:"user_id"`
	MonitorID string `json:"monitor_id"`
}

// Attributes is the last known state of the monitor
type Attributes struct {
	// Realtime
	ActivePower      float64         `json:"active_power"`
	ActiveSolarPower float64         `json:"active_solar_power"`
	Voltage          []float64       `json:"voltage"`
	Frequency        float64         `json:"hz"`
	Devices          []models.Device `json:"devices"`

	// Trend, in kWh
	DailyUsage        float64 `json:"daily_usage"`
	DailyProduction   float64 `json:"daily_production"`
	WeeklyUsage       float64 `json:"weekly_usage"`
	WeeklyProduction  float64 `json:"weekly_production"`
	MonthlyUsage      float64 `json:"monthly_usage"`
	MonthlyProduction float64 `json:"monthly_production"`
	YearlyUsage       float64 `json:"yearly_usage"`
	YearlyProduction  float64 `json:"yearly_production"`
}

// ActiveDevices returns the names of devices that are on
func (a Attributes) ActiveDevices() []string {
	names := make([]string, 0, len(a.Devices))
	for _, d := range a.Devices {
		if d.State == models.DeviceStateOn {
			names = append(names, d.Name)
		}
	}
	return names
}

// Clone returns a deep copy
func (a Attributes) Clone() Attributes {
	out := a
	if a.Voltage != nil {
		out.Voltage = append([]float64(nil), a.Voltage...)
	}
	if a.Devices != nil {
		out.Devices = append([]models.Device(nil), a.Devices...)
	}
	return out
}

// Source is the remote data source polled by the monitor.
// Implementations must be safe for concurrent use.
type Source interface {
	Authenticate(ctx context.Context) (Account, error)
	UpdateRealtime(ctx context.Context) Result
	UpdateTrendData(ctx context.Context) Result
	Attributes() Attributes
	Close() error
}

// DeviceService exposes device management on the monitor
type DeviceService interface {
	Devices(ctx context.Context) ([]models.Device, error)
	DeviceInfo(ctx context.Context, deviceID string) (map[string]interface{}, error)
	ResetDevice(ctx context.Context, deviceID string) error
	RenameDevice(ctx context.Context, deviceID, name string) error
}
