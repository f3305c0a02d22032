package sense

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
)

const (
	// DefaultBaseURL is the Sense API root
	DefaultBaseURL = "https://api.sense.com/apiservice/api/v1"

	// DefaultTimeout bounds every API call
	DefaultTimeout = 30 * time.Second

	jsonContentType = "application/json"
)

var log = logrus.WithField("component", "sense")

// Config holds the Sense client settings
type Config struct {
	BaseURL  string
	Email    string
	Password string
	Timeout  time.Duration
}

// Client is a Sense API client. The attribute set is replaced atomically, and only
// when a fetch completed and decoded in full.
type Client struct {
	http    *resty.Client
	timeout time.Duration
	email   string
	pass    string

	mu      sync.RWMutex
	token   string
	account Account
	attrs   Attributes
}

// NewClient creates a Sense API client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", jsonContentType).
		SetHeader("Accept", jsonContentType)

	return &Client{
		http:    rc,
		timeout: cfg.Timeout,
		email:   cfg.Email,
		pass:    cfg.Password,
	}
}

type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	UserID      flexID `json:"user_id"`
	Monitors    []struct {
		ID flexID `json:"id"`
	} `json:"monitors"`
}

type deviceResponse struct {
	ID    flexID `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
	Icon  string `json:"icon"`
}

func (d deviceResponse) toModel() models.Device {
	state := d.State
	if state == "" {
		state = models.DeviceStateUnknown
	}
	return models.Device{ID: string(d.ID), Name: d.Name, State: state, Icon: d.Icon}
}

type statusResponse struct {
	W       *float64         `json:"w"`
	SolarW  float64          `json:"solar_w"`
	Voltage []float64        `json:"voltage"`
	Hz      float64          `json:"hz"`
	Devices []deviceResponse `json:"devices"`
}

type trendResponse struct {
	Consumption *struct {
		Total float64 `json:"total"`
	} `json:"consumption"`
	Production *struct {
		Total float64 `json:"total"`
	} `json:"production"`
}

// Authenticate logs in and selects the first monitor of the account
func (c *Client) Authenticate(ctx context.Context) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var auth authResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": c.email, "password": c.pass}).
		SetResult(&auth).
		ForceContentType(jsonContentType).
		Post("/authenticate")
	if err != nil {
		return Account{}, requestError("authenticate", resp, err)
	}
	if err := statusError("authenticate", resp); err != nil {
		return Account{}, err
	}
	if auth.AccessToken == "" {
		return Account{}, fmt.Errorf("authenticate: %w: missing access token", ErrInvalidResponse)
	}
	if len(auth.Monitors) == 0 || auth.Monitors[0].ID == "" {
		return Account{}, ErrNoMonitor
	}

	account := Account{UserID: string(auth.UserID), MonitorID: string(auth.Monitors[0].ID)}

	c.mu.Lock()
	c.token = auth.AccessToken
	c.account = account
	c.mu.Unlock()

	log.WithField("monitor_id", account.MonitorID).Debug("Authenticated with Sense API")
	return account, nil
}

// Account returns the authenticated account, zero before Authenticate succeeds
func (c *Client) Account() Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

// HasToken reports whether an access token is held
func (c *Client) HasToken() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// Attributes returns a copy of the last known monitor state
func (c *Client) Attributes() Attributes {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attrs.Clone()
}

// UpdateRealtime fetches the live power state
func (c *Client) UpdateRealtime(ctx context.Context) Result {
	var status statusResponse
	if err := c.getJSON(ctx, "app/monitors/{monitor}/status", nil, &status); err != nil {
		return ResultOf(err)
	}
	if status.W == nil {
		return ResultOf(fmt.Errorf("status: %w: missing power", ErrInvalidResponse))
	}

	devices := make([]models.Device, 0, len(status.Devices))
	for _, d := range status.Devices {
		devices = append(devices, d.toModel())
	}

	c.mu.Lock()
	c.attrs.ActivePower = *status.W
	c.attrs.ActiveSolarPower = math.Abs(status.SolarW)
	c.attrs.Voltage = status.Voltage
	c.attrs.Frequency = status.Hz
	c.attrs.Devices = devices
	c.mu.Unlock()

	log.WithFields(logrus.Fields{"power": *status.W, "solar": math.Abs(status.SolarW)}).Debug("Updated realtime data")
	return Result{Status: StatusOK}
}

// UpdateTrendData fetches cumulative usage and production for each scale.
// A scale without consumption keeps its previous values; any failed request
// discards the whole update.
func (c *Client) UpdateTrendData(ctx context.Context) Result {
	c.mu.RLock()
	next := c.attrs.Clone()
	c.mu.RUnlock()

	scales := []struct {
		name       string
		usage      *float64
		production *float64
	}{
		{"DAY", &next.DailyUsage, &next.DailyProduction},
		{"WEEK", &next.WeeklyUsage, &next.WeeklyProduction},
		{"MONTH", &next.MonthlyUsage, &next.MonthlyProduction},
		{"YEAR", &next.YearlyUsage, &next.YearlyProduction},
	}

	for _, s := range scales {
		var trend trendResponse
		query := map[string]string{"scale": s.name}
		if err := c.getJSON(ctx, "app/history/trends", query, &trend); err != nil {
			return ResultOf(fmt.Errorf("trend %s: %w", s.name, err))
		}
		if trend.Consumption == nil {
			continue
		}
		*s.usage = trend.Consumption.Total
		*s.production = 0
		if trend.Production != nil {
			*s.production = trend.Production.Total
		}
	}

	c.mu.Lock()
	c.attrs.DailyUsage, c.attrs.DailyProduction = next.DailyUsage, next.DailyProduction
	c.attrs.WeeklyUsage, c.attrs.WeeklyProduction = next.WeeklyUsage, next.WeeklyProduction
	c.attrs.MonthlyUsage, c.attrs.MonthlyProduction = next.MonthlyUsage, next.MonthlyProduction
	c.attrs.YearlyUsage, c.attrs.YearlyProduction = next.YearlyUsage, next.YearlyProduction
	c.mu.Unlock()

	log.WithFields(logrus.Fields{"daily": next.DailyUsage, "monthly": next.MonthlyUsage}).Debug("Updated trend data")
	return Result{Status: StatusOK}
}

// Devices lists the devices discovered by the monitor
func (c *Client) Devices(ctx context.Context) ([]models.Device, error) {
	var raw []deviceResponse
	if err := c.getJSON(ctx, "app/monitors/{monitor}/devices", nil, &raw); err != nil {
		return nil, err
	}
	devices := make([]models.Device, 0, len(raw))
	for _, d := range raw {
		devices = append(devices, d.toModel())
	}
	return devices, nil
}

// DeviceInfo returns the raw detail document of a device
func (c *Client) DeviceInfo(ctx context.Context, deviceID string) (map[string]interface{}, error) {
	var info map[string]interface{}
	err := c.do(ctx, http.MethodGet, "monitors/{monitor}/devices/{device}",
		map[string]string{"device": deviceID}, nil, nil, &info)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// ResetDevice removes a learned device from the monitor
func (c *Client) ResetDevice(ctx context.Context, deviceID string) error {
	return c.do(ctx, http.MethodDelete, "app/monitors/{monitor}/devices/{device}",
		map[string]string{"device": deviceID}, nil, nil, nil)
}

// RenameDevice renames a device
func (c *Client) RenameDevice(ctx context.Context, deviceID, name string) error {
	return c.do(ctx, http.MethodPut, "app/monitors/{monitor}/devices/{device}",
		map[string]string{"device": deviceID}, nil, map[string]string{"name": name}, nil)
}

// Close releases idle connections
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query map[string]string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, query, nil, out)
}

// do runs one authenticated request, logging in first when no token is held.
// The monitor path parameter and monitor_id query parameter are filled in.
func (c *Client) do(ctx context.Context, method, path string, params, query map[string]string, body, out interface{}) error {
	if !c.HasToken() {
		if _, err := c.Authenticate(ctx); err != nil {
			return err
		}
	}

	c.mu.RLock()
	token, monitor := c.token, c.account.MonitorID
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetPathParam("monitor", monitor).
		SetPathParams(params)
	if query != nil {
		req.SetQueryParam("monitor_id", monitor).SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out).ForceContentType(jsonContentType)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return requestError(path, resp, err)
	}
	if err := statusError(path, resp); err != nil {
		if IsFatal(err) {
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
		}
		return err
	}
	return nil
}

// requestError classifies a failed Execute. A successful status with an error
// means the body could not be decoded into the result.
func requestError(op string, resp *resty.Response, err error) error {
	if !isTimeout(err) && resp != nil && resp.RawResponse != nil && resp.IsSuccess() {
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidResponse, err)
	}
	return transportError(op, err)
}

func transportError(op string, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrConnect, err)
}

func statusError(op string, resp *resty.Response) error {
	code := resp.StatusCode()
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%s: %w: status %d", op, ErrAuth, code)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w: status %d", op, ErrTimeout, code)
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w: status %d", op, ErrNotFound, code)
	case resp.IsError():
		return fmt.Errorf("%s: %w: status %d", op, ErrConnect, code)
	}
	return nil
}
