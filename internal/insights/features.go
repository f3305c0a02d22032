package insights

import (
	"context"
	"time"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
)

const (
	// excessThreshold is the solar surplus in watts above which running appliances is optimal
	excessThreshold = 500

	// highSeverityDeviation is the anomaly deviation above which severity is high
	highSeverityDeviation = 4
)

const dailyTask = `Analyze yesterday's energy usage and provide:
1. A brief summary (2-3 sentences)
2. Top 3 specific, actionable recommendations to save energy/money
3. Notable patterns or concerns
4. Comparison to previous day if significantly different

Be specific with numbers. Focus on practical advice.`

const anomalyTask = `An unusual power usage spike was detected. Analyze the data and provide:
1. Most likely cause(s) of the spike
2. Which devices to check first
3. Whether this is concerning or normal
4. Recommended actions

Be specific and practical. If multiple devices are running, explain the combination.`

const solarTask = `Provide real-time solar optimization advice:
1. Current status (1 sentence)
2. Best action right now (run appliance, wait, etc.)
3. Timing for any recommended actions

Be concise and actionable. Focus on maximizing solar self-consumption.`

const billTask = `Forecast this month's electricity bill:
1. Projected total cost with confidence level
2. Comparison to last month ($ and %)
3. Main factors driving the projection
4. Top 3 specific actions to reduce the bill
5. Potential savings from each action

Be specific with dollar amounts and percentages.`

// DailyInput is the data behind a daily insight
type DailyInput struct {
	DailyUsage           float64
	DailyCost            float64
	DailyProduction      float64
	PeakPower            float64
	PeakTime             *time.Time
	AvgPower             float64
	ActiveDevices        []string
	SolarSelfConsumption float64
}

// DailyInsight is a generated daily summary
type DailyInsight struct {
	Summary     string                 `json:"summary"`
	GeneratedAt time.Time              `json:"generated_at"`
	Data        map[string]interface{} `json:"data"`
}

// AnomalyExplanation explains a detected anomaly
type AnomalyExplanation struct {
	Explanation string    `json:"explanation"`
	Severity    string    `json:"severity"`
	GeneratedAt time.Time `json:"generated_at"`
}

// SolarInput is the data behind solar advice
type SolarInput struct {
	Production      float64
	Usage           float64
	SelfConsumption float64
}

// SolarAdvice is realtime solar usage advice
type SolarAdvice struct {
	Advice      string    `json:"advice"`
	Status      string    `json:"status"`
	GeneratedAt time.Time `json:"generated_at"`
}

// BillInput is the data behind a bill forecast
type BillInput struct {
	DaysElapsed  int
	DaysInMonth  int
	MonthUsage   float64
	DailyAverage float64
	Bill         models.MonthlyBill
	Rates        models.RateInfo
}

// BillForecast is a generated bill projection
type BillForecast struct {
	Forecast      string    `json:"forecast"`
	ProjectedCost float64   `json:"projected_cost"`
	Confidence    string    `json:"confidence"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// DailyInsights summarizes the day
func (e *Engine) DailyInsights(ctx context.Context, in DailyInput) DailyInsight {
	now := e.now()
	activeDevices := in.ActiveDevices
	if activeDevices == nil {
		activeDevices = []string{}
	}
	data := map[string]interface{}{
		"date":                       now.Format("2006-01-02"),
		"daily_usage_kwh":            in.DailyUsage,
		"daily_cost":                 in.DailyCost,
		"peak_power_w":               in.PeakPower,
		"peak_time":                  in.PeakTime,
		"avg_power_w":                in.AvgPower,
		"active_devices":             activeDevices,
		"solar_production_kwh":       in.DailyProduction,
		"solar_self_consumption_pct": in.SolarSelfConsumption,
	}
	return DailyInsight{
		Summary:     e.Call(ctx, dailyTask, data, FeatureDailyInsights),
		GeneratedAt: now,
		Data:        data,
	}
}

// ExplainAnomaly explains an anomaly given the devices running at the time
func (e *Engine) ExplainAnomaly(ctx context.Context, anomaly models.Anomaly, activeDevices []string) AnomalyExplanation {
	now := e.now()
	if activeDevices == nil {
		activeDevices = []string{}
	}
	data := map[string]interface{}{
		"current_power_w":  anomaly.Current,
		"expected_power_w": anomaly.Expected,
		"deviation_sigma":  anomaly.Deviation,
		"time":             now.Format("03:04 PM"),
		"active_devices":   activeDevices,
	}

	severity := "medium"
	if anomaly.Deviation > highSeverityDeviation {
		severity = "high"
	}
	return AnomalyExplanation{
		Explanation: e.Call(ctx, anomalyTask, data, FeatureAnomalyExplanation),
		Severity:    severity,
		GeneratedAt: now,
	}
}

// SolarCoach advises on using the current solar surplus
func (e *Engine) SolarCoach(ctx context.Context, in SolarInput) SolarAdvice {
	now := e.now()
	excess := in.Production - in.Usage
	data := map[string]interface{}{
		"solar_production_w":   in.Production,
		"current_usage_w":      in.Usage,
		"excess_w":             excess,
		"self_consumption_pct": in.SelfConsumption,
		"time":                 now.Format("03:04 PM"),
	}

	status := "normal"
	if excess > excessThreshold {
		status = "optimal"
	}
	return SolarAdvice{
		Advice:      e.Call(ctx, solarTask, data, FeatureSolarCoach),
		Status:      status,
		GeneratedAt: now,
	}
}

// BillForecast projects the monthly bill
func (e *Engine) BillForecast(ctx context.Context, in BillInput) BillForecast {
	now := e.now()
	data := map[string]interface{}{
		"days_elapsed":      in.DaysElapsed,
		"days_in_month":     in.DaysInMonth,
		"usage_so_far_kwh":  in.MonthUsage,
		"daily_average_kwh": in.DailyAverage,
		"projection":        in.Bill,
		"rate_structure":    in.Rates,
	}
	return BillForecast{
		Forecast:      e.Call(ctx, billTask, data, FeatureBillForecast),
		ProjectedCost: in.Bill.EstimatedTotal,
		Confidence:    "medium",
		GeneratedAt:   now,
	}
}
