package insights

import "time"

// Frequency is how often a feature may call the completer
type Frequency string

// Frequencies
const (
	FrequencyRealtime Frequency = "realtime"
	FrequencyHourly   Frequency = "hourly"
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Window is the minimum time between two calls. Unknown frequencies never allow a repeat call.
func (f Frequency) Window() (time.Duration, bool) {
	switch f {
	case FrequencyRealtime:
		return 5 * time.Minute, true
	case FrequencyHourly:
		return time.Hour, true
	case FrequencyDaily:
		return 24 * time.Hour, true
	case FrequencyWeekly:
		return 7 * 24 * time.Hour, true
	case FrequencyMonthly:
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}

// CallsPerMonth is the number of calls the frequency allows in a 30 day month
func (f Frequency) CallsPerMonth() int {
	switch f {
	case FrequencyRealtime:
		return 30 * 24 * 12
	case FrequencyHourly:
		return 30 * 24
	case FrequencyDaily:
		return 30
	case FrequencyWeekly:
		return 4
	case FrequencyMonthly:
		return 1
	}
	return 0
}

// FeatureBudget limits one feature
type FeatureBudget struct {
	Enabled   bool      `json:"enabled"`
	Frequency Frequency `json:"frequency,omitempty"`
	OnDemand  bool      `json:"on_demand,omitempty"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Budget is a named set of feature limits
type Budget struct {
	Description string                   `json:"description"`
	Features    map[string]FeatureBudget `json:"features"`
}

// Feature names
const (
	FeatureDailyInsights        = "daily_insights"
	FeatureAnomalyExplanation   = "anomaly_explanation"
	FeatureSolarCoach           = "solar_coach"
	FeatureBillForecast         = "bill_forecast"
	FeatureDeviceIdentification = "device_identification"
	FeatureWeeklyStory          = "weekly_story"
	FeatureConversational       = "conversational"
	FeatureOptimization         = "optimization_suggestions"
	FeatureComparative          = "comparative_analysis"
)

const (
	defaultBudget    = "medium"
	defaultMaxTokens = 500
)

// Budgets holds the low, medium and high token budgets
var Budgets = map[string]Budget{
	"low": {
		Description: "Minimal AI usage (~$1-2/month)",
		Features: map[string]FeatureBudget{
			FeatureDailyInsights:        {Enabled: true, Frequency: FrequencyDaily, MaxTokens: 500},
			FeatureAnomalyExplanation:   {Enabled: true, OnDemand: true, MaxTokens: 300},
			FeatureSolarCoach:           {},
			FeatureBillForecast:         {Enabled: true, Frequency: FrequencyWeekly, MaxTokens: 400},
			FeatureDeviceIdentification: {},
			FeatureWeeklyStory:          {Enabled: true, Frequency: FrequencyWeekly, MaxTokens: 600},
			FeatureConversational:       {},
			FeatureOptimization:         {Enabled: true, Frequency: FrequencyWeekly, MaxTokens: 500},
			FeatureComparative:          {},
		},
	},
	"medium": {
		Description: "Balanced AI usage (~$3-5/month)",
		Features: map[string]FeatureBudget{
			FeatureDailyInsights:        {Enabled: true, Frequency: FrequencyDaily, MaxTokens: 800},
			FeatureAnomalyExplanation:   {Enabled: true, OnDemand: true, MaxTokens: 500},
			FeatureSolarCoach:           {Enabled: true, Frequency: FrequencyHourly, MaxTokens: 200},
			FeatureBillForecast:         {Enabled: true, Frequency: FrequencyWeekly, MaxTokens: 600},
			FeatureDeviceIdentification: {Enabled: true, OnDemand: true, MaxTokens: 400},
			FeatureWeeklyStory:          {Enabled: true, Frequency: FrequencyWeekly, MaxTokens: 1000},
			FeatureConversational:       {Enabled: true, MaxTokens: 500},
			FeatureOptimization:         {Enabled: true, Frequency: FrequencyWeekly, MaxTokens: 800},
			FeatureComparative:          {},
		},
	},
	"high": {
		Description: "Full AI features (~$8-12/month)",
		Features: map[string]FeatureBudget{
			FeatureDailyInsights:        {Enabled: true, Frequency: FrequencyDaily, MaxTokens: 1500},
			FeatureAnomalyExplanation:   {Enabled: true, OnDemand: true, MaxTokens: 800},
			FeatureSolarCoach:           {Enabled: true, Frequency: FrequencyRealtime, MaxTokens: 300},
			FeatureBillForecast:         {Enabled: true, Frequency: FrequencyDaily, MaxTokens: 1000},
			FeatureDeviceIdentification: {Enabled: true, OnDemand: true, MaxTokens: 600},
			FeatureWeeklyStory:          {Enabled: true, Frequency: FrequencyWeekly, MaxTokens: 2000},
			FeatureConversational:       {Enabled: true, MaxTokens: 1000},
			FeatureOptimization:         {Enabled: true, Frequency: FrequencyDaily, MaxTokens: 1200},
			FeatureComparative:          {Enabled: true, Frequency: FrequencyMonthly, MaxTokens: 1000},
		},
	},
}

// BudgetFor returns the named budget, falling back to medium
func BudgetFor(level string) Budget {
	if b, ok := Budgets[level]; ok {
		return b
	}
	return Budgets[defaultBudget]
}

// frequencyOf applies the daily default to features without a frequency
func (fb FeatureBudget) frequencyOf() Frequency {
	if fb.Frequency == "" {
		return FrequencyDaily
	}
	return fb.Frequency
}

func (fb FeatureBudget) maxTokens() int {
	if fb.MaxTokens <= 0 {
		return defaultMaxTokens
	}
	return fb.MaxTokens
}
