// Package insights produces narrative explanations of the monitor data.
//
// Text comes from a Completer: the built-in rule-based one, or an HTTP
// completion endpoint. Every feature is rate limited by the configured token
// budget; inside its window a feature returns its last cached answer.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/config"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/metrics"
)

// Providers
const (
	ProviderBuiltIn = "built_in"
	ProviderHTTP    = "http"
)

// Fixed responses
const (
	MessageDisabled        = "AI features disabled"
	MessageNoCache         = "No cached response available"
	MessageUnknownProvider = "Unknown AI provider"
)

// Outcomes reported to metrics
const (
	outcomeGenerated   = "generated"
	outcomeCached      = "cached"
	outcomeRateLimited = "rate_limited"
	outcomeDisabled    = "disabled"
	outcomeError       = "error"
)

const systemContext = `You are an expert energy analyst helping homeowners understand and optimize their electricity usage.
Provide clear, actionable insights in a friendly, conversational tone. Focus on practical recommendations that save money and energy.
Be specific with numbers and percentages. Keep responses concise but informative.`

var log = logrus.WithField("component", "insights")

// Request is one completion request
type Request struct {
	Feature   string                 `json:"feature"`
	Prompt    string                 `json:"prompt"`
	Context   map[string]interface{} `json:"context"`
	MaxTokens int                    `json:"max_tokens"`
}

// Completer turns a prompt into text
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// responseCleanup is how often expired responses are evicted
const responseCleanup = 10 * time.Minute

// Engine rate limits and caches completions per feature
type Engine struct {
	config    config.InsightsConfig
	budget    Budget
	completer Completer
	responses *cache.Cache
	mu        sync.Mutex
	now       func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithCompleter overrides the completer chosen from the provider
func WithCompleter(c Completer) Option {
	return func(e *Engine) { e.completer = c }
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine for the configured provider
func NewEngine(cfg config.InsightsConfig, opts ...Option) *Engine {
	e := &Engine{
		config:    cfg,
		budget:    BudgetFor(cfg.TokenBudget),
		responses: cache.New(cache.NoExpiration, responseCleanup),
		now:       time.Now,
	}
	switch cfg.Provider {
	case ProviderBuiltIn:
		e.completer = BuiltIn{}
	case ProviderHTTP:
		e.completer = NewHTTPCompleter(cfg)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enabled reports whether insights are switched on
func (e *Engine) Enabled() bool {
	return e.config.Enabled
}

// Provider returns the configured provider name
func (e *Engine) Provider() string {
	return e.config.Provider
}

// Call answers task for feature, or returns the cached answer while the feature is rate limited.
// It never fails: errors are reported as text.
func (e *Engine) Call(ctx context.Context, task string, data map[string]interface{}, feature string) string {
	if !e.config.Enabled {
		metrics.ObserveInsight(feature, outcomeDisabled, 0)
		return MessageDisabled
	}

	// Hold the lock for the whole call so one window allows one completion
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.shouldCall(feature) {
		metrics.ObserveInsight(feature, outcomeRateLimited, 0)
		return e.cached(feature)
	}

	if e.completer == nil {
		return MessageUnknownProvider
	}

	maxTokens := e.budget.Features[feature].maxTokens()
	response, err := e.completer.Complete(ctx, Request{
		Feature:   feature,
		Prompt:    BuildPrompt(task, data),
		Context:   data,
		MaxTokens: maxTokens,
	})
	if err != nil {
		log.WithError(err).WithField("feature", feature).Error("Error generating insight")
		metrics.ObserveInsight(feature, outcomeError, 0)
		return fmt.Sprintf("Error generating AI response: %v", err)
	}

	e.responses.Set(feature, response, e.responseTTL(feature))
	metrics.ObserveInsight(feature, outcomeGenerated, maxTokens)
	return response
}

// responseTTL keeps a response for its feature's frequency window. Responses of
// features without a known window never expire.
func (e *Engine) responseTTL(feature string) time.Duration {
	fb := e.budget.Features[feature]
	if fb.OnDemand {
		return cache.NoExpiration
	}
	window, known := fb.frequencyOf().Window()
	if !known {
		return cache.NoExpiration
	}
	return window
}

// shouldCall applies the budget: disabled features never call, on-demand
// features always do, the rest once their cached response has expired
func (e *Engine) shouldCall(feature string) bool {
	fb, ok := e.budget.Features[feature]
	if !ok || !fb.Enabled {
		return false
	}
	if enabled, set := e.config.Features[feature]; set && !enabled {
		return false
	}
	if fb.OnDemand {
		return true
	}

	_, expires, found := e.responses.GetWithExpiration(feature)
	if !found {
		return true
	}
	if expires.IsZero() {
		return false
	}
	return e.now().After(expires)
}

func (e *Engine) cached(feature string) string {
	if item, found := e.responses.Get(feature); found {
		metrics.ObserveInsight(feature, outcomeCached, 0)
		return item.(string)
	}
	return MessageNoCache
}

// BuildPrompt wraps task with the system context and the indented JSON data
func BuildPrompt(task string, data map[string]interface{}) string {
	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		body = []byte(fmt.Sprintf("%v", data))
	}
	return fmt.Sprintf(`%s

Context Data:
%s

Task: %s

Please provide a helpful, specific response based on the data above.`, systemContext, body, task)
}

// PrivacyInfo describes what leaves the host when a remote provider is used
type PrivacyInfo struct {
	DataSent    []string `json:"data_sent"`
	DataNotSent []string `json:"data_not_sent"`
	Provider    string   `json:"provider"`
	Retention   string   `json:"retention"`
	OptOut      string   `json:"opt_out"`
}

// PrivacyInfo returns the data handling summary
func (e *Engine) PrivacyInfo() PrivacyInfo {
	return PrivacyInfo{
		DataSent: []string{
			"Energy usage statistics (kWh, watts)",
			"Peak power times and values",
			"Device names and states (if enabled)",
			"Solar production data (if applicable)",
			"Cost calculations (no personal financial info)",
			"Time-of-day patterns",
			"Historical trends (aggregated)",
		},
		DataNotSent: []string{
			"Your name or address",
			"Account numbers or payment info",
			"Specific device locations in home",
			"Real-time video or images",
			"Personal schedules or calendar",
			"Other smart home device data",
		},
		Provider:  e.config.Provider,
		Retention: "Responses cached locally, not stored by provider (per their policies)",
		OptOut:    "Disable AI features anytime in the insights configuration",
	}
}

// CostEstimate is the expected monthly token use of a budget
type CostEstimate struct {
	BudgetLevel            string  `json:"budget_level"`
	Description            string  `json:"description"`
	EstimatedMonthlyTokens int     `json:"estimated_monthly_tokens"`
	EstimatedMonthlyCost   float64 `json:"estimated_monthly_cost"`
	Provider               string  `json:"provider"`
	Note                   string  `json:"note"`
}

// costPer1kTokens is a rough price per thousand tokens
var costPer1kTokens = map[string]float64{
	ProviderBuiltIn: 0,
	ProviderHTTP:    0.002,
}

// CostEstimate estimates monthly tokens and cost for the configured budget
func (e *Engine) CostEstimate() CostEstimate {
	rate, ok := costPer1kTokens[e.config.Provider]
	if !ok {
		rate = costPer1kTokens[ProviderHTTP]
	}

	tokens := 0
	for _, fb := range e.budget.Features {
		if !fb.Enabled {
			continue
		}
		tokens += fb.maxTokens() * fb.frequencyOf().CallsPerMonth()
	}

	return CostEstimate{
		BudgetLevel:            e.config.TokenBudget,
		Description:            e.budget.Description,
		EstimatedMonthlyTokens: tokens,
		EstimatedMonthlyCost:   math.Round(float64(tokens)/1000*rate*100) / 100,
		Provider:               e.config.Provider,
		Note:                   "Actual costs may vary based on usage and provider pricing",
	}
}
