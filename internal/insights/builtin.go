package insights

import (
	"context"
	"fmt"
	"math"
)

// MessageNeedsProvider is the built-in answer for features without a rule-based fallback
const MessageNeedsProvider = "AI feature requires LLM provider configuration"

// BuiltIn answers from simple rules over the request context without any remote call
type BuiltIn struct{}

// Complete implements Completer
func (BuiltIn) Complete(_ context.Context, req Request) (string, error) {
	c := req.Context
	switch req.Feature {
	case FeatureDailyInsights:
		return fmt.Sprintf("Today's usage: %.1f kWh ($%.2f). Peak power: %.0fW. Enable AI features for detailed insights and recommendations.",
			number(c, "daily_usage_kwh"), number(c, "daily_cost"), number(c, "peak_power_w")), nil
	case FeatureAnomalyExplanation:
		return fmt.Sprintf("Power usage (%.0fW) is %.1fx higher than expected (%.0fW). Check for running appliances or devices.",
			number(c, "current_power_w"), number(c, "deviation_sigma"), number(c, "expected_power_w")), nil
	case FeatureSolarCoach:
		production := number(c, "solar_production_w")
		usage := number(c, "current_usage_w")
		excess := production - usage
		switch {
		case excess > excessThreshold:
			return fmt.Sprintf("Good time to run appliances! %.0fW excess solar available.", excess), nil
		case excess > 0:
			return fmt.Sprintf("Solar producing %.0fW, using %.0fW. Slight excess available.", production, usage), nil
		default:
			return fmt.Sprintf("Drawing %.0fW from grid. Solar: %.0fW", math.Abs(excess), production), nil
		}
	}
	return MessageNeedsProvider, nil
}

// number reads a numeric context value, treating anything else as zero
func number(c map[string]interface{}, key string) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
