package llm

import (
	"math"

	"github.com/ahrav/go-quorum/internal/domain"
)

// Parameter bounds shared by all providers. Individual providers clamp
// further where their API is stricter.
const (
	minTemperature = 0.0
	maxTemperature = 2.0
	minTopP        = 0.0
	maxTopP        = 1.0

	// defaultMaxTokens bounds generation when the caller does not.
	defaultMaxTokens = 1024
)

// requestOptions is the parsed, provider-neutral form of an options map.
type requestOptions struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	Seed        *int
	System      string
}

// parseOptions extracts standard request parameters from an options map,
// falling back to defaults for missing or malformed entries.
func parseOptions(opts map[string]any, defaultModel string) requestOptions {
	options := requestOptions{
		Model:     defaultModel,
		MaxTokens: defaultMaxTokens,
	}

	if m, ok := opts["model"].(string); ok && m != "" {
		options.Model = m
	}
	if s, ok := opts["system"].(string); ok {
		options.System = s
	}
	if mt, ok := asInt(opts["max_tokens"]); ok && mt > 0 {
		options.MaxTokens = mt
	}
	if t, ok := asFloat64(opts["temperature"]); ok {
		t = clampFloat(t, minTemperature, maxTemperature)
		options.Temperature = &t
	}
	if p, ok := asFloat64(opts["top_p"]); ok {
		p = clampFloat(p, minTopP, maxTopP)
		options.TopP = &p
	}
	if s, ok := asInt(opts["seed"]); ok {
		options.Seed = &s
	}

	return options
}

// OptionsFromParams converts sampling parameters into the options map
// understood by ports.LLMClient implementations. Generator adapters use
// this to carry controller-chosen seeds and temperatures to providers.
func OptionsFromParams(params domain.SamplingParams) map[string]any {
	opts := map[string]any{
		"temperature": params.Temperature,
	}
	if params.TopP > 0 {
		opts["top_p"] = params.TopP
	}
	if params.Seed != 0 {
		opts["seed"] = params.Seed
	}
	if params.MaxTokens > 0 {
		opts["max_tokens"] = params.MaxTokens
	}
	return opts
}

// asFloat64 converts numeric option values, rejecting NaN.
func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// asInt converts numeric option values to int, guarding overflow.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		if int64(int(n)) != n {
			return 0, false
		}
		return int(n), true
	case float64:
		if math.IsNaN(n) || n > float64(math.MaxInt32) || n < float64(math.MinInt32) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func clampFloat(val, lo, hi float64) float64 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

func clampInt(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
