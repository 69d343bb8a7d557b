package strategy

import (
	"encoding/json"
	"math"
)

// Float reads a numeric param, accepting the shapes YAML and JSON decoding produce.
func Float(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

// Int reads an integer param. Fractional values are rounded, which is what
// evolved genes carry for period-like params.
func Int(params map[string]any, key string, def int) int {
	if _, ok := params[key]; !ok {
		return def
	}
	return int(math.Round(Float(params, key, float64(def))))
}

// ToParams converts a gene parameter vector into strategy params.
func ToParams(values map[string]float64) map[string]any {
	params := make(map[string]any, len(values))
	for k, v := range values {
		params[k] = v
	}
	return params
}
