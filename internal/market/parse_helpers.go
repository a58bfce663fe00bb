package market

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func stringFromMap(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := stringFromAny(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// decimalFromMap parses the first key present in m. A present value that is
// not numeric reports false rather than falling through to an alias.
func decimalFromMap(m map[string]any, keys ...string) (decimal.Decimal, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return decimalFromAny(v)
		}
	}
	return decimal.Zero, false
}

func decimalFromAny(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(val), true
	case float32:
		return decimal.NewFromFloat32(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case int32:
		return decimal.NewFromInt32(val), true
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func int64FromMap(m map[string]any, keys ...string) (int64, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if n, ok := int64FromAny(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func int64FromAny(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case float64:
		return int64FromFloat(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, true
		}
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return int64FromFloat(f)
	case string:
		s := strings.TrimSpace(val)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return int64FromFloat(f)
	default:
		return 0, false
	}
}

func int64FromFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
