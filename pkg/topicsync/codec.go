package topicsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/vango-dev/topicsync/pkg/valueset"
)

// codec converts between a topic's internal value and its external form,
// which is also the form used on the wire.
type codec[T any] struct {
	decode func(v any) (T, error)
	encode func(v T) any
	clone  func(v T) T
}

var genericCodec = &codec[any]{
	decode: valueset.Normalize,
	encode: valueset.Clone,
	clone:  valueset.Clone,
}

var stringCodec = &codec[string]{
	decode: func(v any) (string, error) {
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("want a string, got %T", v)
		}
		return s, nil
	},
	encode: func(v string) any { return v },
	clone:  func(v string) string { return v },
}

var intCodec = &codec[int64]{
	decode: toInt64,
	encode: func(v int64) any { return v },
	clone:  func(v int64) int64 { return v },
}

var floatCodec = &codec[float64]{
	decode: func(v any) (float64, error) {
		f, err := toFloat64(v)
		if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return 0, fmt.Errorf("%v has no JSON encoding", f)
		}
		return f, err
	},
	encode: func(v float64) any { return v },
	clone:  func(v float64) float64 { return v },
}

var setCodec = &codec[*valueset.Set]{
	decode: func(v any) (*valueset.Set, error) {
		if s, ok := v.(*valueset.Set); ok {
			return s.Copy(), nil
		}
		items, err := normalizeList(v)
		if err != nil {
			return nil, err
		}
		return valueset.FromSlice(items), nil
	},
	encode: func(v *valueset.Set) any { return v.Values() },
	clone:  func(v *valueset.Set) *valueset.Set { return v.Copy() },
}

var dictCodec = &codec[map[string]any]{
	decode: func(v any) (map[string]any, error) {
		if v == nil {
			return map[string]any{}, nil
		}
		n, err := valueset.Normalize(v)
		if err != nil {
			return nil, err
		}
		m, ok := n.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("want an object, got %T", v)
		}
		return m, nil
	},
	encode: func(v map[string]any) any { return cloneDict(v) },
	clone:  cloneDict,
}

var listCodec = &codec[[]any]{
	decode: normalizeList,
	encode: func(v []any) any { return cloneList(v) },
	clone:  cloneList,
}

var eventCodec = &codec[struct{}]{
	decode: func(any) (struct{}, error) { return struct{}{}, nil },
	encode: func(struct{}) any { return nil },
	clone:  func(v struct{}) struct{} { return v },
}

func normalizeList(v any) ([]any, error) {
	if v == nil {
		return []any{}, nil
	}
	n, err := valueset.Normalize(v)
	if err != nil {
		return nil, err
	}
	l, ok := n.([]any)
	if !ok {
		return nil, fmt.Errorf("want an array, got %T", v)
	}
	return l, nil
}

func cloneDict(v map[string]any) map[string]any {
	out := make(map[string]any, len(v))
	for k, e := range v {
		out[k] = valueset.Clone(e)
	}
	return out
}

func cloneList(v []any) []any {
	out := make([]any, len(v))
	for i, e := range v {
		out[i] = valueset.Clone(e)
	}
	return out
}

var errNotIntegral = errors.New("number is not integral")

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", n)
		}
		return int64(n), nil
	case float32:
		return toInt64(float64(n))
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v", errNotIntegral, n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("want an integer, got %T", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		i, err := toInt64(v)
		if err != nil {
			return 0, fmt.Errorf("want a number, got %T", v)
		}
		return float64(i), nil
	}
}
