package valueset

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotRepresentable is returned when a value has no JSON encoding.
var ErrNotRepresentable = errors.New("valueset: value is not JSON-representable")

// Canonical returns the canonical JSON encoding of v.
func Canonical(v any) (string, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotRepresentable, err)
	}
	return string(buf), nil
}

// Normalize converts v into the shape encoding/json produces when decoding
// into an any: float64 numbers, []any arrays and map[string]any objects.
func Normalize(v any) (any, error) {
	c, err := Canonical(v)
	if err != nil {
		return nil, err
	}
	return decode(c), nil
}

// Equal reports whether a and b have the same canonical encoding.
// Non-representable values are never equal.
func Equal(a, b any) bool {
	ca, err := Canonical(a)
	if err != nil {
		return false
	}
	cb, err := Canonical(b)
	if err != nil {
		return false
	}
	return ca == cb
}

// Clone returns a deep copy of a JSON-like value. Maps and slices are copied
// recursively; every other value is returned as is.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case *Set:
		return t.Copy()
	default:
		return v
	}
}

func decode(canonical string) any {
	var out any
	// canonical came out of json.Marshal, so it always decodes.
	_ = json.Unmarshal([]byte(canonical), &out)
	return out
}
