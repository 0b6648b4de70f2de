// Package valueset provides an insertion-ordered set of JSON-like values.
//
// Membership is structural: two values are the same member when their
// canonical JSON encodings are identical. Object keys are sorted by the
// encoder, and numbers are compared by their encoded form, so 1 and 1.0 are
// one member while "1" is another.
//
//	s := valueset.New("a", map[string]any{"x": 1})
//	s.Add(map[string]any{"x": 1.0}) // false, already present
//	s.Add([]any{1, 2})             // true
//
// Values that cannot be encoded as JSON (funcs, channels, NaN) are not
// supported. Use Canonical to check a value before handing it to a Set.
package valueset
