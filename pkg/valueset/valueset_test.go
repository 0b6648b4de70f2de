package valueset

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_AddIsStructural(t *testing.T) {
	s := New()

	assert.True(t, s.Add(map[string]any{"a": 1, "b": []any{"x"}}))
	assert.False(t, s.Add(map[string]any{"b": []any{"x"}, "a": 1.0}), "key order and number form must not matter")
	assert.True(t, s.Add("1"))
	assert.True(t, s.Add(1))
	assert.False(t, s.Add(1.0))
	assert.Equal(t, 3, s.Len())
}

func TestSet_DeleteAbsent(t *testing.T) {
	s := New("a", "b")

	assert.False(t, s.Delete("c"))
	assert.Equal(t, []any{"a", "b"}, s.Values())

	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"))
	assert.Equal(t, []any{"b"}, s.Values())
	assert.False(t, s.Has("a"))
	assert.True(t, s.Has("b"))
}

func TestSet_InsertionOrderSurvivesDelete(t *testing.T) {
	s := New("a", "b", "c", "d")
	s.Delete("b")
	s.Add("e")

	assert.Equal(t, []any{"a", "c", "d", "e"}, s.Values())
	for _, v := range []string{"a", "c", "d", "e"} {
		assert.True(t, s.Has(v), v)
	}
}

func TestSet_AllIsRestartable(t *testing.T) {
	s := New(1, 2, 3)
	seq := s.All()

	var first, second []any
	for v := range seq {
		first = append(first, v)
	}
	for v := range seq {
		second = append(second, v)
	}
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}

func TestSet_NoDuplicatesInValues(t *testing.T) {
	s := New("x", "x", []any{1}, []any{1.0}, map[string]any{})
	seen := map[string]bool{}
	for _, v := range s.Values() {
		c, err := Canonical(v)
		require.NoError(t, err)
		assert.False(t, seen[c], "duplicate %s", c)
		seen[c] = true
	}
	assert.Len(t, seen, 3)
}

func TestSet_CopyIsIndependent(t *testing.T) {
	orig := New(map[string]any{"k": []any{1}})
	cp := orig.Copy()

	cp.Add("new")
	assert.Equal(t, 1, orig.Len())
	assert.Equal(t, 2, cp.Len())

	// Mutating a returned value must not leak into either set.
	vals := orig.Values()
	vals[0].(map[string]any)["k"] = "changed"
	assert.True(t, orig.Has(map[string]any{"k": []any{1}}))
	assert.True(t, cp.Has(map[string]any{"k": []any{1}}))
}

func TestSet_Difference(t *testing.T) {
	a := New(1, 2, 3, 4)
	b := New(2, 4, 5)

	assert.Equal(t, []any{1.0, 3.0}, a.Difference(b).Values())
	assert.Equal(t, []any{5.0}, b.Difference(a).Values())
	assert.Equal(t, 4, a.Difference(nil).Len())
}

func TestSet_Equal(t *testing.T) {
	assert.True(t, New(1, 2).Equal(New(2, 1)))
	assert.False(t, New(1, 2).Equal(New(1, 3)))
	assert.False(t, New(1).Equal(New(1, 2)))
}

func TestSet_JSON(t *testing.T) {
	s := New("a", 2, []any{"b"})
	buf, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["a",2,["b"]]`, string(buf))

	var back Set
	require.NoError(t, json.Unmarshal([]byte(`["x","x","y"]`), &back))
	assert.Equal(t, []any{"x", "y"}, back.Values())
}

func TestSet_PanicsOnNonRepresentable(t *testing.T) {
	s := New()
	assert.Panics(t, func() { s.Add(func() {}) })
	assert.Panics(t, func() { s.Has(math.NaN()) })
}

func TestCanonicalAndNormalize(t *testing.T) {
	c, err := Canonical(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, c)

	_, err = Canonical(make(chan int))
	assert.ErrorIs(t, err, ErrNotRepresentable)

	n, err := Normalize([]int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, n)

	assert.True(t, Equal(map[string]any{"a": 1}, map[string]any{"a": 1.0}))
	assert.False(t, Equal(1, "1"))
}

func TestClone(t *testing.T) {
	orig := map[string]any{"list": []any{map[string]any{"x": 1}}}
	cp := Clone(orig).(map[string]any)
	cp["list"].([]any)[0].(map[string]any)["x"] = 2

	assert.Equal(t, 1, orig["list"].([]any)[0].(map[string]any)["x"])
}
