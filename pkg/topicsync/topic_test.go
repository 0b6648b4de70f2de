package topicsync

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorRejects(t *testing.T) {
	h := newHarness(t)
	n := subscribe[*IntTopic](t, h, "n", KindInt, 0)
	n.AddValidator(func(old int64, c Change) bool {
		add, ok := c.(*NumberAdd[int64])
		return !ok || old+add.Delta <= 10
	})

	require.NoError(t, n.Add(7))
	err := n.Add(7)
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorIs(t, err, ErrInvalidChange)
	assert.Equal(t, int64(7), n.Value())
	assert.Len(t, h.sent, 1)
}

func TestOnSetFiresImmediatelyWhenInitialized(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.AddSubscription("s", KindString)
	require.NoError(t, err)
	s, err := GetTopic[*StringTopic](h.m, "s")
	require.NoError(t, err)

	var seen []any
	s.OnSet(func(v any) { seen = append(seen, v) })
	assert.Empty(t, seen, "not initialized yet")

	var inits []any
	s.OnInit(func(v any) { inits = append(inits, v) })
	require.NoError(t, h.m.HandleInit("s", "hi"))
	assert.Equal(t, []any{"hi"}, seen)
	assert.Equal(t, []any{"hi"}, inits)

	var late []any
	unsubscribe := s.OnSet(func(v any) { late = append(late, v) })
	assert.Equal(t, []any{"hi"}, late)

	unsubscribe()
	require.NoError(t, s.Set("bye"))
	assert.Equal(t, []any{"hi"}, late)
	assert.Equal(t, []any{"hi", "bye"}, seen)
}

func TestOnChangeReportsBeforeAndAfter(t *testing.T) {
	h := newHarness(t)
	f := subscribe[*FloatTopic](t, h, "f", KindFloat, 1)

	var pairs [][2]any
	f.OnChange(func(old, new any) { pairs = append(pairs, [2]any{old, new}) })
	require.NoError(t, f.Add(0.5))
	require.NoError(t, f.Set(-2))

	assert.Equal(t, [][2]any{{1.0, 1.5}, {1.5, -2.0}}, pairs)
}

func TestStringListeners(t *testing.T) {
	h := newHarness(t)
	s := subscribe[*StringTopic](t, h, "s", KindString, "abc")

	var events []string
	s.OnInsert(func(pos int, text string) { events = append(events, "ins", text) })
	s.OnDelete(func(pos int, text string) { events = append(events, "del", text) })

	require.NoError(t, s.Insert(0, "x"))
	require.NoError(t, s.Delete(1, "ab"))
	require.NoError(t, s.Set("new"))

	assert.Equal(t, []string{"ins", "x", "del", "ab", "del", "xc", "ins", "new"}, events)
}

func TestSetTopicListeners(t *testing.T) {
	h := newHarness(t)
	s := subscribe[*SetTopic](t, h, "s", KindSet, []any{"a", "b"})

	var appended, removed []any
	s.OnAppend(func(item any) { appended = append(appended, item) })
	s.OnRemove(func(item any) { removed = append(removed, item) })

	require.NoError(t, s.Append("c"))
	require.NoError(t, s.Remove("a"))
	require.NoError(t, s.Set([]any{"c", "d"}))

	assert.Equal(t, []any{"c", "d"}, appended)
	assert.Equal(t, []any{"a", "b"}, removed)
	assert.True(t, s.Has("d"))
	assert.False(t, s.Has(func() {}))
	assert.Equal(t, 2, s.Len())
}

func TestDictTopicListeners(t *testing.T) {
	h := newHarness(t)
	d := subscribe[*DictTopic](t, h, "d", KindDict, map[string]any{"a": 1, "b": 2})

	var log []string
	d.OnAdd(func(k string, v any) { log = append(log, "add "+k) })
	d.OnPop(func(k string, v any) { log = append(log, "pop "+k) })
	d.OnChangeValue(func(k string, old, new any) { log = append(log, "change "+k) })

	require.NoError(t, d.Add("c", 3))
	require.NoError(t, d.ChangeValue("a", 10))
	require.NoError(t, d.Pop("b"))
	require.NoError(t, d.Set(map[string]any{"a": 10, "c": 4, "z": 0}))

	assert.Equal(t, []string{
		"add c", "change a", "pop b",
		"change c", "add z",
	}, log)

	v, ok := d.Get("c")
	require.True(t, ok)
	assert.Equal(t, 4.0, v)

	assert.ErrorIs(t, d.Add("a", 1), ErrDuplicateKey)
	assert.ErrorIs(t, d.Pop("missing"), ErrKeyNotFound)
	assert.ErrorIs(t, d.ChangeValue("missing", 1), ErrKeyNotFound)
}

func TestListTopic(t *testing.T) {
	h := newHarness(t)
	l := subscribe[*ListTopic](t, h, "l", KindList, []any{"a", "b", "c"})

	var log []any
	l.OnInsert(func(item any, pos int) { log = append(log, "ins", item, pos) })
	l.OnPop(func(item any, pos int) { log = append(log, "pop", item, pos) })

	require.NoError(t, l.Append("d"))
	item, err := l.Pop(-1)
	require.NoError(t, err)
	assert.Equal(t, "d", item)
	require.NoError(t, l.Remove("b"))
	assert.Equal(t, []any{"a", "c"}, l.Value())

	assert.Equal(t, []any{"ins", "d", 3, "pop", "d", 3, "pop", "b", 1}, log)

	before := len(h.sent)
	require.NoError(t, l.SetItem(-1, "z"))
	assert.Equal(t, []any{"a", "z"}, l.Value())
	require.Len(t, h.sent, before+1, "SetItem is one action")
	assert.Len(t, h.lastAction(t).changes, 2)

	assert.ErrorIs(t, l.Remove("missing"), ErrItemNotFound)
	assert.ErrorIs(t, l.Insert("x", 5), ErrInvalidPosition)
	_, err = l.Pop(2)
	assert.ErrorIs(t, err, ErrInvalidPosition)
	assert.ErrorIs(t, l.SetItem(7, "x"), ErrInvalidPosition)

	got, ok := l.Item(0)
	assert.True(t, ok)
	assert.Equal(t, "a", got)
	assert.Equal(t, 2, l.Len())
}

func TestEventTopic(t *testing.T) {
	h := newHarness(t)
	e := subscribe[*EventTopic](t, h, "e", KindEvent, nil)

	var got []any
	e.OnEmit(func(args any) { got = append(got, args) })
	require.NoError(t, e.Emit(map[string]any{"n": 1}))
	require.NoError(t, e.Emit(nil))

	assert.Equal(t, []any{map[string]any{"n": 1.0}, map[string]any{}}, got)
	assert.Nil(t, e.GetAny())
	assert.ErrorIs(t, e.SetAny(1), ErrInvalidChange)
}

func TestMutatorsRejectUnrepresentableValues(t *testing.T) {
	h := newHarness(t)
	g := subscribe[*GenericTopic](t, h, "g", KindGeneric, nil)
	s := subscribe[*SetTopic](t, h, "s", KindSet, nil)
	f := subscribe[*FloatTopic](t, h, "f", KindFloat, 0)

	assert.ErrorIs(t, g.Set(make(chan int)), ErrInvalidChange)
	assert.ErrorIs(t, s.Append(func() {}), ErrInvalidChange)
	assert.ErrorIs(t, f.Add(posInf()), ErrInvalidChange)
	assert.Empty(t, h.sent)
}

func TestDisablePreview(t *testing.T) {
	h := newHarness(t)
	n := subscribe[*IntTopic](t, h, "n", KindInt, 1)
	n.DisablePreview(TagAdd)

	require.NoError(t, n.Add(5))
	assert.Equal(t, int64(1), n.Value(), "not applied until the server confirms")
	assert.Zero(t, h.m.PreviewLen())

	action := h.lastAction(t)
	require.NoError(t, h.m.HandleUpdate(echo(t, h.m, action.changes), action.id))
	assert.Equal(t, int64(6), n.Value())

	require.NoError(t, n.Set(0))
	assert.Equal(t, int64(0), n.Value(), "set still previews")

	n.EnablePreview()
	require.NoError(t, n.Add(2))
	assert.Equal(t, int64(2), n.Value())

	n.DisablePreview()
	require.NoError(t, n.Set(9))
	assert.Equal(t, int64(2), n.Value())
}

func TestDetachedTopic(t *testing.T) {
	h := newHarness(t)
	n := subscribe[*IntTopic](t, h, "n", KindInt, 1)

	assert.True(t, h.m.RemoveSubscription("n"))
	assert.True(t, n.Detached())
	assert.False(t, h.m.HasTopic("n"))

	require.NoError(t, n.Add(1), "mutating a detached topic is logged, not returned")
	assert.Equal(t, int64(1), n.Value())
	assert.Empty(t, h.sent)

	assert.False(t, h.m.RemoveSubscription("n"))
}

func posInf() float64 {
	return math.Inf(1)
}
