package topicsync

import (
	"github.com/vango-dev/topicsync/pkg/valueset"
)

// SetTopic holds a set of JSON values compared structurally. Its external
// form is an array in insertion order.
type SetTopic struct {
	topicBase[*valueset.Set]

	appendListeners listeners[func(item any)]
	removeListeners listeners[func(item any)]
}

func newSetTopic(m *StateManager, name string) *SetTopic {
	t := &SetTopic{}
	t.setup(m, t, name, KindSet, setCodec, valueset.New(), map[string]decoder{
		TagSet:    decodeSet(setCodec),
		TagAppend: decodeSetAppend,
		TagRemove: decodeSetRemove,
	})
	t.granular = t.notify
	return t
}

// Value returns copies of the members in insertion order.
func (t *SetTopic) Value() []any {
	t.checkDetached("read")
	return t.value.Values()
}

func (t *SetTopic) Set(items []any) error {
	return t.SetAny(items)
}

// Append adds item. It fails with ErrDuplicateItem if an equal item is
// already present.
func (t *SetTopic) Append(item any) error {
	n, err := valueset.Normalize(item)
	if err != nil {
		return changeErr(t.name, TagAppend, ErrInvalidChange, "%v", err)
	}
	return t.applyExternal(&SetAppend{changeBase: t.newBase(), Item: n})
}

// Remove removes item. It fails with ErrItemNotFound if no equal item is
// present.
func (t *SetTopic) Remove(item any) error {
	n, err := valueset.Normalize(item)
	if err != nil {
		return changeErr(t.name, TagRemove, ErrInvalidChange, "%v", err)
	}
	return t.applyExternal(&SetRemove{changeBase: t.newBase(), Item: n})
}

// Has reports whether an item equal to item is present.
func (t *SetTopic) Has(item any) bool {
	if _, err := valueset.Canonical(item); err != nil {
		return false
	}
	return t.value.Has(item)
}

func (t *SetTopic) Len() int {
	return t.value.Len()
}

func (t *SetTopic) OnAppend(fn func(item any)) func() {
	return t.appendListeners.add(fn)
}

func (t *SetTopic) OnRemove(fn func(item any)) func() {
	return t.removeListeners.add(fn)
}

func (t *SetTopic) notify(c Change, old, next *valueset.Set) {
	switch c := c.(type) {
	case *SetChange[*valueset.Set]:
		for item := range old.Difference(next).All() {
			t.removeListeners.each(func(fn func(any)) { fn(item) })
		}
		for item := range next.Difference(old).All() {
			t.appendListeners.each(func(fn func(any)) { fn(item) })
		}
	case *SetAppend:
		t.appendListeners.each(func(fn func(any)) { fn(valueset.Clone(c.Item)) })
	case *SetRemove:
		t.removeListeners.each(func(fn func(any)) { fn(valueset.Clone(c.Item)) })
	}
}

// SetAppend adds Item to a set topic. Its inverse is SetRemove.
type SetAppend struct {
	changeBase
	Item any
}

func (c *SetAppend) Tag() string { return TagAppend }

func (c *SetAppend) apply(_ Topic, old *valueset.Set) (*valueset.Set, error) {
	next := old.Copy()
	if !next.Add(c.Item) {
		return nil, c.fail(TagAppend, ErrDuplicateItem, "%s", formatValue(c.Item))
	}
	return next, nil
}

func (c *SetAppend) Serialize() ChangeDict {
	d := c.dict(TagAppend)
	d["item"] = valueset.Clone(c.Item)
	return d
}

func (c *SetAppend) Inverse() (Change, error) {
	return &SetRemove{changeBase: c.derive(), Item: valueset.Clone(c.Item)}, nil
}

// SetRemove removes Item from a set topic. Its inverse is SetAppend.
type SetRemove struct {
	changeBase
	Item any
}

func (c *SetRemove) Tag() string { return TagRemove }

func (c *SetRemove) apply(_ Topic, old *valueset.Set) (*valueset.Set, error) {
	next := old.Copy()
	if !next.Delete(c.Item) {
		return nil, c.fail(TagRemove, ErrItemNotFound, "%s", formatValue(c.Item))
	}
	return next, nil
}

func (c *SetRemove) Serialize() ChangeDict {
	d := c.dict(TagRemove)
	d["item"] = valueset.Clone(c.Item)
	return d
}

func (c *SetRemove) Inverse() (Change, error) {
	return &SetAppend{changeBase: c.derive(), Item: valueset.Clone(c.Item)}, nil
}

func decodeSetAppend(base changeBase, r *dictReader) Change {
	return &SetAppend{changeBase: base, Item: r.value("item")}
}

func decodeSetRemove(base changeBase, r *dictReader) Change {
	return &SetRemove{changeBase: base, Item: r.value("item")}
}

// formatValue renders v as canonical JSON for error messages.
func formatValue(v any) string {
	s, err := valueset.Canonical(v)
	if err != nil {
		return "<unrepresentable>"
	}
	return s
}
