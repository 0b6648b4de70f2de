package topicsync

import (
	"slices"

	"github.com/vango-dev/topicsync/pkg/valueset"
)

// ListTopic holds an ordered list of JSON values. Positions may be negative
// and count from the end, so -1 is the last item.
type ListTopic struct {
	topicBase[[]any]

	insertListeners listeners[func(item any, pos int)]
	popListeners    listeners[func(item any, pos int)]
}

func newListTopic(m *StateManager, name string) *ListTopic {
	t := &ListTopic{}
	t.setup(m, t, name, KindList, listCodec, []any{}, map[string]decoder{
		TagSet:    decodeSet(listCodec),
		TagInsert: decodeListInsert,
		TagPop:    decodeListPop,
	})
	t.granular = t.notify
	return t
}

// Value returns a copy of the list.
func (t *ListTopic) Value() []any {
	t.checkDetached("read")
	return cloneList(t.value)
}

func (t *ListTopic) Set(items []any) error {
	return t.SetAny(items)
}

func (t *ListTopic) Len() int {
	return len(t.value)
}

// Item returns a copy of the item at pos.
func (t *ListTopic) Item(pos int) (any, bool) {
	i, ok := wrapIndex(pos, len(t.value), false)
	if !ok {
		return nil, false
	}
	return valueset.Clone(t.value[i]), true
}

// Insert inserts item before pos. pos may equal Len to append.
func (t *ListTopic) Insert(item any, pos int) error {
	n, err := valueset.Normalize(item)
	if err != nil {
		return changeErr(t.name, TagInsert, ErrInvalidChange, "%v", err)
	}
	return t.applyExternal(&ListInsert{changeBase: t.newBase(), Item: n, Position: pos})
}

func (t *ListTopic) Append(item any) error {
	return t.Insert(item, len(t.value))
}

// Pop removes the item at pos and returns it.
func (t *ListTopic) Pop(pos int) (any, error) {
	item, _ := t.Item(pos)
	if err := t.applyExternal(&ListPop{changeBase: t.newBase(), Position: pos}); err != nil {
		return nil, err
	}
	return item, nil
}

// Remove removes the first item equal to item.
func (t *ListTopic) Remove(item any) error {
	pos := slices.IndexFunc(t.value, func(v any) bool { return valueset.Equal(v, item) })
	if pos < 0 {
		return changeErr(t.name, TagPop, ErrItemNotFound, "%s", formatValue(item))
	}
	_, err := t.Pop(pos)
	return err
}

// SetItem replaces the item at pos. The pop and insert form one action.
func (t *ListTopic) SetItem(pos int, item any) error {
	i, ok := wrapIndex(pos, len(t.value), false)
	if !ok {
		return changeErr(t.name, TagPop, ErrInvalidPosition, "position %d in list of %d", pos, len(t.value))
	}
	return t.m.Record(func() error {
		if _, err := t.Pop(i); err != nil {
			return err
		}
		return t.Insert(item, i)
	})
}

func (t *ListTopic) OnInsert(fn func(item any, pos int)) func() {
	return t.insertListeners.add(fn)
}

func (t *ListTopic) OnPop(fn func(item any, pos int)) func() {
	return t.popListeners.add(fn)
}

func (t *ListTopic) notify(c Change, old, next []any) {
	switch c := c.(type) {
	case *SetChange[[]any]:
		for i := len(old) - 1; i >= 0; i-- {
			t.popListeners.each(func(fn func(any, int)) { fn(valueset.Clone(old[i]), i) })
		}
		for i := range next {
			t.insertListeners.each(func(fn func(any, int)) { fn(valueset.Clone(next[i]), i) })
		}
	case *ListInsert:
		t.insertListeners.each(func(fn func(any, int)) { fn(valueset.Clone(c.Item), c.Position) })
	case *ListPop:
		t.popListeners.each(func(fn func(any, int)) { fn(valueset.Clone(c.item), c.Position) })
	}
}

// wrapIndex resolves a possibly negative position against a list of n
// items. With insert, n itself is a valid position.
func wrapIndex(pos, n int, insert bool) (int, bool) {
	if pos < 0 {
		pos += n
	}
	limit := n
	if insert {
		limit = n + 1
	}
	return pos, pos >= 0 && pos < limit
}

// ListInsert inserts Item before Position. Applying it resolves a negative
// Position. Its inverse pops the same position.
type ListInsert struct {
	changeBase
	Item     any
	Position int
}

func (c *ListInsert) Tag() string { return TagInsert }

func (c *ListInsert) apply(_ Topic, old []any) ([]any, error) {
	pos, ok := wrapIndex(c.Position, len(old), true)
	if !ok {
		return nil, c.fail(TagInsert, ErrInvalidPosition, "position %d in list of %d", c.Position, len(old))
	}
	c.Position = pos
	return slices.Insert(cloneList(old), pos, valueset.Clone(c.Item)), nil
}

func (c *ListInsert) Serialize() ChangeDict {
	d := c.dict(TagInsert)
	d["item"] = valueset.Clone(c.Item)
	d["position"] = c.Position
	return d
}

func (c *ListInsert) Inverse() (Change, error) {
	if c.Position < 0 {
		return nil, c.fail(TagInsert, ErrNotApplied, "change %s has an unresolved position", c.id)
	}
	return &ListPop{changeBase: c.derive(), Position: c.Position}, nil
}

// ListPop removes the item at Position. Applying it resolves a negative
// Position and captures the removed item.
type ListPop struct {
	changeBase
	Position int
	item     any
	applied  bool
}

func (c *ListPop) Tag() string { return TagPop }

// Item returns the removed item once the change has been applied.
func (c *ListPop) Item() (any, bool) {
	return valueset.Clone(c.item), c.applied
}

func (c *ListPop) apply(_ Topic, old []any) ([]any, error) {
	pos, ok := wrapIndex(c.Position, len(old), false)
	if !ok {
		return nil, c.fail(TagPop, ErrInvalidPosition, "position %d in list of %d", c.Position, len(old))
	}
	c.Position = pos
	c.item = valueset.Clone(old[pos])
	c.applied = true
	return slices.Delete(cloneList(old), pos, pos+1), nil
}

func (c *ListPop) Serialize() ChangeDict {
	d := c.dict(TagPop)
	d["position"] = c.Position
	return d
}

func (c *ListPop) Inverse() (Change, error) {
	if !c.applied {
		return nil, c.fail(TagPop, ErrNotApplied, "change %s", c.id)
	}
	return &ListInsert{changeBase: c.derive(), Item: valueset.Clone(c.item), Position: c.Position}, nil
}

func decodeListInsert(base changeBase, r *dictReader) Change {
	return &ListInsert{changeBase: base, Item: r.value("item"), Position: r.int("position")}
}

func decodeListPop(base changeBase, r *dictReader) Change {
	key := "position"
	if !r.has(key) && r.has("index") {
		key = "index"
	}
	return &ListPop{changeBase: base, Position: r.int(key)}
}
