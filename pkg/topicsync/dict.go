package topicsync

import (
	"maps"
	"slices"

	"github.com/vango-dev/topicsync/pkg/valueset"
)

// DictTopic holds a JSON object.
type DictTopic struct {
	topicBase[map[string]any]

	addListeners         listeners[func(key string, value any)]
	popListeners         listeners[func(key string, value any)]
	changeValueListeners listeners[func(key string, old, new any)]
}

func newDictTopic(m *StateManager, name string) *DictTopic {
	t := &DictTopic{}
	t.setup(m, t, name, KindDict, dictCodec, map[string]any{}, map[string]decoder{
		TagSet:         decodeSet(dictCodec),
		TagAdd:         decodeDictAdd,
		TagPop:         decodeDictPop,
		TagChangeValue: decodeDictChangeValue,
	})
	t.granular = t.notify
	return t
}

// Value returns a copy of the object.
func (t *DictTopic) Value() map[string]any {
	t.checkDetached("read")
	return cloneDict(t.value)
}

func (t *DictTopic) Set(v map[string]any) error {
	return t.SetAny(v)
}

// Get returns a copy of the value at key.
func (t *DictTopic) Get(key string) (any, bool) {
	v, ok := t.value[key]
	return valueset.Clone(v), ok
}

func (t *DictTopic) Len() int {
	return len(t.value)
}

// Add adds a new key. It fails with ErrDuplicateKey if key is present.
func (t *DictTopic) Add(key string, value any) error {
	n, err := valueset.Normalize(value)
	if err != nil {
		return changeErr(t.name, TagAdd, ErrInvalidChange, "%v", err)
	}
	return t.applyExternal(&DictAdd{changeBase: t.newBase(), Key: key, Value: n})
}

// Pop removes key. It fails with ErrKeyNotFound if key is absent.
func (t *DictTopic) Pop(key string) error {
	return t.applyExternal(&DictPop{changeBase: t.newBase(), Key: key})
}

// ChangeValue replaces the value of an existing key.
func (t *DictTopic) ChangeValue(key string, value any) error {
	n, err := valueset.Normalize(value)
	if err != nil {
		return changeErr(t.name, TagChangeValue, ErrInvalidChange, "%v", err)
	}
	return t.applyExternal(&DictChangeValue{changeBase: t.newBase(), Key: key, Value: n})
}

func (t *DictTopic) OnAdd(fn func(key string, value any)) func() {
	return t.addListeners.add(fn)
}

// OnPop registers fn to run after a key is removed, with its last value.
func (t *DictTopic) OnPop(fn func(key string, value any)) func() {
	return t.popListeners.add(fn)
}

func (t *DictTopic) OnChangeValue(fn func(key string, old, new any)) func() {
	return t.changeValueListeners.add(fn)
}

func (t *DictTopic) notify(c Change, old, next map[string]any) {
	switch c := c.(type) {
	case *SetChange[map[string]any]:
		for _, k := range slices.Sorted(maps.Keys(old)) {
			if _, ok := next[k]; !ok {
				t.firePop(k, old[k])
			}
		}
		for _, k := range slices.Sorted(maps.Keys(next)) {
			prev, ok := old[k]
			switch {
			case !ok:
				t.fireAdd(k, next[k])
			case !valueset.Equal(prev, next[k]):
				t.fireChangeValue(k, prev, next[k])
			}
		}
	case *DictAdd:
		t.fireAdd(c.Key, c.Value)
	case *DictPop:
		t.firePop(c.Key, c.value)
	case *DictChangeValue:
		t.fireChangeValue(c.Key, c.old, c.Value)
	}
}

func (t *DictTopic) fireAdd(key string, v any) {
	t.addListeners.each(func(fn func(string, any)) { fn(key, valueset.Clone(v)) })
}

func (t *DictTopic) firePop(key string, v any) {
	t.popListeners.each(func(fn func(string, any)) { fn(key, valueset.Clone(v)) })
}

func (t *DictTopic) fireChangeValue(key string, old, v any) {
	t.changeValueListeners.each(func(fn func(string, any, any)) {
		fn(key, valueset.Clone(old), valueset.Clone(v))
	})
}

// DictAdd adds Key with Value. Its inverse is DictPop.
type DictAdd struct {
	changeBase
	Key   string
	Value any
}

func (c *DictAdd) Tag() string { return TagAdd }

func (c *DictAdd) apply(_ Topic, old map[string]any) (map[string]any, error) {
	if _, ok := old[c.Key]; ok {
		return nil, c.fail(TagAdd, ErrDuplicateKey, "%q", c.Key)
	}
	next := maps.Clone(old)
	if next == nil {
		next = map[string]any{}
	}
	next[c.Key] = valueset.Clone(c.Value)
	return next, nil
}

func (c *DictAdd) Serialize() ChangeDict {
	d := c.dict(TagAdd)
	d["key"] = c.Key
	d["value"] = valueset.Clone(c.Value)
	return d
}

func (c *DictAdd) Inverse() (Change, error) {
	return &DictPop{changeBase: c.derive(), Key: c.Key}, nil
}

// DictPop removes Key. Applying it captures the removed value, which its
// inverse adds back.
type DictPop struct {
	changeBase
	Key     string
	value   any
	applied bool
}

func (c *DictPop) Tag() string { return TagPop }

// Value returns the removed value once the change has been applied.
func (c *DictPop) Value() (any, bool) {
	return valueset.Clone(c.value), c.applied
}

func (c *DictPop) apply(_ Topic, old map[string]any) (map[string]any, error) {
	v, ok := old[c.Key]
	if !ok {
		return nil, c.fail(TagPop, ErrKeyNotFound, "%q", c.Key)
	}
	c.value = valueset.Clone(v)
	c.applied = true
	next := maps.Clone(old)
	delete(next, c.Key)
	return next, nil
}

func (c *DictPop) Serialize() ChangeDict {
	d := c.dict(TagPop)
	d["key"] = c.Key
	return d
}

func (c *DictPop) Inverse() (Change, error) {
	if !c.applied {
		return nil, c.fail(TagPop, ErrNotApplied, "change %s", c.id)
	}
	return &DictAdd{changeBase: c.derive(), Key: c.Key, Value: valueset.Clone(c.value)}, nil
}

// DictChangeValue replaces the value of an existing Key. Applying it
// captures the previous value.
type DictChangeValue struct {
	changeBase
	Key     string
	Value   any
	old     any
	applied bool
}

func (c *DictChangeValue) Tag() string { return TagChangeValue }

// OldValue returns the replaced value once the change has been applied.
func (c *DictChangeValue) OldValue() (any, bool) {
	return valueset.Clone(c.old), c.applied
}

func (c *DictChangeValue) apply(_ Topic, old map[string]any) (map[string]any, error) {
	prev, ok := old[c.Key]
	if !ok {
		return nil, c.fail(TagChangeValue, ErrKeyNotFound, "%q", c.Key)
	}
	c.old = valueset.Clone(prev)
	c.applied = true
	next := maps.Clone(old)
	next[c.Key] = valueset.Clone(c.Value)
	return next, nil
}

func (c *DictChangeValue) Serialize() ChangeDict {
	d := c.dict(TagChangeValue)
	d["key"] = c.Key
	d["value"] = valueset.Clone(c.Value)
	if c.applied {
		d["old_value"] = valueset.Clone(c.old)
	}
	return d
}

func (c *DictChangeValue) Inverse() (Change, error) {
	if !c.applied {
		return nil, c.fail(TagChangeValue, ErrNotApplied, "change %s", c.id)
	}
	return &DictChangeValue{
		changeBase: c.derive(),
		Key:        c.Key,
		Value:      valueset.Clone(c.old),
		old:        valueset.Clone(c.Value),
		applied:    true,
	}, nil
}

func decodeDictAdd(base changeBase, r *dictReader) Change {
	return &DictAdd{changeBase: base, Key: r.string("key"), Value: r.value("value")}
}

func decodeDictPop(base changeBase, r *dictReader) Change {
	return &DictPop{changeBase: base, Key: r.string("key")}
}

func decodeDictChangeValue(base changeBase, r *dictReader) Change {
	c := &DictChangeValue{changeBase: base, Key: r.string("key"), Value: r.value("value")}
	if _, ok := r.d["old_value"]; ok {
		c.old = r.value("old_value")
		c.applied = true
	}
	return c
}
