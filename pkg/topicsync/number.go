package topicsync

// IntTopic holds an integer. Adds commute, so concurrent adds from several
// clients converge without rollback.
type IntTopic struct {
	topicBase[int64]
}

func newIntTopic(m *StateManager, name string) *IntTopic {
	t := &IntTopic{}
	t.setup(m, t, name, KindInt, intCodec, 0, map[string]decoder{
		TagSet: decodeSet(intCodec),
		TagAdd: decodeNumberAdd(intCodec),
	})
	return t
}

func (t *IntTopic) Value() int64 {
	t.checkDetached("read")
	return t.value
}

func (t *IntTopic) Set(v int64) error {
	return t.applyExternal(t.newSet(v))
}

// Add adds delta to the value.
func (t *IntTopic) Add(delta int64) error {
	return t.applyExternal(&NumberAdd[int64]{changeBase: t.newBase(), Delta: delta})
}

// FloatTopic holds a float.
type FloatTopic struct {
	topicBase[float64]
}

func newFloatTopic(m *StateManager, name string) *FloatTopic {
	t := &FloatTopic{}
	t.setup(m, t, name, KindFloat, floatCodec, 0, map[string]decoder{
		TagSet: decodeSet(floatCodec),
		TagAdd: decodeNumberAdd(floatCodec),
	})
	return t
}

func (t *FloatTopic) Value() float64 {
	t.checkDetached("read")
	return t.value
}

func (t *FloatTopic) Set(v float64) error {
	if _, err := floatCodec.decode(v); err != nil {
		return changeErr(t.name, TagSet, ErrInvalidChange, "%v", err)
	}
	return t.applyExternal(t.newSet(v))
}

func (t *FloatTopic) Add(delta float64) error {
	if _, err := floatCodec.decode(delta); err != nil {
		return changeErr(t.name, TagAdd, ErrInvalidChange, "%v", err)
	}
	return t.applyExternal(&NumberAdd[float64]{changeBase: t.newBase(), Delta: delta})
}

// NumberAdd adds Delta to an int or float topic. Its inverse adds -Delta.
type NumberAdd[N int64 | float64] struct {
	changeBase
	Delta N
}

func (c *NumberAdd[N]) Tag() string { return TagAdd }

func (c *NumberAdd[N]) apply(_ Topic, old N) (N, error) {
	return old + c.Delta, nil
}

func (c *NumberAdd[N]) Serialize() ChangeDict {
	d := c.dict(TagAdd)
	d["value"] = c.Delta
	return d
}

func (c *NumberAdd[N]) Inverse() (Change, error) {
	return &NumberAdd[N]{changeBase: c.derive(), Delta: -c.Delta}, nil
}

func decodeNumberAdd[N int64 | float64](cd *codec[N]) decoder {
	return func(base changeBase, r *dictReader) Change {
		return &NumberAdd[N]{changeBase: base, Delta: readWith(r, cd, "value")}
	}
}
