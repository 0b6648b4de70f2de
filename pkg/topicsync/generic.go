package topicsync

// GenericTopic holds any JSON value and only supports whole-value sets.
type GenericTopic struct {
	topicBase[any]
}

func newGenericTopic(m *StateManager, name string) *GenericTopic {
	t := &GenericTopic{}
	t.setup(m, t, name, KindGeneric, genericCodec, nil, map[string]decoder{
		TagSet: decodeSet(genericCodec),
	})
	return t
}

// Value returns a copy of the current value.
func (t *GenericTopic) Value() any {
	return t.GetAny()
}

// Set replaces the value. v must be representable as JSON.
func (t *GenericTopic) Set(v any) error {
	return t.SetAny(v)
}
