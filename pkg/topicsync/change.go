package topicsync

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vango-dev/topicsync/pkg/valueset"
)

// ChangeDict is the wire form of a change:
//
//	{"topic_name": ..., "topic_type": ..., "type": <tag>, "id": ..., <payload>}
type ChangeDict map[string]any

// Name returns the topic_name field, or "" if absent.
func (d ChangeDict) Name() string {
	s, _ := d["topic_name"].(string)
	return s
}

// Tag returns the type field, or "" if absent.
func (d ChangeDict) Tag() string {
	s, _ := d["type"].(string)
	return s
}

// Change is an atomic, serializable and invertible mutation of one topic.
//
// A change holds its topic by name and re-resolves it through the owning
// StateManager on every access, so it stays valid if the topic is removed
// and subscribed again.
type Change interface {
	ID() string
	TopicName() string
	TopicKind() Kind
	Tag() string

	// Topic resolves the target topic. It reports false if the topic is no
	// longer registered.
	Topic() (Topic, bool)

	Serialize() ChangeDict

	// Inverse returns the change that undoes this one. Changes that capture
	// prior state while applying return ErrNotApplied until they have been
	// applied. Emits return ErrNotInvertible.
	Inverse() (Change, error)
}

// typedChange is a change that can be applied to a topic whose internal
// value has type T.
type typedChange[T any] interface {
	Change
	apply(target Topic, old T) (T, error)
}

type topicRef struct {
	name string
	kind Kind
	m    *StateManager
}

func (r topicRef) resolve() (Topic, bool) {
	if r.m == nil {
		return nil, false
	}
	return r.m.Topic(r.name)
}

func (r topicRef) newID() string {
	if r.m == nil {
		return uuid.NewString()
	}
	return r.m.ids.Next()
}

type changeBase struct {
	id  string
	ref topicRef
}

func (b *changeBase) ID() string           { return b.id }
func (b *changeBase) TopicName() string    { return b.ref.name }
func (b *changeBase) TopicKind() Kind      { return b.ref.kind }
func (b *changeBase) Topic() (Topic, bool) { return b.ref.resolve() }

// derive returns a base for a new change against the same topic.
func (b *changeBase) derive() changeBase {
	return changeBase{id: b.ref.newID(), ref: b.ref}
}

func (b *changeBase) dict(tag string) ChangeDict {
	return ChangeDict{
		"topic_name": b.ref.name,
		"topic_type": string(b.ref.kind),
		"type":       tag,
		"id":         b.id,
	}
}

func (b *changeBase) fail(tag string, err error, format string, args ...any) error {
	return changeErr(b.ref.name, tag, err, format, args...)
}

// decoder rebuilds a change of one tag from its wire form. Field errors are
// collected in r.
type decoder func(base changeBase, r *dictReader) Change

// dictReader reads typed fields from a ChangeDict and remembers the first
// error.
type dictReader struct {
	d   ChangeDict
	err error
}

func (r *dictReader) failf(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *dictReader) has(key string) bool {
	v, ok := r.d[key]
	return ok && v != nil
}

func (r *dictReader) raw(key string) any {
	v, ok := r.d[key]
	if !ok {
		r.failf("missing field %q", key)
	}
	return v
}

func (r *dictReader) string(key string) string {
	v := r.raw(key)
	s, ok := v.(string)
	if !ok {
		r.failf("field %q must be a string, got %T", key, v)
	}
	return s
}

func (r *dictReader) optString(key string) string {
	if !r.has(key) {
		return ""
	}
	return r.string(key)
}

func (r *dictReader) int(key string) int {
	n, err := toInt64(r.raw(key))
	if err != nil {
		r.failf("field %q: %v", key, err)
	}
	return int(n)
}

func (r *dictReader) value(key string) any {
	v, err := valueset.Normalize(r.raw(key))
	if err != nil {
		r.failf("field %q: %v", key, err)
	}
	return v
}

func readWith[T any](r *dictReader, cd *codec[T], key string) T {
	var zero T
	raw := r.raw(key)
	if r.err != nil {
		return zero
	}
	v, err := cd.decode(raw)
	if err != nil {
		r.failf("field %q: %v", key, err)
		return zero
	}
	return v
}

// =============================================================================
// Set
// =============================================================================

// SetChange replaces the whole value of a topic. It is the "set" change of
// every kind except event. Applying it captures the previous value.
type SetChange[T any] struct {
	changeBase
	codec   *codec[T]
	value   T
	old     T
	applied bool
}

func (c *SetChange[T]) Tag() string { return TagSet }

// Value returns the new value in external form.
func (c *SetChange[T]) Value() any { return c.codec.encode(c.value) }

// OldValue returns the captured previous value, if any.
func (c *SetChange[T]) OldValue() (any, bool) {
	if !c.applied {
		return nil, false
	}
	return c.codec.encode(c.old), true
}

func (c *SetChange[T]) apply(_ Topic, old T) (T, error) {
	c.old = c.codec.clone(old)
	c.applied = true
	return c.codec.clone(c.value), nil
}

func (c *SetChange[T]) Serialize() ChangeDict {
	d := c.dict(TagSet)
	d["value"] = c.codec.encode(c.value)
	if c.applied {
		d["old_value"] = c.codec.encode(c.old)
	}
	return d
}

func (c *SetChange[T]) Inverse() (Change, error) {
	if !c.applied {
		return nil, c.fail(TagSet, ErrNotApplied, "change %s", c.id)
	}
	return &SetChange[T]{
		changeBase: c.derive(),
		codec:      c.codec,
		value:      c.codec.clone(c.old),
		old:        c.codec.clone(c.value),
		applied:    true,
	}, nil
}

func decodeSet[T any](cd *codec[T]) decoder {
	return func(base changeBase, r *dictReader) Change {
		c := &SetChange[T]{changeBase: base, codec: cd, value: readWith(r, cd, "value")}
		if r.has("old_value") {
			c.old = readWith(r, cd, "old_value")
			c.applied = true
		}
		return c
	}
}
