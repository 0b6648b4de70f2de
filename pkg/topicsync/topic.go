package topicsync

import (
	"fmt"
)

// Topic is a named, typed state cell synchronized with the server.
//
// The concrete types are *GenericTopic, *StringTopic, *IntTopic,
// *FloatTopic, *SetTopic, *DictTopic, *ListTopic and *EventTopic. Topics are
// created by a StateManager and are not safe for concurrent use.
type Topic interface {
	Name() string
	Kind() Kind

	// GetAny returns a copy of the current value in external form.
	GetAny() any

	// SetAny replaces the value with v, converted from external form.
	SetAny(v any) error

	Initialized() bool
	Pretended() bool
	Detached() bool

	// DisablePreview stops changes with the given tags from being applied
	// locally before the server confirms them. No tags means every tag.
	DisablePreview(tags ...string)
	EnablePreview(tags ...string)

	// OnChange registers fn to run after every applied change with the
	// external values before and after it. The returned function
	// unregisters fn.
	OnChange(fn func(old, new any)) func()

	// OnSet registers fn to run with the new value after every applied
	// change. If the topic is initialized, fn also runs immediately.
	OnSet(fn func(value any)) func()

	// OnInit registers fn to run when the initial value arrives.
	OnInit(fn func(value any)) func()

	DeserializeChange(d ChangeDict) (Change, error)

	applyChange(c Change) error
	initialize(value any) error
	markInitialized()
	setPretended()
	setDetached()
}

// topicBase implements the kind-independent part of a topic whose internal
// value has type T.
type topicBase[T any] struct {
	name  string
	kind  Kind
	m     *StateManager
	self  Topic
	codec *codec[T]
	value T

	decoders   map[string]decoder
	validators []func(old T, c Change) bool
	noPreview  map[string]bool

	initialized bool
	pretended   bool
	detached    bool

	changeListeners listeners[func(old, new any)]
	setListeners    listeners[func(value any)]
	initListeners   listeners[func(value any)]

	// granular fires the kind-specific listeners for an applied change.
	granular func(c Change, old, new T)
}

func (t *topicBase[T]) setup(m *StateManager, self Topic, name string, kind Kind, cd *codec[T], initial T, decoders map[string]decoder) {
	t.m = m
	t.self = self
	t.name = name
	t.kind = kind
	t.codec = cd
	t.value = initial
	t.decoders = decoders
	t.noPreview = make(map[string]bool)
}

func (t *topicBase[T]) Name() string      { return t.name }
func (t *topicBase[T]) Kind() Kind        { return t.kind }
func (t *topicBase[T]) Initialized() bool { return t.initialized }
func (t *topicBase[T]) Pretended() bool   { return t.pretended }
func (t *topicBase[T]) Detached() bool    { return t.detached }

func (t *topicBase[T]) GetAny() any {
	t.checkDetached("read")
	return t.codec.encode(t.value)
}

func (t *topicBase[T]) SetAny(v any) error {
	val, err := t.codec.decode(v)
	if err != nil {
		return changeErr(t.name, TagSet, ErrInvalidChange, "%v", err)
	}
	return t.applyExternal(t.newSet(val))
}

// AddValidator registers a predicate that every change must satisfy before
// it is applied. Returning false rejects the change with ErrRejected.
func (t *topicBase[T]) AddValidator(fn func(old T, c Change) bool) {
	t.validators = append(t.validators, fn)
}

func (t *topicBase[T]) DisablePreview(tags ...string) {
	if len(tags) == 0 {
		for tag := range t.decoders {
			t.noPreview[tag] = true
		}
		return
	}
	for _, tag := range tags {
		t.noPreview[tag] = true
	}
}

func (t *topicBase[T]) EnablePreview(tags ...string) {
	if len(tags) == 0 {
		clear(t.noPreview)
		return
	}
	for _, tag := range tags {
		delete(t.noPreview, tag)
	}
}

func (t *topicBase[T]) OnChange(fn func(old, new any)) func() {
	return t.changeListeners.add(fn)
}

func (t *topicBase[T]) OnSet(fn func(value any)) func() {
	remove := t.setListeners.add(fn)
	if t.initialized {
		fn(t.codec.encode(t.value))
	}
	return remove
}

func (t *topicBase[T]) OnInit(fn func(value any)) func() {
	return t.initListeners.add(fn)
}

func (t *topicBase[T]) DeserializeChange(d ChangeDict) (Change, error) {
	tag := d.Tag()
	if tt, ok := d["topic_type"]; ok && tt != string(t.kind) {
		return nil, changeErr(t.name, tag, ErrUnknownChangeType, "change is for a %v topic, topic is %s", tt, t.kind)
	}
	dec, ok := t.decoders[tag]
	if !ok {
		return nil, changeErr(t.name, tag, ErrUnknownChangeType, "%s topics have no %q change", t.kind, tag)
	}
	r := &dictReader{d: d}
	base := changeBase{id: r.string("id"), ref: t.ref()}
	c := dec(base, r)
	if r.err != nil {
		return nil, changeErr(t.name, tag, ErrMalformedChange, "%v", r.err)
	}
	return c, nil
}

func (t *topicBase[T]) ref() topicRef {
	return topicRef{name: t.name, kind: t.kind, m: t.m}
}

// newBase returns the base of a new locally created change.
func (t *topicBase[T]) newBase() changeBase {
	ref := t.ref()
	return changeBase{id: ref.newID(), ref: ref}
}

func (t *topicBase[T]) newSet(v T) *SetChange[T] {
	return &SetChange[T]{changeBase: t.newBase(), codec: t.codec, value: v}
}

func (t *topicBase[T]) validate(c Change) error {
	for _, v := range t.validators {
		if !v(t.value, c) {
			return changeErr(t.name, c.Tag(), ErrRejected, "change %s", c.ID())
		}
	}
	return nil
}

// applyExternal is the entry point of the mutators: it validates c and
// hands it to the StateManager, which decides when it is applied.
func (t *topicBase[T]) applyExternal(c Change) error {
	if t.checkDetached("mutate") {
		return nil
	}
	if err := t.validate(c); err != nil {
		return err
	}
	return t.m.ApplyChange(c, !t.noPreview[c.Tag()])
}

// applyChange validates and applies c, then notifies listeners. Only the
// StateManager calls it.
func (t *topicBase[T]) applyChange(c Change) error {
	t.checkDetached("apply")
	if err := t.validate(c); err != nil {
		return err
	}
	tc, ok := c.(typedChange[T])
	if !ok {
		return changeErr(t.name, c.Tag(), ErrUnknownChangeType, "%T cannot be applied to a %s topic", c, t.kind)
	}
	old := t.value
	next, err := tc.apply(t.self, old)
	if err != nil {
		return err
	}
	t.commit(c, old, next)
	return nil
}

func (t *topicBase[T]) commit(c Change, old, next T) {
	t.value = next
	if t.granular != nil {
		t.granular(c, old, next)
	}
	if t.changeListeners.len() > 0 {
		before, after := t.codec.encode(old), t.codec.encode(next)
		t.changeListeners.each(func(fn func(old, new any)) { fn(before, after) })
	}
	if t.setListeners.len() > 0 {
		after := t.codec.encode(next)
		t.setListeners.each(func(fn func(value any)) { fn(after) })
	}
}

// initialize replaces the value with the subscription snapshot, bypassing
// validators and the recording machinery.
func (t *topicBase[T]) initialize(value any) error {
	v, err := t.codec.decode(value)
	if err != nil {
		return changeErr(t.name, "init", ErrMalformedChange, "%v", err)
	}
	c := t.newSet(v)
	old := t.value
	next, _ := c.apply(t.self, old)
	t.commit(c, old, next)
	return nil
}

func (t *topicBase[T]) markInitialized() {
	t.initialized = true
	if t.initListeners.len() > 0 {
		v := t.codec.encode(t.value)
		t.initListeners.each(func(fn func(value any)) { fn(v) })
	}
}

func (t *topicBase[T]) setPretended() { t.pretended = true }
func (t *topicBase[T]) setDetached()  { t.detached = true }

// checkDetached logs use of a detached topic and reports whether it is
// detached.
func (t *topicBase[T]) checkDetached(op string) bool {
	if !t.detached {
		return false
	}
	t.m.logger.Warn("topic has been removed and no longer syncs with the server",
		"topic", t.name, "op", op)
	return true
}

func (t *topicBase[T]) String() string {
	return fmt.Sprintf("%s topic %q", t.kind, t.name)
}
