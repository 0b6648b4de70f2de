package topicsync

import (
	"github.com/vango-dev/topicsync/pkg/valueset"
)

// EventTopic carries no state. Each emit is delivered to the OnEmit
// listeners of every subscriber.
type EventTopic struct {
	topicBase[struct{}]

	emitListeners listeners[func(args any)]
}

func newEventTopic(m *StateManager, name string) *EventTopic {
	t := &EventTopic{}
	t.setup(m, t, name, KindEvent, eventCodec, struct{}{}, map[string]decoder{
		TagEmit: decodeEventEmit,
	})
	t.granular = t.notify
	return t
}

// SetAny always fails: an event topic has no value.
func (t *EventTopic) SetAny(any) error {
	return changeErr(t.name, TagSet, ErrInvalidChange, "event topics have no value")
}

// Emit sends args to every listener.
func (t *EventTopic) Emit(args any) error {
	if args == nil {
		args = map[string]any{}
	}
	n, err := valueset.Normalize(args)
	if err != nil {
		return changeErr(t.name, TagEmit, ErrInvalidChange, "%v", err)
	}
	return t.applyExternal(&EventEmit{changeBase: t.newBase(), Args: n})
}

func (t *EventTopic) OnEmit(fn func(args any)) func() {
	return t.emitListeners.add(fn)
}

func (t *EventTopic) notify(c Change, _, _ struct{}) {
	if e, ok := c.(*EventEmit); ok {
		t.emitListeners.each(func(fn func(any)) { fn(valueset.Clone(e.Args)) })
	}
}

// EventEmit delivers Args to the listeners of an event topic. It cannot be
// inverted.
type EventEmit struct {
	changeBase
	Args any
}

func (c *EventEmit) Tag() string { return TagEmit }

func (c *EventEmit) apply(_ Topic, old struct{}) (struct{}, error) {
	return old, nil
}

func (c *EventEmit) Serialize() ChangeDict {
	d := c.dict(TagEmit)
	d["args"] = valueset.Clone(c.Args)
	return d
}

func (c *EventEmit) Inverse() (Change, error) {
	return nil, c.fail(TagEmit, ErrNotInvertible, "change %s", c.id)
}

func decodeEventEmit(base changeBase, r *dictReader) Change {
	var args any = map[string]any{}
	if r.has("args") {
		args = r.value("args")
	}
	return &EventEmit{changeBase: base, Args: args}
}
