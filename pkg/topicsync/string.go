package topicsync

import (
	"errors"

	"github.com/google/uuid"
	"github.com/vango-dev/topicsync/pkg/textot"
)

// StringTopic holds text edited with versioned positional inserts and
// deletes.
//
// The version is an opaque token that every insert or delete advances. An
// edit names the version it was made against and fails with
// ErrVersionMismatch if the topic has moved on, so an edit is never spliced
// into text it was not computed for. Positions count code points.
type StringTopic struct {
	topicBase[string]
	version string

	insertListeners listeners[func(pos int, text string)]
	deleteListeners listeners[func(pos int, text string)]
}

func newStringTopic(m *StateManager, name string) *StringTopic {
	t := &StringTopic{version: name + "_init"}
	t.setup(m, t, name, KindString, stringCodec, "", map[string]decoder{
		TagSet:    decodeSet(stringCodec),
		TagInsert: decodeStringInsert,
		TagDelete: decodeStringDelete,
	})
	t.granular = t.notify
	return t
}

// Value returns the current text.
func (t *StringTopic) Value() string {
	t.checkDetached("read")
	return t.value
}

// Version returns the current version token.
func (t *StringTopic) Version() string {
	return t.version
}

// Set replaces the whole text. The version is left unchanged.
func (t *StringTopic) Set(v string) error {
	return t.applyExternal(t.newSet(v))
}

// Insert inserts text at pos.
func (t *StringTopic) Insert(pos int, text string) error {
	return t.applyExternal(&StringInsert{
		changeBase:         t.newBase(),
		Position:           pos,
		Insertion:          text,
		TopicVersion:       t.version,
		ResultTopicVersion: uuid.NewString(),
	})
}

// Delete removes text, which must appear at pos.
func (t *StringTopic) Delete(pos int, text string) error {
	return t.applyExternal(&StringDelete{
		changeBase:         t.newBase(),
		Position:           pos,
		Deletion:           text,
		TopicVersion:       t.version,
		ResultTopicVersion: uuid.NewString(),
	})
}

// OnInsert registers fn to run after text is inserted. A set is reported as
// a delete of the old text followed by an insert of the new one.
func (t *StringTopic) OnInsert(fn func(pos int, text string)) func() {
	return t.insertListeners.add(fn)
}

// OnDelete registers fn to run after text is deleted.
func (t *StringTopic) OnDelete(fn func(pos int, text string)) func() {
	return t.deleteListeners.add(fn)
}

func (t *StringTopic) notify(c Change, old, next string) {
	switch c := c.(type) {
	case *SetChange[string]:
		t.deleteListeners.each(func(fn func(int, string)) { fn(0, old) })
		t.insertListeners.each(func(fn func(int, string)) { fn(0, next) })
	case *StringInsert:
		t.insertListeners.each(func(fn func(int, string)) { fn(c.Position, c.Insertion) })
	case *StringDelete:
		t.deleteListeners.each(func(fn func(int, string)) { fn(c.Position, c.Deletion) })
	}
}

// StringInsert inserts Insertion at Position. Its inverse is the matching
// StringDelete with the version tokens swapped.
type StringInsert struct {
	changeBase
	Position           int
	Insertion          string
	TopicVersion       string
	ResultTopicVersion string
}

func (c *StringInsert) Tag() string { return TagInsert }

func (c *StringInsert) apply(target Topic, old string) (string, error) {
	st, ok := target.(*StringTopic)
	if !ok {
		return "", c.fail(TagInsert, ErrWrongTopicType, "%T", target)
	}
	if st.version != c.TopicVersion {
		return "", c.fail(TagInsert, ErrVersionMismatch, "change expects version %q, topic is at %q", c.TopicVersion, st.version)
	}
	next, err := textot.Insert(old, c.Position, c.Insertion)
	if err != nil {
		return "", c.textErr(TagInsert, err)
	}
	st.version = c.ResultTopicVersion
	return next, nil
}

func (c *StringInsert) Serialize() ChangeDict {
	d := c.dict(TagInsert)
	d["position"] = c.Position
	d["insertion"] = c.Insertion
	d["topic_version"] = c.TopicVersion
	d["result_topic_version"] = c.ResultTopicVersion
	return d
}

func (c *StringInsert) Inverse() (Change, error) {
	return &StringDelete{
		changeBase:         c.derive(),
		Position:           c.Position,
		Deletion:           c.Insertion,
		TopicVersion:       c.ResultTopicVersion,
		ResultTopicVersion: c.TopicVersion,
	}, nil
}

// StringDelete removes Deletion, which must appear at Position.
type StringDelete struct {
	changeBase
	Position           int
	Deletion           string
	TopicVersion       string
	ResultTopicVersion string
}

func (c *StringDelete) Tag() string { return TagDelete }

func (c *StringDelete) apply(target Topic, old string) (string, error) {
	st, ok := target.(*StringTopic)
	if !ok {
		return "", c.fail(TagDelete, ErrWrongTopicType, "%T", target)
	}
	if st.version != c.TopicVersion {
		return "", c.fail(TagDelete, ErrVersionMismatch, "change expects version %q, topic is at %q", c.TopicVersion, st.version)
	}
	next, err := textot.Delete(old, c.Position, c.Deletion)
	if err != nil {
		return "", c.textErr(TagDelete, err)
	}
	st.version = c.ResultTopicVersion
	return next, nil
}

func (c *StringDelete) Serialize() ChangeDict {
	d := c.dict(TagDelete)
	d["position"] = c.Position
	d["deletion"] = c.Deletion
	d["topic_version"] = c.TopicVersion
	d["result_topic_version"] = c.ResultTopicVersion
	return d
}

func (c *StringDelete) Inverse() (Change, error) {
	return &StringInsert{
		changeBase:         c.derive(),
		Position:           c.Position,
		Insertion:          c.Deletion,
		TopicVersion:       c.ResultTopicVersion,
		ResultTopicVersion: c.TopicVersion,
	}, nil
}

func (b *changeBase) textErr(tag string, err error) error {
	switch {
	case errors.Is(err, textot.ErrInvalidPosition):
		return b.fail(tag, ErrInvalidPosition, "%v", err)
	case errors.Is(err, textot.ErrDeletionMismatch):
		return b.fail(tag, ErrDeletionMismatch, "%v", err)
	default:
		return b.fail(tag, ErrInvalidChange, "%v", err)
	}
}

func decodeStringInsert(base changeBase, r *dictReader) Change {
	c := &StringInsert{
		changeBase:         base,
		Position:           r.int("position"),
		Insertion:          r.string("insertion"),
		TopicVersion:       r.string("topic_version"),
		ResultTopicVersion: r.optString("result_topic_version"),
	}
	if c.ResultTopicVersion == "" {
		c.ResultTopicVersion = uuid.NewString()
	}
	return c
}

func decodeStringDelete(base changeBase, r *dictReader) Change {
	c := &StringDelete{
		changeBase:         base,
		Position:           r.int("position"),
		Deletion:           r.string("deletion"),
		TopicVersion:       r.string("topic_version"),
		ResultTopicVersion: r.optString("result_topic_version"),
	}
	if c.ResultTopicVersion == "" {
		c.ResultTopicVersion = uuid.NewString()
	}
	return c
}
