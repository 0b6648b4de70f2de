package topicsync

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// PreviewItem is a locally applied change waiting for the server, tagged
// with the id of the action that produced it.
type PreviewItem struct {
	ActionID string
	Change   Change
}

// Option configures a StateManager.
type Option func(*StateManager)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *StateManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithIDAllocator shares an id allocator, typically one whose client id is
// set by the connection handshake.
func WithIDAllocator(a *IDAllocator) Option {
	return func(m *StateManager) {
		if a != nil {
			m.ids = a
		}
	}
}

// WithActionProduced sets the function that ships a finished action to the
// server. It receives every top-level change of the action, in order.
func WithActionProduced(fn func(changes []Change, actionID string)) Option {
	return func(m *StateManager) {
		m.onActionProduced = fn
	}
}

// WithActionFailed sets a function called when a non-pretend action is
// aborted because its callback failed.
func WithActionFailed(fn func(err error)) Option {
	return func(m *StateManager) {
		m.onActionFailed = fn
	}
}

// WithRollbackHook sets a function called before every rollback with its
// reason ("abort", "mismatch", "stale", "reject" or "pretend") and the number
// of changes undone.
func WithRollbackHook(fn func(reason string, n int)) Option {
	return func(m *StateManager) {
		m.onRollback = fn
	}
}

// RecordOption configures a single Record call.
type RecordOption func(*recordOptions)

type recordOptions struct {
	pretend bool
}

// Pretend makes the action local: its changes are applied but never sent,
// and ClearPretendedChanges undoes them.
func Pretend() RecordOption {
	return func(o *recordOptions) {
		o.pretend = true
	}
}

// StateManager owns the topics of one client and coordinates every change to
// them.
//
// Local changes are grouped into actions and applied speculatively. The
// applied changes wait in a FIFO preview queue until the server echoes them.
// An echo whose change ids match the queue head confirms the guess; anything
// else rolls back the queue in reverse order before the server's change is
// applied. This relies on the server echoing actions in the order they were
// sent.
//
// At most one transition (a recorded action, an update, a reject, or a
// clear) runs at a time. Record, HandleUpdate, HandleReject, HandleInit and
// ClearPretendedChanges called while another transition runs are queued and
// run after it; their errors are logged.
//
// A StateManager is not safe for concurrent use.
type StateManager struct {
	logger *slog.Logger
	ids    *IDAllocator
	topics map[string]Topic

	allPreview   []PreviewItem
	allPretended []PreviewItem

	recordingPreview []PreviewItem
	recordingAction  []Change
	actionID         string

	recording    bool
	pretending   bool
	inTransition bool
	blocked      bool

	// stack holds the names of the topics whose changes are being applied,
	// outermost first.
	stack []string

	toDetach        []Topic
	afterTransition []func()
	pending         []func()

	onActionProduced func(changes []Change, actionID string)
	onActionFailed   func(err error)
	onRollback       func(reason string, n int)
}

// NewStateManager creates an empty StateManager.
func NewStateManager(opts ...Option) *StateManager {
	m := &StateManager{
		logger: slog.Default(),
		ids:    NewIDAllocator(),
		topics: make(map[string]Topic),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "topicsync")
	return m
}

// IDs returns the id allocator.
func (m *StateManager) IDs() *IDAllocator { return m.ids }

func (m *StateManager) IsRecording() bool  { return m.recording }
func (m *StateManager) IsPretending() bool { return m.pretending }

// InTransition reports whether a transition is running.
func (m *StateManager) InTransition() bool { return m.inTransition }

// PreviewLen returns the number of changes waiting for the server.
func (m *StateManager) PreviewLen() int { return len(m.allPreview) }

// PretendedLen returns the number of pretended changes not yet cleared.
func (m *StateManager) PretendedLen() int { return len(m.allPretended) }

// Previews returns a copy of the preview queue, oldest first.
func (m *StateManager) Previews() []PreviewItem { return slices.Clone(m.allPreview) }

// =============================================================================
// Topic registry
// =============================================================================

// Topic returns the registered topic called name.
func (m *StateManager) Topic(name string) (Topic, bool) {
	t, ok := m.topics[name]
	return t, ok
}

func (m *StateManager) HasTopic(name string) bool {
	_, ok := m.topics[name]
	return ok
}

// Topics returns the registered topic names in sorted order.
func (m *StateManager) Topics() []string {
	return slices.Sorted(maps.Keys(m.topics))
}

// GetTopic returns the topic called name as a T, such as *StringTopic.
func GetTopic[T Topic](m *StateManager, name string) (T, error) {
	var zero T
	t, ok := m.topics[name]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrUnknownTopic, name)
	}
	typed, ok := t.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q is a %s topic", ErrWrongTopicType, name, t.Kind())
	}
	return typed, nil
}

// AddSubscription creates and registers a topic. The caller is responsible
// for telling the server.
func (m *StateManager) AddSubscription(name string, kind Kind) (Topic, error) {
	if _, ok := m.topics[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrTopicExists, name)
	}
	t, err := newTopic(m, name, kind)
	if err != nil {
		return nil, err
	}
	m.topics[name] = t
	return t, nil
}

// RemoveSubscription unregisters a topic. The topic is detached once the
// running transition finishes, or at once if none is running. It reports
// whether the server has to be told, which is false for unknown and
// pretended topics.
func (m *StateManager) RemoveSubscription(name string) bool {
	t, ok := m.topics[name]
	if !ok {
		return false
	}
	delete(m.topics, name)
	m.detach(t)
	return !t.Pretended()
}

// AddPretendedTopic registers a local-only topic, replacing any topic of the
// same name. It is initialized at once.
func (m *StateManager) AddPretendedTopic(name string, kind Kind) (Topic, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if old, ok := m.topics[name]; ok {
		delete(m.topics, name)
		m.detach(old)
	}
	t, err := m.AddSubscription(name, kind)
	if err != nil {
		return nil, err
	}
	t.setPretended()
	t.markInitialized()
	return t, nil
}

// RemovePretendedTopic unregisters a topic created by AddPretendedTopic.
func (m *StateManager) RemovePretendedTopic(name string) error {
	t, ok := m.topics[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, name)
	}
	if !t.Pretended() {
		return fmt.Errorf("%w: %q", ErrNotPretended, name)
	}
	delete(m.topics, name)
	m.detach(t)
	return nil
}

func (m *StateManager) detach(t Topic) {
	if m.inTransition {
		m.toDetach = append(m.toDetach, t)
		return
	}
	t.setDetached()
}

// DecodeChange decodes a change for a registered topic.
func (m *StateManager) DecodeChange(d ChangeDict) (Change, error) {
	name := d.Name()
	t, ok := m.topics[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, name)
	}
	return t.DeserializeChange(d)
}

// =============================================================================
// Transitions
// =============================================================================

// DoAfterTransitionFinish runs fn once the running transition finishes, or
// at once if none is running.
func (m *StateManager) DoAfterTransitionFinish(fn func()) {
	if m.inTransition {
		m.afterTransition = append(m.afterTransition, fn)
		return
	}
	fn()
}

// deferTransition queues a transition that was requested while another one runs.
func (m *StateManager) deferTransition(what string, fn func() error) {
	m.logger.Debug("transition deferred", "transition", what)
	m.pending = append(m.pending, func() {
		if err := fn(); err != nil {
			m.logger.Warn("deferred transition failed", "transition", what, "error", err)
		}
	})
}

func (m *StateManager) transition(fn func() error) error {
	m.inTransition = true
	defer m.finishTransition()
	return fn()
}

func (m *StateManager) finishTransition() {
	m.inTransition = false

	for _, t := range m.toDetach {
		t.setDetached()
	}
	m.toDetach = nil

	tasks := m.afterTransition
	m.afterTransition = nil
	for _, fn := range tasks {
		fn()
	}

	for len(m.pending) > 0 && !m.inTransition {
		next := m.pending[0]
		m.pending = m.pending[1:]
		next()
	}
}

// withBlocked runs fn with ApplyChange disabled, so that listeners reacting
// to a rollback or a server change cannot record new changes.
func (m *StateManager) withBlocked(fn func() error) error {
	if m.blocked {
		return fn()
	}
	m.blocked = true
	defer func() { m.blocked = false }()
	return fn()
}

// Record runs fn as one atomic action.
//
// Every change made by fn joins the action. Unless preview is disabled for
// it, a change is applied immediately. If fn returns an error or panics, the
// applied changes are undone newest first, the action is discarded and the
// error is returned (or the panic continues). Otherwise the applied changes
// join the preview queue and the action is handed to the function set by
// WithActionProduced; with Pretend they are kept locally instead.
//
// Inside another Record, fn runs as part of the enclosing action and opts are
// ignored. While a different transition runs, the call is queued and Record
// returns nil.
func (m *StateManager) Record(fn func() error, opts ...RecordOption) error {
	if m.recording {
		return fn()
	}
	if m.inTransition {
		m.deferTransition("record", func() error { return m.Record(fn, opts...) })
		return nil
	}
	var o recordOptions
	for _, opt := range opts {
		opt(&o)
	}
	return m.transition(func() error { return m.record(fn, o) })
}

func (m *StateManager) record(fn func() error, o recordOptions) (err error) {
	m.recording = true
	m.pretending = o.pretend
	m.actionID = m.ids.Next()
	actionID := m.actionID

	defer func() {
		r := recover()
		preview, action := m.recordingPreview, m.recordingAction

		if r == nil && err == nil {
			m.resetRecording()
			if o.pretend {
				m.allPretended = append(m.allPretended, preview...)
				return
			}
			m.allPreview = append(m.allPreview, preview...)
			if len(action) > 0 && m.onActionProduced != nil {
				m.onActionProduced(action, actionID)
			}
			return
		}

		cause := err
		if r != nil {
			cause = fmt.Errorf("topicsync: action panicked: %v", r)
		}
		undoErr := m.rollback("abort", preview)
		m.resetRecording()
		if undoErr != nil {
			m.logger.Error("undoing failed action", "action", actionID, "error", undoErr)
			err = errors.Join(err, undoErr)
		}
		if !o.pretend && m.onActionFailed != nil {
			m.onActionFailed(cause)
		}
		if r != nil {
			panic(r)
		}
	}()

	return fn()
}

func (m *StateManager) resetRecording() {
	m.recordingPreview = nil
	m.recordingAction = nil
	m.recording = false
	m.pretending = false
	m.actionID = ""
	m.stack = m.stack[:0]
}

// ApplyChange is the single entry point for local changes; topic mutators
// call it. Outside Record it records an action holding just c.
//
// With preview, c is applied at once. A change to a topic whose change is
// already being applied further up the call stack is dropped, which breaks
// listener cycles. So are changes made while a rollback or a server update is
// being applied. Only changes made directly inside Record, not those made by
// listeners, join the action sent to the server.
func (m *StateManager) ApplyChange(c Change, preview bool) error {
	if m.blocked {
		m.logger.Debug("change dropped during rollback or update", "topic", c.TopicName(), "change", c.Tag())
		return nil
	}
	if !m.recording {
		return m.Record(func() error { return m.ApplyChange(c, preview) })
	}
	if slices.Contains(m.stack, c.TopicName()) {
		m.logger.Debug("reentrant change dropped", "topic", c.TopicName(), "change", c.Tag())
		return nil
	}

	topLevel := len(m.stack) == 0
	if preview {
		if err := m.previewChange(c); err != nil {
			return err
		}
	}
	if topLevel {
		m.recordingAction = append(m.recordingAction, c)
	}
	return nil
}

func (m *StateManager) previewChange(c Change) error {
	m.stack = append(m.stack, c.TopicName())
	defer func() { m.stack = m.stack[:len(m.stack)-1] }()

	mark := len(m.recordingPreview)
	m.recordingPreview = append(m.recordingPreview, PreviewItem{ActionID: m.actionID, Change: c})
	if err := m.execute(c); err != nil {
		// c was not applied, but listeners may have applied changes above it.
		above := slices.Clone(m.recordingPreview[mark+1:])
		m.recordingPreview = m.recordingPreview[:mark]
		if undoErr := m.undo(above); undoErr != nil {
			return errors.Join(err, undoErr)
		}
		return err
	}
	return nil
}

func (m *StateManager) execute(c Change) error {
	t, ok := c.Topic()
	if !ok {
		return changeErr(c.TopicName(), c.Tag(), ErrUnknownTopic, "change %s", c.ID())
	}
	return t.applyChange(c)
}

// undo applies the inverses of items newest first. Emits are skipped, as are
// changes whose topic has been removed. The first failure stops the undo.
func (m *StateManager) undo(items []PreviewItem) error {
	return m.withBlocked(func() error {
		for i := len(items) - 1; i >= 0; i-- {
			c := items[i].Change
			if c.TopicKind() == KindEvent {
				continue
			}
			if !m.HasTopic(c.TopicName()) {
				m.logger.Debug("skipping undo for removed topic", "topic", c.TopicName())
				continue
			}
			inv, err := c.Inverse()
			if err != nil {
				return err
			}
			if err := m.execute(inv); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *StateManager) rollback(reason string, items []PreviewItem) error {
	if len(items) == 0 {
		return nil
	}
	m.logger.Debug("rolling back", "reason", reason, "changes", len(items))
	if m.onRollback != nil {
		m.onRollback(reason, len(items))
	}
	return m.undo(items)
}

// rollbackPreview undoes and empties the whole preview queue.
func (m *StateManager) rollbackPreview(reason string) error {
	items := m.allPreview
	m.allPreview = nil
	return m.rollback(reason, items)
}

// HandleUpdate reconciles an update from the server with the preview queue.
//
// Changes are taken in order. A change whose action and change id match the
// head of the queue confirms it and is dropped. Any other change first rolls
// back the whole queue and is then applied. Changes for topics that are no
// longer registered are skipped. Preview items of actionID left over at the
// end are stale and roll back the whole queue.
func (m *StateManager) HandleUpdate(changes []Change, actionID string) error {
	if m.inTransition {
		m.deferTransition("update", func() error { return m.HandleUpdate(changes, actionID) })
		return nil
	}
	return m.transition(func() error {
		return m.withBlocked(func() error {
			for _, c := range changes {
				if !m.HasTopic(c.TopicName()) {
					continue
				}
				if len(m.allPreview) > 0 {
					head := m.allPreview[0]
					if head.ActionID == actionID && head.Change.ID() == c.ID() {
						m.allPreview = m.allPreview[1:]
						continue
					}
					if err := m.rollbackPreview("mismatch"); err != nil {
						return err
					}
				}
				if err := m.execute(c); err != nil {
					return err
				}
			}
			if len(m.allPreview) > 0 && m.allPreview[0].ActionID == actionID {
				return m.rollbackPreview("stale")
			}
			return nil
		})
	})
}

// HandleReject undoes every change in the preview queue after the server
// rejected an action.
func (m *StateManager) HandleReject(reason string) error {
	if m.inTransition {
		m.deferTransition("reject", func() error { return m.HandleReject(reason) })
		return nil
	}
	return m.transition(func() error {
		m.logger.Info("action rejected by server", "reason", reason, "preview", len(m.allPreview))
		return m.rollbackPreview("reject")
	})
}

// HandleInit sets the initial value of a subscribed topic from the server's
// snapshot. The value is not recorded and bypasses validators. OnInit
// listeners run afterwards; changes they make are recorded once the
// transition finishes.
//
// Changes to the topic that are still previewed or pretended were made
// against the old value, so the queues holding them are rolled back first.
// The server's echo of those actions then applies on top of the snapshot.
func (m *StateManager) HandleInit(name string, value any) error {
	if m.inTransition {
		m.deferTransition("init", func() error { return m.HandleInit(name, value) })
		return nil
	}
	return m.transition(func() error {
		t, ok := m.topics[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTopic, name)
		}
		err := m.withBlocked(func() error {
			if touches(m.allPretended, name) {
				items := m.allPretended
				m.allPretended = nil
				if err := m.rollback("init", items); err != nil {
					return err
				}
			}
			if touches(m.allPreview, name) {
				if err := m.rollbackPreview("init"); err != nil {
					return err
				}
			}
			return t.initialize(value)
		})
		if err != nil {
			return err
		}
		t.markInitialized()
		return nil
	})
}

// touches reports whether any item changes the topic called name.
func touches(items []PreviewItem, name string) bool {
	return slices.ContainsFunc(items, func(p PreviewItem) bool {
		return p.Change.TopicName() == name
	})
}

// ClearPretendedChanges undoes every pretended change, newest first.
func (m *StateManager) ClearPretendedChanges() error {
	if m.recording {
		return ErrRecording
	}
	if m.inTransition {
		m.deferTransition("clear pretended", m.ClearPretendedChanges)
		return nil
	}
	return m.transition(func() error {
		items := m.allPretended
		m.allPretended = nil
		return m.rollback("pretend", items)
	})
}
