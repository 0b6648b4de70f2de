package topicsync

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type sentAction struct {
	id      string
	changes []Change
}

type harness struct {
	m         *StateManager
	sent      []sentAction
	failed    []error
	rollbacks []string
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{}
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithActionProduced(func(changes []Change, actionID string) {
			h.sent = append(h.sent, sentAction{id: actionID, changes: changes})
		}),
		WithActionFailed(func(err error) { h.failed = append(h.failed, err) }),
		WithRollbackHook(func(reason string, n int) { h.rollbacks = append(h.rollbacks, reason) }),
	}, opts...)
	h.m = NewStateManager(opts...)
	return h
}

func subscribe[T Topic](t *testing.T, h *harness, name string, kind Kind, initial any) T {
	t.Helper()
	_, err := h.m.AddSubscription(name, kind)
	require.NoError(t, err)
	require.NoError(t, h.m.HandleInit(name, initial))
	topic, err := GetTopic[T](h.m, name)
	require.NoError(t, err)
	return topic
}

// echo sends changes through JSON and decodes them again, the way the server
// would send them back.
func echo(t *testing.T, m *StateManager, changes []Change) []Change {
	t.Helper()
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		buf, err := json.Marshal(c.Serialize())
		require.NoError(t, err)
		var d ChangeDict
		require.NoError(t, json.Unmarshal(buf, &d))
		decoded, err := m.DecodeChange(d)
		require.NoError(t, err)
		out = append(out, decoded)
	}
	return out
}

func (h *harness) lastAction(t *testing.T) sentAction {
	t.Helper()
	require.NotEmpty(t, h.sent, "no action was sent")
	return h.sent[len(h.sent)-1]
}
