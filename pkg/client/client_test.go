package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vango-dev/topicsync/pkg/protocol"
	"github.com/vango-dev/topicsync/pkg/topicsync"
)

func TestHandshakeSetsClientID(t *testing.T) {
	f := startClient(t)
	assert.Equal(t, "7", f.c.ClientID())
}

func TestSubscribeAndInit(t *testing.T) {
	f := startClient(t)
	ctx := ctxT(t)

	doc, err := SubscribeAs[*topicsync.StringTopic](ctx, f.c, "doc", topicsync.KindString)
	require.NoError(t, err)
	sub := f.srv.expect(protocol.TypeSubscribe).(*protocol.Subscribe)
	assert.Equal(t, &protocol.Subscribe{TopicName: "doc", TopicType: "string"}, sub)

	f.srv.send(&protocol.Init{TopicName: "doc", Value: "hello"})

	var value string
	require.Eventually(t, func() bool {
		_ = f.c.Do(ctx, func(*topicsync.StateManager) error {
			value = doc.Value()
			return nil
		})
		return value == "hello"
	}, waitTimeout, 10*time.Millisecond)

	_, err = f.c.Subscribe(ctx, "doc", topicsync.KindString)
	assert.ErrorIs(t, err, topicsync.ErrTopicExists)
}

func TestActionRoundTrip(t *testing.T) {
	f := startClient(t)
	ctx := ctxT(t)

	n, err := SubscribeAs[*topicsync.IntTopic](ctx, f.c, "n", topicsync.KindInt)
	require.NoError(t, err)
	f.srv.expect(protocol.TypeSubscribe)
	f.srv.send(&protocol.Init{TopicName: "n", Value: 10})
	waitInit(t, f, n)

	require.NoError(t, f.c.Record(ctx, func() error { return n.Add(5) }))

	action := f.srv.expect(protocol.TypeAction).(*protocol.Action)
	require.Len(t, action.Commands, 1)
	assert.Regexp(t, `^7-\d+$`, action.ActionID)
	cmd := action.Commands[0]
	assert.Equal(t, "n", cmd["topic_name"])
	assert.Equal(t, "add", cmd["type"])

	require.NoError(t, f.c.Do(ctx, func(m *topicsync.StateManager) error {
		assert.Equal(t, int64(15), n.Value())
		assert.Equal(t, 1, m.PreviewLen())
		return nil
	}))

	// The server echoes the action back.
	f.srv.send(&protocol.Update{Changes: action.Commands, ActionID: action.ActionID})
	require.Eventually(t, func() bool {
		var depth int
		_ = f.c.Do(ctx, func(m *topicsync.StateManager) error {
			depth = m.PreviewLen()
			return nil
		})
		return depth == 0
	}, waitTimeout, 10*time.Millisecond)

	require.NoError(t, f.c.Do(ctx, func(*topicsync.StateManager) error {
		assert.Equal(t, int64(15), n.Value())
		return nil
	}))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.c.metrics.actionsSent))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.c.metrics.previewDepth))
	assert.Zero(t, testutil.CollectAndCount(f.c.metrics.rollbacks))
}

func TestRejectRollsBack(t *testing.T) {
	f := startClient(t)
	ctx := ctxT(t)

	l, err := SubscribeAs[*topicsync.ListTopic](ctx, f.c, "l", topicsync.KindList)
	require.NoError(t, err)
	f.srv.expect(protocol.TypeSubscribe)
	f.srv.send(&protocol.Init{TopicName: "l", Value: []any{1, 2}})
	waitInit(t, f, l)

	require.NoError(t, f.c.Record(ctx, func() error { return l.Append(3) }))
	f.srv.expect(protocol.TypeAction)

	f.srv.send(&protocol.Reject{Reason: "denied"})
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.c.metrics.rejects) == 1
	}, waitTimeout, 10*time.Millisecond)

	require.NoError(t, f.c.Do(ctx, func(m *topicsync.StateManager) error {
		assert.Len(t, l.Value(), 2)
		assert.Zero(t, m.PreviewLen())
		return nil
	}))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.c.metrics.rollbacks.WithLabelValues("reject")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.c.metrics.rolledBack))
}

func TestActionBeforeInitConverges(t *testing.T) {
	f := startClient(t)
	ctx := ctxT(t)

	n, err := SubscribeAs[*topicsync.IntTopic](ctx, f.c, "n", topicsync.KindInt)
	require.NoError(t, err)
	f.srv.expect(protocol.TypeSubscribe)

	require.NoError(t, f.c.Record(ctx, func() error { return n.Add(5) }))
	action := f.srv.expect(protocol.TypeAction).(*protocol.Action)

	// The snapshot was taken before the server saw the action.
	f.srv.send(&protocol.Init{TopicName: "n", Value: 10})
	f.srv.send(&protocol.Update{Changes: action.Commands, ActionID: action.ActionID})

	require.Eventually(t, func() bool {
		var v int64
		_ = f.c.Do(ctx, func(*topicsync.StateManager) error {
			v = n.Value()
			return nil
		})
		return v == 15
	}, waitTimeout, 10*time.Millisecond)

	require.NoError(t, f.c.Do(ctx, func(m *topicsync.StateManager) error {
		assert.Zero(t, m.PreviewLen())
		return nil
	}))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.c.metrics.rollbacks.WithLabelValues("init")))
}

func TestFailedRecordSendsNothing(t *testing.T) {
	f := startClient(t)
	ctx := ctxT(t)

	s, err := SubscribeAs[*topicsync.SetTopic](ctx, f.c, "s", topicsync.KindSet)
	require.NoError(t, err)
	f.srv.expect(protocol.TypeSubscribe)
	f.srv.send(&protocol.Init{TopicName: "s", Value: []any{"x"}})
	waitInit(t, f, s)

	err = f.c.Record(ctx, func() error { return s.Append("x") })
	assert.ErrorIs(t, err, topicsync.ErrDuplicateItem)
	f.srv.expectNothing()
	assert.Equal(t, 1.0, testutil.ToFloat64(f.c.metrics.actionsFailed))
}

func TestUnsubscribe(t *testing.T) {
	f := startClient(t)
	ctx := ctxT(t)

	_, err := f.c.Subscribe(ctx, "a", topicsync.KindDict)
	require.NoError(t, err)
	f.srv.expect(protocol.TypeSubscribe)

	require.NoError(t, f.c.Unsubscribe(ctx, "a"))
	un := f.srv.expect(protocol.TypeUnsubscribe).(*protocol.Unsubscribe)
	assert.Equal(t, "a", un.TopicName)

	// Unknown and local topics are not reported to the server.
	require.NoError(t, f.c.Unsubscribe(ctx, "a"))
	require.NoError(t, f.c.Do(ctx, func(m *topicsync.StateManager) error {
		_, err := m.AddPretendedTopic("local", topicsync.KindInt)
		return err
	}))
	require.NoError(t, f.c.Unsubscribe(ctx, "local"))
	f.srv.expectNothing()
}

func TestInvalidMessagesAreDropped(t *testing.T) {
	f := startClient(t)

	f.srv.sendRaw(`not json`)
	f.srv.sendRaw(`{"type":"update","args":{"changes":[{"type":"set"}]}}`)
	f.srv.sendRaw(`{"type":"subscribe","args":{"topic_name":"x"}}`)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.c.metrics.decodeErrors.WithLabelValues("envelope")) == 2 &&
			testutil.ToFloat64(f.c.metrics.decodeErrors.WithLabelValues("direction")) == 1
	}, waitTimeout, 10*time.Millisecond)

	// The client keeps working.
	_, err := f.c.Subscribe(ctxT(t), "after", topicsync.KindInt)
	require.NoError(t, err)
}

func TestUpdateForUnknownTopicIsSkipped(t *testing.T) {
	f := startClient(t)
	ctx := ctxT(t)

	n, err := SubscribeAs[*topicsync.IntTopic](ctx, f.c, "n", topicsync.KindInt)
	require.NoError(t, err)
	f.srv.expect(protocol.TypeSubscribe)
	f.srv.send(&protocol.Init{TopicName: "n", Value: 1})

	f.srv.send(&protocol.Update{Changes: []protocol.ChangeDict{
		{"topic_name": "gone", "topic_type": "int", "type": "add", "id": "s-1", "value": 1},
		{"topic_name": "n", "topic_type": "int", "type": "add", "id": "s-2", "value": 2},
	}, ActionID: "s"})

	require.Eventually(t, func() bool {
		var v int64
		_ = f.c.Do(ctx, func(*topicsync.StateManager) error {
			v = n.Value()
			return nil
		})
		return v == 3
	}, waitTimeout, 10*time.Millisecond)
}

func TestOnConnect(t *testing.T) {
	f := startClient(t)

	got := make(chan string, 1)
	f.c.OnConnect(func(id string) { got <- id })

	select {
	case id := <-got:
		assert.Equal(t, "7", id)
	case <-ctxT(t).Done():
		t.Fatal("OnConnect callback not run after handshake")
	}
}

func TestOnConnectRacingHandshakeRunsOnce(t *testing.T) {
	hello, err := protocol.Encode(&protocol.Hello{ID: "7"})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		conn := newFakeConn()
		c := New(conn,
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			WithRegistry(prometheus.NewRegistry()),
		)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- c.Run(ctx) }()

		var calls atomic.Int32
		go func() { conn.toClient <- hello }()
		c.OnConnect(func(string) { calls.Add(1) })

		select {
		case <-c.Connected():
		case <-time.After(waitTimeout):
			t.Fatal("handshake not processed")
		}
		// Everything dispatched before this Do has run when it returns.
		require.NoError(t, c.Do(ctxT(t), func(*topicsync.StateManager) error { return nil }))
		assert.EqualValues(t, 1, calls.Load(), "iteration %d", i)

		cancel()
		<-done
	}
}

func TestDoPanicIsReturned(t *testing.T) {
	f := startClient(t)
	err := f.c.Do(ctxT(t), func(*topicsync.StateManager) error { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	// The loop survives.
	assert.NoError(t, f.c.Do(ctxT(t), func(*topicsync.StateManager) error { return nil }))
}

func TestClose(t *testing.T) {
	f := startClient(t)
	require.NoError(t, f.c.Close())
	require.NoError(t, f.c.Close())

	<-f.c.Done()
	err := f.c.Do(context.Background(), func(*topicsync.StateManager) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)

	_, err = f.c.Request(context.Background(), "svc", nil)
	assert.True(t, errors.Is(err, ErrClosed), "got %v", err)
}

func TestRunTwice(t *testing.T) {
	f := startClient(t)
	assert.ErrorIs(t, f.c.Run(context.Background()), ErrAlreadyRunning)
}
