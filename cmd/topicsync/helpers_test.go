package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/vango-dev/topicsync/internal/config"
	"github.com/vango-dev/topicsync/pkg/protocol"
	"github.com/vango-dev/topicsync/pkg/topicsync"
)

const waitTimeout = 2 * time.Second

// syncServer greets each connection as client "5", answers subscribe with
// the snapshot in values and echoes every action back as an update.
func syncServer(t *testing.T, values map[string]any) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		write := func(msg protocol.Message) error {
			data, err := protocol.Encode(msg)
			if err != nil {
				return err
			}
			return conn.WriteMessage(websocket.TextMessage, data)
		}
		if err := write(&protocol.Hello{ID: "5"}); err != nil {
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.Decode(data)
			if err != nil {
				return
			}
			switch m := msg.(type) {
			case *protocol.Subscribe:
				err = write(&protocol.Init{TopicName: m.TopicName, Value: values[m.TopicName]})
			case *protocol.Action:
				err = write(&protocol.Update{Changes: m.Commands, ActionID: m.ActionID})
			}
			if err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func testConfig(srv *httptest.Server, subs ...config.Subscription) *config.Config {
	cfg := config.New()
	cfg.URL = wsURL(srv)
	cfg.LogLevel = "error"
	cfg.HandshakeTimeout = "2s"
	cfg.Subscriptions = subs
	return cfg
}

// connectT connects a session to srv for the duration of the test.
func connectT(t *testing.T, srv *httptest.Server, subs ...config.Subscription) *session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s, err := connect(ctx, testConfig(srv), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(s.close)
	require.NoError(t, s.subscribe(ctx, subs))
	for _, sub := range subs {
		waitInitialized(t, s, sub.Name)
	}
	return s
}

func waitInitialized(t *testing.T, s *session, name string) {
	t.Helper()
	require.Eventually(t, func() bool {
		var ok bool
		_ = s.c.Do(context.Background(), func(m *topicsync.StateManager) error {
			tp, found := m.Topic(name)
			ok = found && tp.Initialized()
			return nil
		})
		return ok
	}, waitTimeout, 10*time.Millisecond)
}

// waitSettled waits until no change is waiting for the server.
func waitSettled(t *testing.T, s *session) {
	t.Helper()
	require.Eventually(t, func() bool {
		depth := -1
		_ = s.c.Do(context.Background(), func(m *topicsync.StateManager) error {
			depth = m.PreviewLen()
			return nil
		})
		return depth == 0
	}, waitTimeout, 10*time.Millisecond)
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
