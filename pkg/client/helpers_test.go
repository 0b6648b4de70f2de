package client

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/vango-dev/topicsync/pkg/protocol"
	"github.com/vango-dev/topicsync/pkg/topicsync"
)

// fakeConn is an in-memory Conn. The test plays the server through toClient
// and fromClient.
type fakeConn struct {
	toClient   chan []byte
	fromClient chan []byte
	closed     chan struct{}
	once       sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		toClient:   make(chan []byte, 64),
		fromClient: make(chan []byte, 64),
		closed:     make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.toClient:
		return 1, data, nil
	case <-f.closed:
		return 0, nil, net.ErrClosed
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	f.fromClient <- append([]byte(nil), data...)
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

const waitTimeout = 2 * time.Second

type testServer struct {
	t    *testing.T
	conn *fakeConn
}

func (s *testServer) send(msg protocol.Message) {
	s.t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(s.t, err)
	s.conn.toClient <- data
}

func (s *testServer) sendRaw(data string) {
	s.conn.toClient <- []byte(data)
}

// expect waits for the next message from the client and checks its type.
func (s *testServer) expect(want protocol.MessageType) protocol.Message {
	s.t.Helper()
	select {
	case data := <-s.conn.fromClient:
		msg, err := protocol.Decode(data)
		require.NoError(s.t, err)
		require.Equal(s.t, want, msg.Type(), "got %s", data)
		return msg
	case <-time.After(waitTimeout):
		s.t.Fatalf("timed out waiting for %s", want)
		return nil
	}
}

func (s *testServer) expectNothing() {
	s.t.Helper()
	select {
	case data := <-s.conn.fromClient:
		s.t.Fatalf("unexpected message %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

type fixture struct {
	c   *Client
	srv *testServer
	reg *prometheus.Registry
}

// startClient runs a client over a fake connection and completes the
// handshake with client id "7".
func startClient(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	conn := newFakeConn()
	reg := prometheus.NewRegistry()
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRegistry(reg),
	}, opts...)
	c := New(conn, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-runErr:
		case <-time.After(waitTimeout):
			t.Error("client did not stop")
		}
	})

	srv := &testServer{t: t, conn: conn}
	srv.send(&protocol.Hello{ID: "7"})
	select {
	case <-c.Connected():
	case <-time.After(waitTimeout):
		t.Fatal("handshake not processed")
	}
	return &fixture{c: c, srv: srv, reg: reg}
}

// waitInit waits until topic has received its snapshot.
func waitInit(t *testing.T, f *fixture, topic topicsync.Topic) {
	t.Helper()
	require.Eventually(t, func() bool {
		var ok bool
		_ = f.c.Do(context.Background(), func(*topicsync.StateManager) error {
			ok = topic.Initialized()
			return nil
		})
		return ok
	}, waitTimeout, 10*time.Millisecond)
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}
