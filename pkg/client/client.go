package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vango-dev/topicsync/pkg/protocol"
	"github.com/vango-dev/topicsync/pkg/topicsync"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Client errors.
var (
	ErrClosed         = errors.New("client: closed")
	ErrAlreadyRunning = errors.New("client: already running")
	ErrNoService      = errors.New("client: no such service")
)

// Client is the client end of one topicsync connection.
type Client struct {
	conn    Conn
	config  Config
	logger  *slog.Logger
	codec   *protocol.Codec
	ids     *topicsync.IDAllocator
	m       *topicsync.StateManager
	metrics *metrics
	tracer  trace.Tracer

	inbound    chan protocol.Message
	dispatchCh chan func()
	done       chan struct{}
	closeOnce  sync.Once
	closed     atomic.Bool
	running    atomic.Bool

	// loopCtx parents the spans started on the event loop.
	loopCtx context.Context

	connected chan struct{}

	writeMu sync.Mutex

	errMu sync.Mutex
	err   error

	requests *xsync.MapOf[string, chan any]
	services *xsync.MapOf[string, Service]

	// onConnectMu guards onConnect and isConnected; connected is closed
	// under it.
	onConnectMu sync.Mutex
	onConnect   []func(clientID string)
	isConnected bool
}

// New creates a client over conn. Call Run to start it.
func New(conn Conn, opts ...Option) *Client {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}

	c := &Client{
		conn:       conn,
		config:     config,
		logger:     config.Logger.With("component", "client"),
		codec:      protocol.NewCodec(config.Limits),
		ids:        topicsync.NewIDAllocator(),
		metrics:    newMetrics(config.Registry, config.Namespace),
		tracer:     otel.Tracer(config.TracerName),
		inbound:    make(chan protocol.Message, config.QueueSize),
		dispatchCh: make(chan func(), config.QueueSize),
		done:       make(chan struct{}),
		loopCtx:    context.Background(),
		connected:  make(chan struct{}),
		requests:   xsync.NewMapOf[string, chan any](),
		services:   xsync.NewMapOf[string, Service](),
	}
	c.m = topicsync.NewStateManager(
		topicsync.WithLogger(config.Logger),
		topicsync.WithIDAllocator(c.ids),
		topicsync.WithActionProduced(c.sendAction),
		topicsync.WithActionFailed(c.actionFailed),
		topicsync.WithRollbackHook(c.rolledBack),
	)
	return c
}

// StateManager returns the state manager. It must only be used on the event
// loop, from Do, Dispatch or topic listeners.
func (c *Client) StateManager() *topicsync.StateManager { return c.m }

// ClientID returns the id assigned by the server, or "0" before the
// handshake.
func (c *Client) ClientID() string { return c.ids.ClientID() }

// Connected is closed once the server handshake has been received.
func (c *Client) Connected() <-chan struct{} { return c.connected }

// Done is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the error that stopped the client, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// =============================================================================
// Loops
// =============================================================================

// Run reads from the connection and runs the event loop until ctx is
// cancelled, the connection fails or Close is called. It closes the client
// before returning.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	c.loopCtx = ctx
	defer c.Close()

	go c.readLoop()

	for {
		select {
		case msg := <-c.inbound:
			c.handleMessage(msg)

		case fn := <-c.dispatchCh:
			c.executeDispatch(fn)

		case <-ctx.Done():
			return ctx.Err()

		case <-c.done:
			return c.Err()
		}
	}
}

// readLoop decodes messages from the connection and queues them for the
// event loop.
func (c *Client) readLoop() {
	defer c.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() && !isNormalClose(err) {
				c.logger.Error("read error", "error", err)
				c.setErr(fmt.Errorf("client: read: %w", err))
			}
			return
		}

		msg, err := c.codec.Decode(data)
		if err != nil {
			c.metrics.decodeErrors.WithLabelValues("envelope").Inc()
			c.logger.Warn("dropping invalid message", "error", err, "bytes", len(data))
			continue
		}
		if !msg.Type().Inbound() {
			c.metrics.decodeErrors.WithLabelValues("direction").Inc()
			c.logger.Warn("dropping message not meant for clients", "type", msg.Type())
			continue
		}
		c.metrics.messagesReceived.WithLabelValues(string(msg.Type())).Inc()

		select {
		case c.inbound <- msg:
		case <-c.done:
			return
		}
	}
}

// Dispatch queues fn to run on the event loop and returns at once. fn is
// dropped if the client is closed or the queue is full.
func (c *Client) Dispatch(fn func()) {
	if c.closed.Load() {
		return
	}
	select {
	case c.dispatchCh <- fn:
	case <-c.done:
	default:
		c.logger.Warn("dispatch queue full, discarding callback")
	}
}

func (c *Client) dispatch(ctx context.Context, fn func()) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case c.dispatchCh <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// executeDispatch runs fn on the event loop, recovering panics.
func (c *Client) executeDispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("dispatch panic", "panic", r, "stack", string(debug.Stack()))
		}
		c.metrics.previewDepth.Set(float64(c.m.PreviewLen()))
	}()
	fn()
}

// Do runs fn on the event loop and waits for its result. It must not be
// called from the event loop itself.
func (c *Client) Do(ctx context.Context, fn func(m *topicsync.StateManager) error) error {
	res := make(chan error, 1)
	run := func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("panic in Do", "panic", r, "stack", string(debug.Stack()))
				res <- fmt.Errorf("client: panic: %v", r)
			}
		}()
		res <- fn(c.m)
	}
	if err := c.dispatch(ctx, run); err != nil {
		return err
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// Record runs fn as one action on the event loop and waits for it.
func (c *Client) Record(ctx context.Context, fn func() error, opts ...topicsync.RecordOption) error {
	return c.Do(ctx, func(m *topicsync.StateManager) error {
		_, span := c.startSpan(ctx, "record")
		err := m.Record(fn, opts...)
		c.endSpan(span, err)
		return err
	})
}

// =============================================================================
// Subscriptions
// =============================================================================

// Subscribe registers a topic and asks the server for it. The topic is
// initialized when the server's snapshot arrives.
func (c *Client) Subscribe(ctx context.Context, name string, kind topicsync.Kind) (topicsync.Topic, error) {
	var topic topicsync.Topic
	err := c.Do(ctx, func(m *topicsync.StateManager) error {
		t, err := m.AddSubscription(name, kind)
		if err != nil {
			return err
		}
		if err := c.send(&protocol.Subscribe{TopicName: name, TopicType: string(kind)}); err != nil {
			m.RemoveSubscription(name)
			return err
		}
		topic = t
		return nil
	})
	return topic, err
}

// SubscribeAs is Subscribe returning the concrete topic type, such as
// *topicsync.ListTopic.
func SubscribeAs[T topicsync.Topic](ctx context.Context, c *Client, name string, kind topicsync.Kind) (T, error) {
	var zero T
	t, err := c.Subscribe(ctx, name, kind)
	if err != nil {
		return zero, err
	}
	typed, ok := t.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q is a %s topic", topicsync.ErrWrongTopicType, name, kind)
	}
	return typed, nil
}

// Unsubscribe removes a topic and tells the server, unless the topic was
// only local.
func (c *Client) Unsubscribe(ctx context.Context, name string) error {
	return c.Do(ctx, func(m *topicsync.StateManager) error {
		if !m.RemoveSubscription(name) {
			return nil
		}
		return c.send(&protocol.Unsubscribe{TopicName: name})
	})
}

// OnConnect registers fn to run on the event loop after the server
// handshake, with the assigned client id. If the handshake has already
// happened, fn is dispatched at once.
func (c *Client) OnConnect(fn func(clientID string)) {
	c.onConnectMu.Lock()
	c.onConnect = append(c.onConnect, fn)
	connected := c.isConnected
	c.onConnectMu.Unlock()

	if connected {
		c.Dispatch(func() { fn(c.ids.ClientID()) })
	}
}

// =============================================================================
// Outbound
// =============================================================================

// send encodes msg and writes it to the connection. It is safe to call from
// any goroutine.
func (c *Client) send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	if d, ok := c.conn.(writeDeadliner); ok && c.config.WriteTimeout > 0 {
		_ = d.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("client: write %s: %w", msg.Type(), err)
	}
	c.metrics.messagesSent.WithLabelValues(string(msg.Type())).Inc()
	c.logger.Debug("sent message", "type", msg.Type(), "bytes", len(data))
	return nil
}

// sendAction ships a recorded action. The StateManager calls it on the
// event loop.
func (c *Client) sendAction(changes []topicsync.Change, actionID string) {
	commands := make([]protocol.ChangeDict, len(changes))
	for i, ch := range changes {
		commands[i] = ch.Serialize()
	}
	if err := c.send(&protocol.Action{Commands: commands, ActionID: actionID}); err != nil {
		c.logger.Error("sending action", "action", actionID, "error", err)
		return
	}
	c.metrics.actionsSent.Inc()
}

func (c *Client) actionFailed(err error) {
	c.metrics.actionsFailed.Inc()
	c.logger.Warn("action aborted", "error", err)
}

func (c *Client) rolledBack(reason string, n int) {
	c.metrics.rollbacks.WithLabelValues(reason).Inc()
	c.metrics.rolledBack.Add(float64(n))
}

// =============================================================================
// Inbound
// =============================================================================

func (c *Client) handleMessage(msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("message handler panic", "type", msg.Type(), "panic", r, "stack", string(debug.Stack()))
		}
		c.metrics.previewDepth.Set(float64(c.m.PreviewLen()))
	}()

	switch m := msg.(type) {
	case *protocol.Hello:
		c.handleHello(m)
	case *protocol.Update:
		c.handleUpdate(m)
	case *protocol.Reject:
		c.handleReject(m)
	case *protocol.Init:
		c.handleInit(m)
	case *protocol.Request:
		c.handleRequest(m)
	case *protocol.Response:
		c.handleResponse(m)
	default:
		c.logger.Warn("unhandled message", "type", msg.Type())
	}
}

func (c *Client) handleHello(h *protocol.Hello) {
	id := h.ClientID()
	c.ids.SetClientID(id)
	c.logger.Info("connected", "client_id", id)

	// Callbacks registered after the copy see isConnected and dispatch
	// themselves, so each runs once.
	c.onConnectMu.Lock()
	if !c.isConnected {
		c.isConnected = true
		close(c.connected)
	}
	callbacks := slices.Clone(c.onConnect)
	c.onConnectMu.Unlock()
	for _, fn := range callbacks {
		fn(id)
	}
}

func (c *Client) handleUpdate(u *protocol.Update) {
	_, span := c.startSpan(c.loopCtx, "update",
		attribute.String("topicsync.action_id", u.ActionID),
		attribute.Int("topicsync.changes", len(u.Changes)),
	)

	changes := make([]topicsync.Change, 0, len(u.Changes))
	for _, d := range u.Changes {
		ch, err := c.m.DecodeChange(topicsync.ChangeDict(d))
		if err != nil {
			if errors.Is(err, topicsync.ErrUnknownTopic) {
				c.logger.Debug("update for unknown topic", "topic", topicsync.ChangeDict(d).Name())
				continue
			}
			c.metrics.decodeErrors.WithLabelValues("change").Inc()
			c.logger.Error("dropping undecodable change", "error", err)
			continue
		}
		changes = append(changes, ch)
	}

	err := c.m.HandleUpdate(changes, u.ActionID)
	if err != nil {
		c.logger.Error("applying update", "action", u.ActionID, "error", err)
	}
	c.endSpan(span, err)
}

func (c *Client) handleReject(r *protocol.Reject) {
	_, span := c.startSpan(c.loopCtx, "reject", attribute.String("topicsync.reason", r.Reason))
	c.metrics.rejects.Inc()
	err := c.m.HandleReject(r.Reason)
	if err != nil {
		c.logger.Error("rolling back rejected action", "error", err)
	}
	c.endSpan(span, err)
}

func (c *Client) handleInit(i *protocol.Init) {
	_, span := c.startSpan(c.loopCtx, "init", attribute.String("topicsync.topic", i.TopicName))
	err := c.m.HandleInit(i.TopicName, i.Value)
	if err != nil {
		c.logger.Warn("initializing topic", "topic", i.TopicName, "error", err)
	}
	c.endSpan(span, err)
}

// Close stops the client and closes the connection. Pending requests fail
// with ErrClosed. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)

		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
