package client

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/vango-dev/topicsync/pkg/protocol"
)

// Service answers requests from the server. It runs on the event loop.
type Service func(args any) (any, error)

// Request calls a service on the server and waits for its response.
// It must not be called from the event loop itself, which includes services,
// topic listeners and Do callbacks. The loop reads the response, so such a
// call blocks until ctx is done.
func (c *Client) Request(ctx context.Context, service string, args any) (any, error) {
	id := uuid.NewString()
	ch := make(chan any, 1)
	c.requests.Store(id, ch)
	defer c.requests.Delete(id)

	start := time.Now()
	if err := c.send(&protocol.Request{ServiceName: service, Args: args, RequestID: id}); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		c.metrics.requestDuration.Observe(time.Since(start).Seconds())
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// RegisterService offers a service to the server under name, replacing any
// service of the same name.
func (c *Client) RegisterService(name string, svc Service) error {
	c.services.Store(name, svc)
	return c.send(&protocol.RegisterService{ServiceName: name})
}

func (c *Client) handleRequest(r *protocol.Request) {
	resp, err := c.serve(r)
	if err != nil {
		c.logger.Warn("service request failed", "service", r.ServiceName, "request", r.RequestID, "error", err)
		resp = nil
	}
	if err := c.send(&protocol.Response{RequestID: r.RequestID, Response: resp}); err != nil {
		c.logger.Error("sending response", "request", r.RequestID, "error", err)
	}
}

func (c *Client) serve(r *protocol.Request) (resp any, err error) {
	svc, ok := c.services.Load(r.ServiceName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoService, r.ServiceName)
	}
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("service panic", "service", r.ServiceName, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("client: service %q panicked: %v", r.ServiceName, p)
		}
	}()
	return svc(r.Args)
}

func (c *Client) handleResponse(r *protocol.Response) {
	ch, ok := c.requests.LoadAndDelete(r.RequestID)
	if !ok {
		c.logger.Warn("response for unknown request", "request", r.RequestID)
		return
	}
	ch <- r.Response
}
