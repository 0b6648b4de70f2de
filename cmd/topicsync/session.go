package main

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/topicsync/internal/config"
	"github.com/vango-dev/topicsync/internal/errors"
	"github.com/vango-dev/topicsync/pkg/client"
)

// session is a running client that has completed the server handshake.
type session struct {
	c      *client.Client
	reg    *prometheus.Registry
	logger *slog.Logger
	runErr chan error
}

// connect dials cfg.URL, starts the client and waits for the handshake. The
// client stops when ctx is cancelled.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*session, error) {
	writeTimeout, err := cfg.WriteTimeout()
	if err != nil {
		return nil, err
	}
	handshake, err := cfg.HandshakeDuration()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	c, err := client.Dial(ctx, cfg.URL,
		client.WithLogger(logger),
		client.WithRegistry(reg),
		client.WithQueueSize(cfg.Client.QueueSize),
		client.WithWriteTimeout(writeTimeout),
		client.WithLimits(cfg.Limits()),
	)
	if err != nil {
		return nil, errors.New("E020").
			WithDetail("Could not connect to " + cfg.URL).
			Wrap(err)
	}

	s := &session{c: c, reg: reg, logger: logger, runErr: make(chan error, 1)}
	go func() { s.runErr <- c.Run(ctx) }()

	timer := time.NewTimer(handshake)
	defer timer.Stop()

	select {
	case <-c.Connected():
	case <-timer.C:
		_ = c.Close()
		return nil, errors.New("E022").
			WithDetail("No hello from " + cfg.URL + " within " + handshake.String())
	case <-c.Done():
		return nil, errors.New("E021").Wrap(c.Err())
	case <-ctx.Done():
		_ = c.Close()
		return nil, ctx.Err()
	}

	logger.Info("connected", "url", cfg.URL, "client_id", c.ClientID())
	return s, nil
}

// subscribe subscribes to every topic in subs.
func (s *session) subscribe(ctx context.Context, subs []config.Subscription) error {
	for _, sub := range subs {
		if _, err := s.c.Subscribe(ctx, sub.Name, sub.Kind); err != nil {
			return errors.Classify(err).WithDetail("Subscribing to " + sub.Name)
		}
	}
	return nil
}

// wait blocks until the client stops and returns its error. Cancellation is
// not an error.
func (s *session) wait() error {
	err := <-s.runErr
	if err == nil || stderrors.Is(err, context.Canceled) {
		return nil
	}
	return errors.Classify(err)
}

func (s *session) close() {
	_ = s.c.Close()
}
