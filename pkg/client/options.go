package client

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/topicsync/pkg/protocol"
)

// Config configures a Client.
type Config struct {
	// Logger receives client logs. Default: slog.Default().
	Logger *slog.Logger

	// Registry receives the client metrics. Default: a private registry, so
	// that several clients in one process do not collide.
	Registry prometheus.Registerer

	// Namespace is the metrics namespace (default: "topicsync").
	Namespace string

	// TracerName is the OpenTelemetry tracer name (default: "topicsync").
	TracerName string

	// QueueSize bounds the inbound message and dispatch queues.
	QueueSize int

	// WriteTimeout bounds a single write when the connection supports
	// deadlines.
	WriteTimeout time.Duration

	// Limits bounds inbound messages.
	Limits protocol.Limits
}

// Option configures a Client.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Logger:       slog.Default(),
		Namespace:    "topicsync",
		TracerName:   "topicsync",
		QueueSize:    256,
		WriteTimeout: 10 * time.Second,
		Limits:       protocol.DefaultLimits(),
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithRegistry sets the Prometheus registerer for the client metrics.
func WithRegistry(r prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = r
	}
}

// WithNamespace sets the metrics namespace.
func WithNamespace(ns string) Option {
	return func(c *Config) {
		c.Namespace = ns
	}
}

// WithTracerName sets the tracer name.
func WithTracerName(name string) Option {
	return func(c *Config) {
		c.TracerName = name
	}
}

// WithQueueSize sets the size of the inbound and dispatch queues.
func WithQueueSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.QueueSize = n
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.WriteTimeout = d
	}
}

// WithLimits sets the inbound message limits.
func WithLimits(l protocol.Limits) Option {
	return func(c *Config) {
		c.Limits = l
	}
}
