package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vango-dev/topicsync/internal/errors"
	"github.com/vango-dev/topicsync/pkg/protocol"
	"github.com/vango-dev/topicsync/pkg/topicsync"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "topicsync.json"

	// DefaultURL is the default server endpoint.
	DefaultURL = "ws://localhost:8765/ws"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultHandshakeTimeout bounds the wait for the server's hello.
	DefaultHandshakeTimeout = "10s"

	DefaultQueueSize    = 256
	DefaultWriteTimeout = "10s"
)

// Config represents the complete topicsync.json configuration.
type Config struct {
	// URL is the WebSocket endpoint of the server.
	URL string `json:"url,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"logLevel,omitempty"`

	// DebugAddr is the listen address of the debug HTTP server. Empty
	// disables it.
	DebugAddr string `json:"debugAddr,omitempty"`

	// HandshakeTimeout bounds the wait for the server's hello (e.g., "10s").
	HandshakeTimeout string `json:"handshakeTimeout,omitempty"`

	// Subscriptions are subscribed on connect.
	Subscriptions []Subscription `json:"subscriptions,omitempty"`

	// Client contains client tuning.
	Client ClientConfig `json:"client,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// Subscription names a topic and its kind.
type Subscription struct {
	Name string         `json:"name"`
	Kind topicsync.Kind `json:"kind"`
}

// ClientConfig contains client tuning.
type ClientConfig struct {
	// QueueSize bounds the inbound and dispatch queues.
	QueueSize int `json:"queueSize,omitempty"`

	// WriteTimeout bounds a single write (e.g., "10s").
	WriteTimeout string `json:"writeTimeout,omitempty"`

	// MaxMessageSize is the largest inbound message in bytes.
	MaxMessageSize int `json:"maxMessageSize,omitempty"`

	// MaxValueDepth limits nesting inside inbound messages.
	MaxValueDepth int `json:"maxValueDepth,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	limits := protocol.DefaultLimits()
	return &Config{
		URL:              DefaultURL,
		LogLevel:         DefaultLogLevel,
		HandshakeTimeout: DefaultHandshakeTimeout,
		Client: ClientConfig{
			QueueSize:      DefaultQueueSize,
			WriteTimeout:   DefaultWriteTimeout,
			MaxMessageSize: limits.MessageSize,
			MaxValueDepth:  limits.ValueDepth,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for topicsync.json in the directory.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	return LoadFile(configPath)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E040").
				WithDetail("No topicsync.json found in " + filepath.Dir(path))
		}
		return nil, errors.New("E041").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E041").
			WithDetail("Failed to parse topicsync.json: " + err.Error())
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E041").Wrap(err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E041").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	def := New()
	if c.URL == "" {
		c.URL = def.URL
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.HandshakeTimeout == "" {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.Client.QueueSize == 0 {
		c.Client.QueueSize = def.Client.QueueSize
	}
	if c.Client.WriteTimeout == "" {
		c.Client.WriteTimeout = def.Client.WriteTimeout
	}
	if c.Client.MaxMessageSize == 0 {
		c.Client.MaxMessageSize = def.Client.MaxMessageSize
	}
	if c.Client.MaxValueDepth == 0 {
		c.Client.MaxValueDepth = def.Client.MaxValueDepth
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		return errors.New("E042").
			WithDetail("url must start with ws:// or wss://, got " + c.URL)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if _, err := c.HandshakeDuration(); err != nil {
		return err
	}
	if _, err := c.WriteTimeout(); err != nil {
		return err
	}
	if c.Client.QueueSize < 0 || c.Client.MaxMessageSize < 0 || c.Client.MaxValueDepth < 0 {
		return errors.New("E042").
			WithDetail("client limits must not be negative")
	}
	seen := make(map[string]bool, len(c.Subscriptions))
	for _, s := range c.Subscriptions {
		if s.Name == "" {
			return errors.New("E042").WithDetail("subscription without a name")
		}
		if seen[s.Name] {
			return errors.New("E042").WithDetail("topic " + s.Name + " is subscribed twice")
		}
		seen[s.Name] = true
		if _, err := topicsync.ParseKind(string(s.Kind)); err != nil {
			return errors.New("E004").Wrap(err)
		}
	}
	return nil
}

// SlogLevel returns the log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, errors.New("E042").
			WithDetail("logLevel must be debug, info, warn or error, got " + c.LogLevel)
	}
	return level, nil
}

// HandshakeDuration returns the parsed handshake timeout.
func (c *Config) HandshakeDuration() (time.Duration, error) {
	return parseDuration("handshakeTimeout", c.HandshakeTimeout)
}

// WriteTimeout returns the parsed client write timeout.
func (c *Config) WriteTimeout() (time.Duration, error) {
	return parseDuration("client.writeTimeout", c.Client.WriteTimeout)
}

// Limits returns the inbound message limits.
func (c *Config) Limits() protocol.Limits {
	return protocol.Limits{
		MessageSize: c.Client.MaxMessageSize,
		ValueDepth:  c.Client.MaxValueDepth,
	}
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, errors.New("E042").
			WithDetail(field + " must be a duration such as \"10s\", got " + s)
	}
	return d, nil
}

// ParseSubscription parses a "name:kind" argument. A bare name is a generic
// topic.
func ParseSubscription(arg string) (Subscription, error) {
	name, kind, found := strings.Cut(arg, ":")
	if !found {
		kind = string(topicsync.KindGeneric)
	}
	if name == "" {
		return Subscription{}, errors.New("E050").
			WithDetail("empty topic name in " + arg).
			WithExample("topicsync watch doc:string todos:list")
	}
	k, err := topicsync.ParseKind(kind)
	if err != nil {
		return Subscription{}, errors.New("E004").Wrap(err)
	}
	return Subscription{Name: name, Kind: k}, nil
}

// AddSubscription adds s, replacing an existing subscription of the same
// name.
func (c *Config) AddSubscription(s Subscription) {
	for i := range c.Subscriptions {
		if c.Subscriptions[i].Name == s.Name {
			c.Subscriptions[i] = s
			return
		}
	}
	c.Subscriptions = append(c.Subscriptions, s)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindConfigDir walks up directories to find the one holding
// topicsync.json.
func FindConfigDir(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E040").
				WithDetail("No topicsync.json found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the working directory or its
// nearest parent holding topicsync.json. Without a file it returns the
// defaults.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	dir, err := FindConfigDir(wd)
	if err != nil {
		return New(), nil
	}

	return Load(dir)
}
