package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/paytrust/interfaces"
	"github.com/opd-ai/paytrust/keycache"
	"github.com/opd-ai/paytrust/noise"
	"github.com/opd-ai/paytrust/storage"
	"github.com/opd-ai/paytrust/transport"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full runtime configuration of a node.
type Config struct {
	Handshake HandshakeConfig `yaml:"handshake"`
	KeyCache  KeyCacheConfig  `yaml:"key_cache"`
	Replay    ReplayConfig    `yaml:"replay"`
	Limits    LimitsConfig    `yaml:"limits"`
	Log       LogConfig       `yaml:"log"`
}

// HandshakeConfig controls the listener and handshake driver.
type HandshakeConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// Mode is "pattern-aware" or "legacy".
	Mode string `yaml:"mode"`
	// Patterns accepted by the listener. Empty accepts all five.
	Patterns []string `yaml:"patterns"`
}

// KeyCacheConfig controls peer key freshness and persistence.
type KeyCacheConfig struct {
	MaxAge time.Duration `yaml:"max_age"`
	// PersistPath is the encrypted store directory. Empty keeps the cache
	// in memory only.
	PersistPath string `yaml:"persist_path"`
}

// ReplayConfig controls the first-message replay guard.
type ReplayConfig struct {
	Window  time.Duration `yaml:"window"`
	DataDir string        `yaml:"data_dir"`
}

// LimitsConfig bounds inbound handshake load.
type LimitsConfig struct {
	HandshakesPerMinute     int   `yaml:"handshakes_per_minute"`
	Burst                   int   `yaml:"burst"`
	MaxTrackedIPs           int   `yaml:"max_tracked_ips"`
	MaxConcurrentHandshakes int64 `yaml:"max_concurrent_handshakes"`
}

// LogConfig selects the logrus level and output format.
type LogConfig struct {
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Handshake: HandshakeConfig{
			Timeout: noise.DefaultTimeout,
			Mode:    transport.ModePatternAware.String(),
		},
		KeyCache: KeyCacheConfig{
			MaxAge: 30 * 24 * time.Hour,
		},
		Replay: ReplayConfig{
			Window: noise.DefaultReplayWindow,
		},
		Limits: LimitsConfig{
			HandshakesPerMinute:     transport.DefaultHandshakesPerMinute,
			Burst:                   transport.DefaultBurst,
			MaxTrackedIPs:           transport.DefaultMaxTrackedIPs,
			MaxConcurrentHandshakes: 256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
// Keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and names.
func (c *Config) Validate() error {
	if c.Handshake.Timeout <= 0 {
		return fmt.Errorf("%w: handshake.timeout must be positive", ErrInvalid)
	}
	mode, err := transport.ParseMode(c.Handshake.Mode)
	if err != nil {
		return fmt.Errorf("%w: handshake.mode: %v", ErrInvalid, err)
	}
	patterns, err := c.ResponderPatterns()
	if err != nil {
		return err
	}
	if mode == transport.ModeLegacy && patterns != nil && !patterns[noise.PatternIK] {
		return fmt.Errorf("%w: legacy mode requires the ik pattern", ErrInvalid)
	}
	if c.KeyCache.MaxAge < 0 {
		return fmt.Errorf("%w: key_cache.max_age must not be negative", ErrInvalid)
	}
	if c.Replay.Window <= 0 {
		return fmt.Errorf("%w: replay.window must be positive", ErrInvalid)
	}
	l := c.Limits
	if l.HandshakesPerMinute < 0 || l.Burst < 0 || l.MaxTrackedIPs < 0 || l.MaxConcurrentHandshakes < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalid)
	}
	if l.HandshakesPerMinute > 0 && l.Burst == 0 {
		return fmt.Errorf("%w: limits.burst must be set with handshakes_per_minute", ErrInvalid)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// ApplyLogging configures the standard logrus logger.
func (c *Config) ApplyLogging() error {
	return c.applyLogging(logrus.StandardLogger())
}

func (c *Config) applyLogging(l *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	l.SetLevel(level)
	if strings.EqualFold(c.Log.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// ResponderPatterns returns the set of patterns the listener accepts, or
// nil when every pattern is accepted.
func (c *Config) ResponderPatterns() (map[noise.Pattern]bool, error) {
	if len(c.Handshake.Patterns) == 0 {
		return nil, nil
	}
	set := make(map[noise.Pattern]bool, len(c.Handshake.Patterns))
	for _, name := range c.Handshake.Patterns {
		p, err := noise.ParsePattern(name)
		if err != nil {
			return nil, fmt.Errorf("%w: handshake.patterns: %v", ErrInvalid, err)
		}
		set[p] = true
	}
	return set, nil
}

// Dispatcher builds a dispatcher for the listener settings. With a
// directory, cold-key handshakes are checked against it. The caller fills
// in the static key on the returned Responder.
func (c *Config) Dispatcher(guard *noise.ReplayGuard, metrics *transport.HandshakeMetrics, dir interfaces.IDirectory) (*transport.Dispatcher, error) {
	mode, err := transport.ParseMode(c.Handshake.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: handshake.mode: %v", ErrInvalid, err)
	}
	patterns, err := c.ResponderPatterns()
	if err != nil {
		return nil, err
	}
	d := &transport.Dispatcher{
		Mode:     mode,
		Patterns: patterns,
		Responder: noise.ResponderConfig{
			Timeout:     c.Handshake.Timeout,
			ReplayGuard: guard,
		},
		Metrics: metrics,
	}
	if dir != nil {
		d.Responder.Verify = noise.ColdKeyVerifier(dir)
	}
	return d, nil
}

// ServerOptions returns the listener limits as server options.
func (c *Config) ServerOptions() []transport.ServerOption {
	var opts []transport.ServerOption
	if c.Limits.HandshakesPerMinute > 0 {
		opts = append(opts, transport.WithRateLimiter(transport.NewRateLimiter(
			c.Limits.HandshakesPerMinute, c.Limits.Burst, c.Limits.MaxTrackedIPs)))
	}
	if c.Limits.MaxConcurrentHandshakes > 0 {
		opts = append(opts, transport.WithMaxConcurrentHandshakes(c.Limits.MaxConcurrentHandshakes))
	}
	return opts
}

// OpenReplayGuard starts the replay guard. The caller closes it.
func (c *Config) OpenReplayGuard() (*noise.ReplayGuard, error) {
	return noise.NewReplayGuard(c.Replay.DataDir, c.Replay.Window)
}

// OpenKeyCache creates the key cache and, when a persist path is set,
// loads it from an encrypted store opened with password. The store is
// returned so the caller can Save into it on shutdown; it is nil for an
// in-memory cache.
func (c *Config) OpenKeyCache(password []byte, opts ...keycache.Option) (*keycache.Cache, *storage.FileStore, error) {
	opts = append([]keycache.Option{keycache.WithMaxAge(c.KeyCache.MaxAge)}, opts...)
	cache := keycache.New(opts...)
	if c.KeyCache.PersistPath == "" {
		return cache, nil, nil
	}
	store, err := storage.NewFileStore(c.KeyCache.PersistPath, password)
	if err != nil {
		return nil, nil, fmt.Errorf("open key cache store: %w", err)
	}
	if err := cache.Load(store); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("load key cache: %w", err)
	}
	return cache, store, nil
}
