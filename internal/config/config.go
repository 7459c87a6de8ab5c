// Package config loads and watches the httptap configuration file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the complete httptap configuration.
type Config struct {
	Enabled     bool   `yaml:"enabled"`
	ListenAddr  string `yaml:"listenAddr"`
	MetricsAddr string `yaml:"metricsAddr"`
	Upstream    string `yaml:"upstream"`
	LogLevel    string `yaml:"logLevel"`

	Capture CaptureConfig `yaml:"capture"`
	Policy  PolicyConfig  `yaml:"policy"`
	Tracing TracingConfig `yaml:"tracing"`
}

// CaptureConfig holds the per-exchange capture switches.
type CaptureConfig struct {
	RequestHeaders  bool   `yaml:"requestHeaders"`
	ResponseHeaders bool   `yaml:"responseHeaders"`
	RequestBody     bool   `yaml:"requestBody"`
	ResponseBody    bool   `yaml:"responseBody"`
	MaxBodyBytes    int64  `yaml:"maxBodyBytes"`
	SessionCookie   string `yaml:"sessionCookie"`
}

// PolicyConfig holds the blocking policy rules.
type PolicyConfig struct {
	Rules     []RuleConfig    `yaml:"rules"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// RuleConfig is one CEL header rule.
type RuleConfig struct {
	Name       string `yaml:"name"`
	CEL        string `yaml:"cel"`
	StatusCode int    `yaml:"statusCode"`
}

// RateLimitConfig configures the per-client rate limit policy.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
	HeaderKey         string  `yaml:"headerKey"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"serviceName"`
}

// Default returns the configuration used when a field is absent from the
// file. Interception and all four capture switches default to on.
func Default() *Config {
	return &Config{
		Enabled:     true,
		ListenAddr:  ":8080",
		MetricsAddr: ":9090",
		Capture: CaptureConfig{
			RequestHeaders:  true,
			ResponseHeaders: true,
			RequestBody:     true,
			ResponseBody:    true,
			MaxBodyBytes:    1 << 20,
		},
		Tracing: TracingConfig{
			ServiceName: "httptap",
		},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listenAddr is required")
	}
	for i, r := range c.Policy.Rules {
		if r.Name == "" {
			return fmt.Errorf("policy rule %d missing 'name'", i)
		}
		if r.CEL == "" {
			return fmt.Errorf("policy rule %q missing 'cel' expression", r.Name)
		}
	}
	if c.Policy.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rateLimit.requestsPerSecond must not be negative")
	}
	return nil
}

// Loader loads and watches one configuration file.
type Loader struct {
	mu       sync.RWMutex
	current  *Config
	path     string
	logger   *slog.Logger
	onChange func(*Config)
}

// NewLoader creates a loader for the given file path.
func NewLoader(path string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{path: path, logger: logger}
}

// OnChange registers a callback that fires when the file is reloaded.
func (l *Loader) OnChange(fn func(*Config)) {
	l.onChange = fn
}

// Load reads the file and replaces the current configuration.
func (l *Loader) Load() (*Config, error) {
	cfg, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Current returns the most recently loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Watch watches the config file's directory and reloads on change.
// Blocks until done is closed. A file that fails to reload keeps the
// previous configuration in effect.
func (l *Loader) Watch(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close() // intentionally ignoring close error during cleanup
	}()

	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch dir %s: %w", dir, err)
	}

	l.logger.Info("watching config file", "path", l.path)

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(l.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				l.logger.Info("config change detected", "file", event.Name, "op", event.Op)
				cfg, err := l.Load()
				if err != nil {
					l.logger.Error("failed to reload config", "error", err)
					continue
				}
				if l.onChange != nil {
					l.onChange(cfg)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Error("watcher error", "error", err)
		}
	}
}
