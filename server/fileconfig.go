package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/signadot/pktlogd/storage"
)

// Config represents the pktlogd configuration file structure.
// Zero values are filled in from DefaultConfig.
type Config struct {
	// Port is the TCP port to bind on all IPv4 addresses.
	Port int `yaml:"port"`

	// DataFile is the path of the packet log. It is removed on shutdown.
	DataFile string `yaml:"dataFile"`

	// Backlog is the pending connection queue length.
	Backlog int `yaml:"backlog"`

	// ReadChunk is the size of a single read from a client, and of the
	// reads used to stream the log back.
	ReadChunk int `yaml:"readChunk"`

	// MaxBuffered caps the bytes of an incomplete packet held per
	// connection. Zero means unbounded.
	MaxBuffered int `yaml:"maxBuffered"`

	// Sync fsyncs the data file after every append.
	Sync bool `yaml:"sync"`

	// Debug enables debug logging.
	Debug bool `yaml:"debug"`

	// Gops starts a gops diagnostics agent.
	Gops bool `yaml:"gops"`

	// Metrics configures the Prometheus endpoint.
	Metrics *MetricsConfig `yaml:"metrics"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the HTTP listen address for /metrics. Empty disables it.
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with the standard port, data file and
// backlog.
func DefaultConfig() *Config {
	return &Config{
		Port:      DefaultPort,
		DataFile:  storage.DefaultPath,
		Backlog:   DefaultBacklog,
		ReadChunk: storage.DefaultChunkSize,
		Metrics:   &MetricsConfig{},
	}
}

// LoadConfig loads a configuration file in YAML format on top of the
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

// ApplyEnv overrides configuration from the environment.
func (c *Config) ApplyEnv() error {
	if env := strings.TrimSpace(os.Getenv("PKTLOGD_PORT")); env != "" {
		port, err := strconv.Atoi(env)
		if err != nil {
			return fmt.Errorf("invalid PKTLOGD_PORT %q: %w", env, err)
		}
		c.Port = port
	}
	if env := strings.TrimSpace(os.Getenv("PKTLOGD_DATA_FILE")); env != "" {
		c.DataFile = env
	}
	if env := strings.TrimSpace(os.Getenv("PKTLOGD_METRICS_ADDR")); env != "" {
		if c.Metrics == nil {
			c.Metrics = &MetricsConfig{}
		}
		c.Metrics.Addr = env
	}
	if os.Getenv("DEBUG") != "" {
		c.Debug = true
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DataFile == "" {
		return fmt.Errorf("dataFile is required")
	}
	if c.Backlog <= 0 {
		return fmt.Errorf("backlog must be positive, got %d", c.Backlog)
	}
	if c.ReadChunk <= 0 {
		return fmt.Errorf("readChunk must be positive, got %d", c.ReadChunk)
	}
	if c.MaxBuffered < 0 {
		return fmt.Errorf("maxBuffered must not be negative, got %d", c.MaxBuffered)
	}
	return nil
}

func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.DataFile == "" {
		c.DataFile = def.DataFile
	}
	if c.Backlog == 0 {
		c.Backlog = def.Backlog
	}
	if c.ReadChunk == 0 {
		c.ReadChunk = def.ReadChunk
	}
	if c.Metrics == nil {
		c.Metrics = def.Metrics
	}
}
