package server

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
	"gopkg.in/yaml.v3"
)

// Defaults applied to zero Config fields.
const (
	DefaultServerName       = "rpcws"
	DefaultMaxConnections   = 16
	DefaultRPCPath          = "/rpc2"
	DefaultTickInterval     = 250 * time.Millisecond
	DefaultReadBufferSize   = 4096
	DefaultMaxLineLength    = 8 << 10
	DefaultMaxContentLength = 1 << 20
	DefaultMaxMessageSize   = 16 << 20
	DefaultLogLevel         = "info"
)

// Config holds the server settings. It can be loaded from YAML with
// LoadConfig; zero fields take the defaults above.
type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	ServerName string `yaml:"server_name"`

	MaxConnections int           `yaml:"max_connections"`
	RPCPath        string        `yaml:"rpc_path"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`

	ReadBufferSize   int   `yaml:"read_buffer_size"`
	MaxLineLength    int   `yaml:"max_line_length"`
	MaxContentLength int   `yaml:"max_content_length"`
	MaxMessageSize   int64 `yaml:"max_message_size"`

	DisableWebSocket bool   `yaml:"disable_websocket"`
	LogLevel         string `yaml:"log_level"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

// LoadConfig reads a YAML config file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &c, nil
}

func (c Config) withDefaults() Config {
	if c.ServerName == "" {
		c.ServerName = DefaultServerName
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.RPCPath == "" {
		c.RPCPath = DefaultRPCPath
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.MaxLineLength == 0 {
		c.MaxLineLength = DefaultMaxLineLength
	}
	if c.MaxContentLength == 0 {
		c.MaxContentLength = DefaultMaxContentLength
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return c
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.ServerName == "" || !httpguts.ValidHeaderFieldValue(c.ServerName) {
		return fmt.Errorf("invalid server name: %q", c.ServerName)
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("invalid max connections: %d", c.MaxConnections)
	}
	if !strings.HasPrefix(c.RPCPath, "/") || strings.ContainsAny(c.RPCPath, " \t") {
		return fmt.Errorf("invalid rpc path: %q", c.RPCPath)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("invalid tick interval: %s", c.TickInterval)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("invalid idle timeout: %s", c.IdleTimeout)
	}
	if c.ReadBufferSize < 1 {
		return fmt.Errorf("invalid read buffer size: %d", c.ReadBufferSize)
	}
	if c.MaxLineLength < 1 || c.MaxContentLength < 1 || c.MaxMessageSize < 1 {
		return errors.New("size limits must be positive")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level: %q", c.LogLevel)
	}
	return level, nil
}
