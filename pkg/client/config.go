package client

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relaymq/relay-go/pkg/transport"
)

// DefaultPort is the port used when a config file omits it.
const DefaultPort = 7878

// Config is the file form of a Builder.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	TLSDomain          string `yaml:"tls_domain"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`

	Push bool `yaml:"push"`
	Pull bool `yaml:"pull"`

	MaxMessageTotal int                       `yaml:"max_message_total"`
	ActionQueueSize int                       `yaml:"action_queue_size"`
	KeepAlive       transport.KeepAliveConfig `yaml:"keepalive"`
	ConnectTimeout  time.Duration             `yaml:"connect_timeout"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config data.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{Port: DefaultPort}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for obvious mistakes.
func (c *Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if !c.Push && !c.Pull {
		errs = append(errs, errors.New("at least one of push or pull must be enabled"))
	}
	if c.MaxMessageTotal < 0 {
		errs = append(errs, errors.New("max_message_total must not be negative"))
	}
	return errors.Join(errs...)
}

// Builder converts the config to a Builder. Logging options are set on the
// returned builder by the caller.
func (c *Config) Builder() *Builder {
	b := NewBuilder(c.Host, c.Port).
		SetMaxMessageTotal(c.MaxMessageTotal).
		SetActionQueueSize(c.ActionQueueSize).
		SetConnectTimeout(c.ConnectTimeout)

	if c.Push {
		b.SupportPush()
	}
	if c.Pull {
		b.SupportPull()
	}
	if c.TLSDomain != "" {
		b.SetTLSDomain(c.TLSDomain)
	}
	if c.CAFile != "" || c.InsecureSkipVerify {
		b.SetTLSConfig(&transport.TLSConfig{
			CAFile:             c.CAFile,
			InsecureSkipVerify: c.InsecureSkipVerify,
		})
	}
	if c.KeepAlive != (transport.KeepAliveConfig{}) {
		b.SetKeepAlive(c.KeepAlive)
	}
	return b
}

// LogValue implements slog.LogValuer.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", c.Host),
		slog.Int("port", c.Port),
		slog.String("tls_domain", c.TLSDomain),
		slog.Bool("push", c.Push),
		slog.Bool("pull", c.Pull),
	)
}
