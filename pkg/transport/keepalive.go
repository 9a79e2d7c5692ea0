package transport

import "time"

// Keep-alive constants.
const (
	// DefaultPingInterval is the wait before the first ping and after a pong.
	DefaultPingInterval = 30 * time.Second

	// DefaultPingStep is added to the wait for every unanswered ping.
	DefaultPingStep = 10 * time.Second

	// DefaultMaxMissedPings caps the counted misses.
	DefaultMaxMissedPings = 5

	// MaxPingInterval is the longest wait with the default configuration.
	// Calculated as: DefaultPingInterval + DefaultMaxMissedPings * DefaultPingStep
	MaxPingInterval = 80 * time.Second
)

// KeepAliveConfig configures the ping schedule.
type KeepAliveConfig struct {
	// Interval is the base wait between pings.
	Interval time.Duration `yaml:"interval"`

	// Step is added to the wait for each missed pong.
	Step time.Duration `yaml:"step"`

	// MaxMissed caps the number of misses that lengthen the wait.
	MaxMissed int `yaml:"max_missed"`
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		Interval:  DefaultPingInterval,
		Step:      DefaultPingStep,
		MaxMissed: DefaultMaxMissedPings,
	}
}

// MaxInterval returns the longest wait this configuration produces.
func (c KeepAliveConfig) MaxInterval() time.Duration {
	return c.Interval + time.Duration(c.MaxMissed)*c.Step
}

// KeepAlive tracks how many pings went unanswered and derives the wait
// before the next one. It holds no timer and no goroutine; the owner arms
// its own timer with Current after every change.
//
// KeepAlive is not safe for concurrent use.
type KeepAlive struct {
	config KeepAliveConfig
	missed int
}

// NewKeepAlive creates a keep-alive schedule. Zero fields use defaults.
func NewKeepAlive(config KeepAliveConfig) *KeepAlive {
	if config.Interval <= 0 {
		config.Interval = DefaultPingInterval
	}
	if config.Step < 0 {
		config.Step = 0
	} else if config.Step == 0 {
		config.Step = DefaultPingStep
	}
	if config.MaxMissed <= 0 {
		config.MaxMissed = DefaultMaxMissedPings
	}
	return &KeepAlive{config: config}
}

// Config returns the effective configuration.
func (ka *KeepAlive) Config() KeepAliveConfig {
	return ka.config
}

// Current returns the wait before the next ping.
func (ka *KeepAlive) Current() time.Duration {
	return ka.config.Interval + time.Duration(ka.missed)*ka.config.Step
}

// Missed returns the number of counted misses.
func (ka *KeepAlive) Missed() int {
	return ka.missed
}

// Fired records that a ping was sent without a pong since the last one
// and returns the new wait. The count saturates at MaxMissed.
func (ka *KeepAlive) Fired() time.Duration {
	if ka.missed < ka.config.MaxMissed {
		ka.missed++
	}
	return ka.Current()
}

// Reset records a pong and returns the base wait.
func (ka *KeepAlive) Reset() time.Duration {
	ka.missed = 0
	return ka.Current()
}
