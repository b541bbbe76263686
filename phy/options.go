package phy

import "time"

// Default timings.
const (
	// DefaultClockHz is the conservative transport clock used during bring-up
	DefaultClockHz = 200000

	// DefaultResetHoldTime is how long the reset line is held low
	DefaultResetHoldTime = 50 * time.Millisecond

	// DefaultBootTime is the companion boot delay after releasing reset
	DefaultBootTime = 200 * time.Millisecond

	// DefaultPollInterval is the pause between two ready-signal checks
	DefaultPollInterval = time.Millisecond

	// DefaultReplyTimeout bounds a synchronous transaction
	DefaultReplyTimeout = 2 * time.Second
)

// Config holds the engine configuration.
type Config struct {
	// TraceCallback is called for every frame on the link (optional)
	TraceCallback TraceCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// Metrics records transaction statistics (optional)
	Metrics *Metrics

	// Transport is applied to the transport during Open
	Transport TransportConfig

	// ResetHoldTime is how long the companion is held in hardware reset
	ResetHoldTime time.Duration

	// BootTime is the delay between releasing reset and the software reset
	BootTime time.Duration

	// PollInterval paces the ready-signal checks of a synchronous
	// transaction. Zero polls without pause.
	PollInterval time.Duration

	// ReplyTimeout bounds a synchronous transaction. Zero waits until the
	// context is done.
	ReplyTimeout time.Duration

	// AdvisoryConfigReply disables the ACK check of SetPhyConfig
	AdvisoryConfigReply bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Transport:     DefaultTransportConfig(),
		ResetHoldTime: DefaultResetHoldTime,
		BootTime:      DefaultBootTime,
		PollInterval:  DefaultPollInterval,
		ReplyTimeout:  DefaultReplyTimeout,
	}
}

// Option is a functional option for configuring the Engine.
type Option func(*Config)

// WithTraceCallback sets a callback receiving every frame on the link.
func WithTraceCallback(callback TraceCallback) Option {
	return func(c *Config) {
		c.TraceCallback = callback
	}
}

// WithLogger sets a logger for the engine operations.
//
// Example:
//
//	engine, err := phy.Open(ctx, hw, addr, phy.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics records transactions into m.
//
// Example:
//
//	m := phy.NewMetrics(prometheus.DefaultRegisterer)
//	engine, err := phy.Open(ctx, hw, addr, phy.WithMetrics(m))
func WithMetrics(m *Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithTransportConfig replaces the transport settings applied during Open.
func WithTransportConfig(cfg TransportConfig) Option {
	return func(c *Config) {
		c.Transport = cfg
	}
}

// WithClockHz sets the maximum transport clock.
// Non-positive values are ignored.
func WithClockHz(hz int64) Option {
	return func(c *Config) {
		if hz > 0 {
			c.Transport.MaxClockHz = hz
		}
	}
}

// WithResetTiming sets the reset hold time and the boot delay.
//
// Example:
//
//	engine, err := phy.Open(ctx, hw, addr, phy.WithResetTiming(100*time.Millisecond, time.Second))
func WithResetTiming(hold, boot time.Duration) Option {
	return func(c *Config) {
		if hold >= 0 {
			c.ResetHoldTime = hold
		}
		if boot >= 0 {
			c.BootTime = boot
		}
	}
}

// WithPollInterval sets the pause between ready-signal checks.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval >= 0 {
			c.PollInterval = interval
		}
	}
}

// WithReplyTimeout bounds every synchronous transaction.
// Zero disables the bound; the caller's context still applies.
//
// Example:
//
//	engine, err := phy.Open(ctx, hw, addr, phy.WithReplyTimeout(500*time.Millisecond))
func WithReplyTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout >= 0 {
			c.ReplyTimeout = timeout
		}
	}
}

// WithAdvisoryConfigReply makes SetPhyConfig return the companion's reply
// without requiring an ACK.
func WithAdvisoryConfigReply() Option {
	return func(c *Config) {
		c.AdvisoryConfigReply = true
	}
}
