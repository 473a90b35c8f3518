package redis

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config adaptive pool settings (yaml key: redis)
type Config struct {
	// Addr host:port of the Redis server (default localhost:6379)
	Addr string `mapstructure:"addr"`

	// Password (optional)
	Password string `mapstructure:"password"`

	// Database number (0-15)
	DB int `mapstructure:"db"`

	// MinCapacity lower bound of the connection capacity (default 5)
	MinCapacity int `mapstructure:"min_capacity"`

	// MaxCapacity upper bound of the connection capacity (default 50)
	MaxCapacity int `mapstructure:"max_capacity"`

	// InitialCapacity capacity of the first handle (default MinCapacity)
	InitialCapacity int `mapstructure:"initial_capacity"`

	// AdjustInterval minimum time between two capacity recalculations (default 30s)
	AdjustInterval time.Duration `mapstructure:"adjust_interval"`

	// GraceDelay how long a replaced handle stays open for in-flight commands (default 10s)
	GraceDelay time.Duration `mapstructure:"grace_delay"`

	// Hysteresis minimum |target-current| before a resize is applied (default 5)
	Hysteresis int `mapstructure:"hysteresis"`

	// DialTimeout connection timeout (default 5s)
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// ReadTimeout read timeout (default 5s)
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout write timeout (default 5s)
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// MaxRetries retries on network errors (default 3)
	MaxRetries int `mapstructure:"max_retries"`

	// MinIdleConns idle connections kept per handle
	MinIdleConns int `mapstructure:"min_idle_conns"`
}

// DefaultConfig returns the configuration with every default applied
func DefaultConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.MinCapacity == 0 {
		c.MinCapacity = 5
	}
	if c.MaxCapacity == 0 {
		c.MaxCapacity = 50
	}
	if c.InitialCapacity == 0 {
		c.InitialCapacity = c.MinCapacity
	}
	if c.AdjustInterval == 0 {
		c.AdjustInterval = 30 * time.Second
	}
	if c.GraceDelay == 0 {
		c.GraceDelay = 10 * time.Second
	}
	if c.Hysteresis == 0 {
		c.Hysteresis = 5
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate checks ranges and min <= initial <= max
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.DB, validation.Min(0), validation.Max(15)),
		validation.Field(&c.MinCapacity, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxCapacity, validation.Required, validation.Min(c.MinCapacity)),
		validation.Field(&c.InitialCapacity,
			validation.Min(c.MinCapacity), validation.Max(c.MaxCapacity)),
		validation.Field(&c.AdjustInterval, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.GraceDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.Hysteresis, validation.Min(1)),
		validation.Field(&c.MinIdleConns, validation.Min(0)),
	)
}
