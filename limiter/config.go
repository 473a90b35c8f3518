package limiter

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Rate limiter configuration (yaml key: limiter)
type Config struct {
	// BaseLimit requests per window for low-usage identities (default 20)
	BaseLimit int `mapstructure:"base_limit"`

	// MaxLimit requests per window for high-usage identities (default 50)
	MaxLimit int `mapstructure:"max_limit"`

	// Window fixed, clock-aligned counting window (default 60s)
	Window time.Duration `mapstructure:"window"`

	// UsageTTL expiry of the stored usage pattern (default 24h)
	UsageTTL time.Duration `mapstructure:"usage_ttl"`

	// Smoothing EMA weight of the newest sample (default 0.3)
	Smoothing float64 `mapstructure:"smoothing"`

	// LowWatermark pattern below which BaseLimit applies (default 0.3).
	// A pointer so that an explicit 0 disables the base band.
	LowWatermark *float64 `mapstructure:"low_watermark"`

	// HighWatermark pattern at or above which MaxLimit applies (default 0.7)
	HighWatermark float64 `mapstructure:"high_watermark"`

	// KeyPrefix prepended to every key (default none)
	KeyPrefix string `mapstructure:"key_prefix"`

	// Workers size of the goroutine pool running usage updates (default 64)
	Workers int `mapstructure:"workers"`

	// OpTimeout deadline of each admission check against Redis (default 3s)
	OpTimeout time.Duration `mapstructure:"op_timeout"`

	// EventBusBuffer event bus buffer size (default 500)
	EventBusBuffer int `mapstructure:"event_bus_buffer"`
}

// DefaultConfig returns the configuration with every default applied
func DefaultConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.BaseLimit == 0 {
		c.BaseLimit = 20
	}
	if c.MaxLimit == 0 {
		c.MaxLimit = 50
	}
	if c.Window == 0 {
		c.Window = 60 * time.Second
	}
	if c.UsageTTL == 0 {
		c.UsageTTL = 24 * time.Hour
	}
	if c.Smoothing == 0 {
		c.Smoothing = 0.3
	}
	if c.LowWatermark == nil {
		low := 0.3
		c.LowWatermark = &low
	}
	if c.HighWatermark == 0 {
		c.HighWatermark = 0.7
	}
	if c.Workers == 0 {
		c.Workers = 64
	}
	if c.OpTimeout == 0 {
		c.OpTimeout = 3 * time.Second
	}
	if c.EventBusBuffer == 0 {
		c.EventBusBuffer = 500
	}
}

// Validate checks 0 < base <= max, 0 < smoothing <= 1 and 0 <= low < high <= 1
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxLimit, validation.Required, validation.Min(c.BaseLimit)),
		validation.Field(&c.Window, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.UsageTTL, validation.Required, validation.Min(c.Window)),
		validation.Field(&c.Smoothing, validation.Required, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.LowWatermark, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.HighWatermark, validation.Min(0.0), validation.Max(1.0),
			validation.By(func(interface{}) error {
				if c.HighWatermark <= c.lowWatermark() {
					return validation.NewError("validation_watermark_order", "must be greater than low_watermark")
				}
				return nil
			})),
		validation.Field(&c.Workers, validation.Min(1)),
		validation.Field(&c.OpTimeout, validation.Min(time.Millisecond)),
	)
}

// lowWatermark 0.3 until defaults are applied
func (c Config) lowWatermark() float64 {
	if c.LowWatermark == nil {
		return 0.3
	}
	return *c.LowWatermark
}
