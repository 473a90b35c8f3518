package httpx

// ErrorLoggingConfig controls which handler errors are written to the log (yaml key: server.error_logging)
type ErrorLoggingConfig struct {
	// Enable log failed requests (default false)
	Enable bool `mapstructure:"enable" json:"enable"`

	// IgnoreHTTPStatus statuses never logged, e.g. 429 for expected throttling
	IgnoreHTTPStatus []int `mapstructure:"ignore_http_status" json:"ignore_http_status"`

	// FullErrorChain add the wrapped cause chain to the entry (default true)
	FullErrorChain bool `mapstructure:"full_error_chain" json:"full_error_chain"`

	// LogLevel error, warn or info (default error)
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// DefaultErrorLoggingConfig logging is off until enabled
func DefaultErrorLoggingConfig() ErrorLoggingConfig {
	return ErrorLoggingConfig{
		IgnoreHTTPStatus: []int{},
		FullErrorChain:   true,
		LogLevel:         "error",
	}
}
