package config

// ConfigSource configuration data source
// All configuration sources (files, environment variables, defaults) implement this interface
type ConfigSource interface {
	// Data source name (for logs and debugging)
	Name() string

	// Priority (higher value wins)
	// Suggested values:
	// - Defaults: 1
	// - Configuration file (config.yaml): 10
	// - Environment configuration file (dev.yaml): 20
	// - Environment variable: 50
	Priority() int

	// Load configuration data
	// The returned map uses dot-separated keys, such as "redis.max_capacity"
	Load() (map[string]interface{}, error)
}

// MapSource static key/value source, used for defaults and tests
type MapSource struct {
	name     string
	priority int
	values   map[string]interface{}
}

// NewMapSource creates a static source; nested maps are flattened on Load
func NewMapSource(name string, priority int, values map[string]interface{}) *MapSource {
	return &MapSource{name: name, priority: priority, values: values}
}

// Name data source name
func (s *MapSource) Name() string {
	return "map:" + s.name
}

// Priority priority
func (s *MapSource) Priority() int {
	return s.priority
}

// Load returns the flattened values
func (s *MapSource) Load() (map[string]interface{}, error) {
	return flattenMap("", s.values), nil
}
