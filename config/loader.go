package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Loader configuration loader (merges multiple data sources by priority)
type Loader struct {
	sources      []ConfigSource
	mergedConfig map[string]interface{}
	v            *viper.Viper
	loadedFiles  []string
}

// NewLoader creates an empty loader
func NewLoader() *Loader {
	return &Loader{
		sources:      make([]ConfigSource, 0),
		mergedConfig: make(map[string]interface{}),
		v:            viper.New(),
		loadedFiles:  make([]string, 0),
	}
}

// AddSource add configuration data source
func (l *Loader) AddSource(source ConfigSource) {
	l.sources = append(l.sources, source)
}

// Load and merge all data sources
func (l *Loader) Load() error {
	// Sort by priority (low to high), later sources override earlier ones
	sort.SliceStable(l.sources, func(i, j int) bool {
		return l.sources[i].Priority() < l.sources[j].Priority()
	})

	l.mergedConfig = make(map[string]interface{})
	l.loadedFiles = l.loadedFiles[:0]
	for _, source := range l.sources {
		data, err := source.Load()
		if err != nil {
			return fmt.Errorf("load source %s: %w", source.Name(), err)
		}

		if fs, ok := source.(*FileSource); ok && len(data) > 0 {
			l.loadedFiles = append(l.loadedFiles, fs.path)
		}

		for key, value := range data {
			l.mergedConfig[key] = value
		}
	}

	l.syncToViper()
	return nil
}

// syncToViper rebuilds viper from the merged flat map
func (l *Loader) syncToViper() {
	l.v = viper.New()
	for key, value := range unflattenMap(l.mergedConfig) {
		l.v.Set(key, value)
	}
}

// unflattenMap {"redis.max_capacity": 50} -> {"redis": {"max_capacity": 50}}
func unflattenMap(flat map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})

	for key, value := range flat {
		parts := strings.Split(key, ".")
		current := result
		for _, k := range parts[:len(parts)-1] {
			next, ok := current[k].(map[string]interface{})
			if !ok {
				next = make(map[string]interface{})
				current[k] = next
			}
			current = next
		}
		current[parts[len(parts)-1]] = value
	}

	return result
}

// Unmarshal decodes the sub-tree under key into out (mapstructure tags, weak typing,
// "30s" style durations)
func (l *Loader) Unmarshal(key string, out interface{}) error {
	if key == "" {
		return l.v.Unmarshal(out)
	}
	if !l.v.IsSet(key) {
		return nil
	}
	return l.v.UnmarshalKey(key, out)
}

// GetString Get string configuration
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// GetInt Get integer configuration
func (l *Loader) GetInt(key string) int {
	return l.v.GetInt(key)
}

// GetBool Get boolean configuration
func (l *Loader) GetBool(key string) bool {
	return l.v.GetBool(key)
}

// IsSet Check if the configuration item exists
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}

// GetLoadedFiles Retrieve the list of loaded configuration files
func (l *Loader) GetLoadedFiles() []string {
	return l.loadedFiles
}

// GetViper returns the underlying Viper instance
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}
