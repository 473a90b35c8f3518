package config

import (
	"os"
	"path/filepath"
)

// LoaderBuilder configuration loader builder
type LoaderBuilder struct {
	configPath string
	configFile string
	envPrefix  string
	envKeys    []string
	defaults   map[string]interface{}
	flags      *FlagSource
}

// NewLoaderBuilder creates a loader builder
func NewLoaderBuilder() *LoaderBuilder {
	return &LoaderBuilder{}
}

// WithConfigPath set configuration directory (config.yaml + <env>.yaml)
func (b *LoaderBuilder) WithConfigPath(path string) *LoaderBuilder {
	b.configPath = path
	return b
}

// WithConfigFile set a single explicit configuration file
func (b *LoaderBuilder) WithConfigFile(file string) *LoaderBuilder {
	b.configFile = file
	return b
}

// WithEnvPrefix set environment variable prefix and the keys it may override
func (b *LoaderBuilder) WithEnvPrefix(prefix string, keys ...string) *LoaderBuilder {
	b.envPrefix = prefix
	b.envKeys = append(b.envKeys, keys...)
	return b
}

// WithDefaults set lowest-priority values
func (b *LoaderBuilder) WithDefaults(values map[string]interface{}) *LoaderBuilder {
	b.defaults = values
	return b
}

// WithFlags adds command line flags as the highest-priority source
func (b *LoaderBuilder) WithFlags(flags *FlagSource) *LoaderBuilder {
	b.flags = flags
	return b
}

// Build creates and loads the loader
func (b *LoaderBuilder) Build() (*Loader, error) {
	loader := NewLoader()

	if len(b.defaults) > 0 {
		loader.AddSource(NewMapSource("defaults", 1, b.defaults))
	}

	if b.configPath != "" {
		loader.AddSource(NewFileSource(filepath.Join(b.configPath, "config.yaml"), 10))
		loader.AddSource(NewFileSource(filepath.Join(b.configPath, GetEnv()+".yaml"), 20))
	}

	if b.configFile != "" {
		loader.AddSource(NewFileSource(b.configFile, 30))
	}

	if b.envPrefix != "" {
		env := NewEnvSource(b.envPrefix, 50)
		env.BindKeys(b.envKeys...)
		loader.AddSource(env)
	}

	if b.flags != nil {
		loader.AddSource(b.flags)
	}

	if err := loader.Load(); err != nil {
		return nil, err
	}
	return loader, nil
}

// GetEnv retrieves the running environment (APP_ENV > ENV > dev)
func GetEnv() string {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env
	}
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "dev"
}
