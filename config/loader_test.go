package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type poolSection struct {
	Addr           string        `mapstructure:"addr"`
	MinCapacity    int           `mapstructure:"min_capacity"`
	MaxCapacity    int           `mapstructure:"max_capacity"`
	AdjustInterval time.Duration `mapstructure:"adjust_interval"`
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_PriorityMerge(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "config.yaml", `
redis:
  addr: redis:6379
  min_capacity: 5
  max_capacity: 50
  adjust_interval: 30s
`)

	loader := NewLoader()
	loader.AddSource(NewFileSource(file, 10))
	loader.AddSource(NewMapSource("defaults", 1, map[string]interface{}{
		"redis": map[string]interface{}{"addr": "localhost:6379", "max_capacity": 10},
	}))
	loader.AddSource(NewMapSource("override", 100, map[string]interface{}{
		"redis.max_capacity": 80,
	}))
	require.NoError(t, loader.Load())

	var cfg poolSection
	require.NoError(t, loader.Unmarshal("redis", &cfg))

	assert.Equal(t, "redis:6379", cfg.Addr)
	assert.Equal(t, 5, cfg.MinCapacity)
	assert.Equal(t, 80, cfg.MaxCapacity)
	assert.Equal(t, 30*time.Second, cfg.AdjustInterval)
	assert.Equal(t, []string{file}, loader.GetLoadedFiles())
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "config.yaml", "redis:\n  max_capacity: 50\n")
	t.Setenv("THROTTLE_REDIS_MAX_CAPACITY", "64")
	t.Setenv("THROTTLE_REDIS_ADJUST_INTERVAL", "5s")

	env := NewEnvSource("THROTTLE", 50)
	env.BindKeys("redis.max_capacity", "redis.adjust_interval", "redis.addr")

	loader := NewLoader()
	loader.AddSource(NewFileSource(file, 10))
	loader.AddSource(env)
	require.NoError(t, loader.Load())

	var cfg poolSection
	require.NoError(t, loader.Unmarshal("redis", &cfg))
	assert.Equal(t, 64, cfg.MaxCapacity)
	assert.Equal(t, 5*time.Second, cfg.AdjustInterval)
	assert.Empty(t, cfg.Addr)
}

func TestLoader_UnmarshalMissingKey(t *testing.T) {
	loader := NewLoader()
	require.NoError(t, loader.Load())

	cfg := poolSection{Addr: "keep"}
	require.NoError(t, loader.Unmarshal("redis", &cfg))
	assert.Equal(t, "keep", cfg.Addr)
	assert.False(t, loader.IsSet("redis"))
}

func TestLoader_MissingFileIsEmpty(t *testing.T) {
	loader := NewLoader()
	loader.AddSource(NewFileSource(filepath.Join(t.TempDir(), "absent.yaml"), 10))
	require.NoError(t, loader.Load())
	assert.Empty(t, loader.GetLoadedFiles())
}

func TestLoader_BrokenFile(t *testing.T) {
	file := writeFile(t, t.TempDir(), "config.yaml", "redis: [unclosed")
	loader := NewLoader()
	loader.AddSource(NewFileSource(file, 10))
	assert.Error(t, loader.Load())
}

func TestLoader_Getters(t *testing.T) {
	loader := NewLoader()
	loader.AddSource(NewMapSource("m", 1, map[string]interface{}{
		"server":  map[string]interface{}{"addr": ":8080"},
		"metrics": map[string]interface{}{"enabled": true},
		"limiter": map[string]interface{}{"base_limit": 20},
	}))
	require.NoError(t, loader.Load())

	assert.Equal(t, ":8080", loader.GetString("server.addr"))
	assert.True(t, loader.GetBool("metrics.enabled"))
	assert.Equal(t, 20, loader.GetInt("limiter.base_limit"))
	assert.NotNil(t, loader.GetViper())
}

func TestBuilder_Build(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "limiter:\n  base_limit: 20\n  window: 60s\n")
	writeFile(t, dir, "test.yaml", "limiter:\n  base_limit: 25\n")
	t.Setenv("APP_ENV", "test")
	t.Setenv("THROTTLE_LIMITER_MAX_LIMIT", "70")

	loader, err := NewLoaderBuilder().
		WithConfigPath(dir).
		WithEnvPrefix("THROTTLE", "limiter.max_limit").
		WithDefaults(map[string]interface{}{"limiter.max_limit": 50}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, 25, loader.GetInt("limiter.base_limit"))
	assert.Equal(t, 70, loader.GetInt("limiter.max_limit"))
	assert.Equal(t, "60s", loader.GetString("limiter.window"))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "REDIS_MAX_CAPACITY", EnvKey("redis.max_capacity"))
}

func TestGetEnv(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("ENV", "")
	assert.Equal(t, "dev", GetEnv())
	t.Setenv("ENV", "prod")
	assert.Equal(t, "prod", GetEnv())
}

type fakeValidator struct{ err error }

func (f fakeValidator) Validate() error { return f.err }

func TestValidateAll(t *testing.T) {
	boom := errors.New("boom")
	assert.NoError(t, ValidateAll(fakeValidator{}, fakeValidator{}))
	assert.ErrorIs(t, ValidateAll(fakeValidator{}, fakeValidator{err: boom}), boom)
}

func TestFlagSource_OnlyChangedFlags(t *testing.T) {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.String("redis-addr", "localhost:6379", "")
	fs.Int("max-capacity", 50, "")
	require.NoError(t, fs.Parse([]string{"--max-capacity=70"}))

	flags := NewFlagSource(fs, 100).
		Bind("redis-addr", "redis.addr").
		Bind("max-capacity", "redis.max_capacity")

	loader, err := NewLoaderBuilder().
		WithDefaults(map[string]interface{}{"redis.addr": "redis:6379", "redis.max_capacity": 50}).
		WithFlags(flags).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "redis:6379", loader.GetString("redis.addr"))
	assert.Equal(t, 70, loader.GetInt("redis.max_capacity"))
}
