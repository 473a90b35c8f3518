package config

import (
	"github.com/spf13/pflag"
)

// FlagSource command line argument data source
// Only flags the user explicitly changed are reported, so defaults declared on
// the flag set never shadow file or env values.
type FlagSource struct {
	flags    *pflag.FlagSet
	priority int
	bindings map[string]string // flag name -> configuration key
}

// NewFlagSource creates command line argument data source
func NewFlagSource(flags *pflag.FlagSet, priority int) *FlagSource {
	return &FlagSource{
		flags:    flags,
		priority: priority,
		bindings: make(map[string]string),
	}
}

// Bind maps a flag (e.g. "redis-addr") to a configuration key (e.g. "redis.addr")
func (s *FlagSource) Bind(flag, key string) *FlagSource {
	s.bindings[flag] = key
	return s
}

// Name data source name
func (s *FlagSource) Name() string {
	return "flags"
}

// Priority priority
func (s *FlagSource) Priority() int {
	return s.priority
}

// Load command line argument configuration
func (s *FlagSource) Load() (map[string]interface{}, error) {
	result := make(map[string]interface{})
	if s.flags == nil {
		return result, nil
	}

	for name, key := range s.bindings {
		if !s.flags.Changed(name) {
			continue
		}
		if f := s.flags.Lookup(name); f != nil {
			result[key] = f.Value.String()
		}
	}

	return result, nil
}
