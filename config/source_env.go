package config

import (
	"os"
	"strings"
)

// EnvSource 环境变量数据源
//
// 配置 key 中本身带下划线（redis.max_capacity），无法从 THROTTLE_REDIS_MAX_CAPACITY
// 反推，因此只读取显式绑定的 key。
type EnvSource struct {
	prefix   string // 环境变量前缀，如 "THROTTLE"
	priority int
	bindings map[string]string // "redis.max_capacity" -> "REDIS_MAX_CAPACITY"
}

// NewEnvSource 创建环境变量数据源
func NewEnvSource(prefix string, priority int) *EnvSource {
	return &EnvSource{
		prefix:   prefix,
		priority: priority,
		bindings: make(map[string]string),
	}
}

// AddBinding 添加 key 映射
func (s *EnvSource) AddBinding(key, envKey string) {
	s.bindings[key] = envKey
}

// BindKeys 按约定绑定：点号换成下划线并转大写
func (s *EnvSource) BindKeys(keys ...string) {
	for _, key := range keys {
		s.bindings[key] = EnvKey(key)
	}
}

// EnvKey redis.max_capacity -> REDIS_MAX_CAPACITY
func EnvKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Name 数据源名称
func (s *EnvSource) Name() string {
	return "env:" + s.prefix
}

// Priority 优先级
func (s *EnvSource) Priority() int {
	return s.priority
}

// Load 加载环境变量配置，空值视为未设置
func (s *EnvSource) Load() (map[string]interface{}, error) {
	result := make(map[string]interface{})

	for key, envKey := range s.bindings {
		fullEnvKey := envKey
		if s.prefix != "" && !strings.HasPrefix(envKey, s.prefix+"_") {
			fullEnvKey = s.prefix + "_" + envKey
		}
		if value := os.Getenv(fullEnvKey); value != "" {
			result[key] = value
		}
	}

	return result, nil
}
