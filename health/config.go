package health

import "time"

// Config 健康检查配置（yaml key: health）
type Config struct {
	// Enabled 关闭后不注册 /health 路由
	Enabled bool `mapstructure:"enabled"`

	// Timeout 单次聚合检查的超时
	Timeout time.Duration `mapstructure:"timeout"`

	// RequireRedis Redis 故障时报告 unhealthy 而不是 degraded
	RequireRedis bool `mapstructure:"require_redis"`
}

// DefaultConfig 限流器在 Redis 故障时放行，因此 Redis 默认为可选依赖
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Timeout: 5 * time.Second,
	}
}
