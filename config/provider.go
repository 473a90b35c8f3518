package config

import (
	"fmt"

	"github.com/samber/do/v2"
)

// ProvideLoaderOptions 创建 Loader 的选项
type ProvideLoaderOptions struct {
	ConfigPath string      // 配置目录（config.yaml + <env>.yaml）
	ConfigFile string      // 显式指定的配置文件
	EnvPrefix  string      // 环境变量前缀，如 THROTTLE
	EnvKeys    []string    // 允许被环境变量覆盖的 key
	Flags      *FlagSource // 命令行参数（最高优先级）
	Defaults   map[string]interface{}
}

// ProvideLoader 创建 Config Loader Provider
// Config 是最底层组件，无任何依赖
func ProvideLoader(opts ProvideLoaderOptions) func(do.Injector) (*Loader, error) {
	return func(i do.Injector) (*Loader, error) {
		builder := NewLoaderBuilder().
			WithConfigPath(opts.ConfigPath).
			WithConfigFile(opts.ConfigFile).
			WithDefaults(opts.Defaults)
		if opts.EnvPrefix != "" {
			builder.WithEnvPrefix(opts.EnvPrefix, opts.EnvKeys...)
		}
		if opts.Flags != nil {
			builder.WithFlags(opts.Flags)
		}

		loader, err := builder.Build()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return loader, nil
	}
}
