package logger

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// ManagerConfig 全局日志配置（所有模块共享）
type ManagerConfig struct {
	BaseLogDir    string `mapstructure:"base_log_dir"` // 日志根目录（默认 logs/）
	Level         string `mapstructure:"level"`
	AppName       string `mapstructure:"app_name"` // 应用名（自动注入所有日志）
	Encoding      string `mapstructure:"encoding"` // json 或 console
	EnableConsole bool   `mapstructure:"enable_console"`
	EnableFile    bool   `mapstructure:"enable_file"`
	DateFormat    string `mapstructure:"date_format"`
	MaxSize       int    `mapstructure:"max_size"`    // 单个文件最大尺寸（MB）
	MaxBackups    int    `mapstructure:"max_backups"` // 保留旧文件数量
	MaxAge        int    `mapstructure:"max_age"`     // 保留天数
	Compress      bool   `mapstructure:"compress"`
	EnableCaller  bool   `mapstructure:"enable_caller"`

	// Trace ID 配置
	EnableTraceID    bool   `mapstructure:"enable_trace_id"`
	TraceIDKey       string `mapstructure:"trace_id_key"`        // context 中的 key（默认 "trace_id"）
	TraceIDFieldName string `mapstructure:"trace_id_field_name"` // 日志字段名（默认 "trace_id"）
}

// DefaultManagerConfig 默认配置
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BaseLogDir:       "logs",
		Level:            "info",
		Encoding:         "json",
		EnableConsole:    true,
		EnableFile:       false,
		DateFormat:       "2006-01-02",
		MaxSize:          100,
		MaxBackups:       3,
		MaxAge:           28,
		Compress:         true,
		EnableCaller:     true,
		EnableTraceID:    true,
		TraceIDKey:       "trace_id",
		TraceIDFieldName: "trace_id",
	}
}

// ApplyDefaults 零值字段填充默认值（原地修改）
func (c *ManagerConfig) ApplyDefaults() {
	d := DefaultManagerConfig()

	if c.BaseLogDir == "" {
		c.BaseLogDir = d.BaseLogDir
	}
	if c.Level == "" {
		c.Level = d.Level
	}
	if c.Encoding == "" {
		c.Encoding = d.Encoding
	}
	if c.DateFormat == "" {
		c.DateFormat = d.DateFormat
	}
	if c.MaxSize == 0 {
		c.MaxSize = d.MaxSize
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = d.MaxBackups
	}
	if c.MaxAge == 0 {
		c.MaxAge = d.MaxAge
	}
	if c.TraceIDKey == "" {
		c.TraceIDKey = d.TraceIDKey
	}
	if c.TraceIDFieldName == "" {
		c.TraceIDFieldName = d.TraceIDFieldName
	}
	// 控制台和文件都关闭时日志会被吞掉，兜底打开控制台
	if !c.EnableConsole && !c.EnableFile {
		c.EnableConsole = true
	}
}

// Validate 验证配置
func (c ManagerConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	if c.Encoding != "json" && c.Encoding != "console" {
		return fmt.Errorf("invalid encoding: %s (must be json or console)", c.Encoding)
	}
	if c.MaxSize < 0 || c.MaxBackups < 0 || c.MaxAge < 0 {
		return fmt.Errorf("max_size/max_backups/max_age must be >= 0")
	}
	return nil
}

// ParseLevel 解析日志级别，无法识别时返回 info
func ParseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// filePath 返回模块日志文件路径：logs/<module>/<module>-<level>-<date>.log
func (c ManagerConfig) filePath(module, level string) string {
	name := fmt.Sprintf("%s-%s-%s.log", module, level, time.Now().Format(c.DateFormat))
	return filepath.Join(c.BaseLogDir, module, name)
}
