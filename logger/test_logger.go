package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogs 测试专用的日志记录（记录到内存，便于断言）
//
//	log, logs := logger.NewTestLogger("redis")
//	pool, _ := redis.NewPool(cfg, log)
//	assert.True(t, logs.HasLog("error", "failed to close retired redis handle"))
type TestLogs struct {
	observed *observer.ObservedLogs
}

// NewTestLogger 创建记录到内存的 CtxZapLogger（debug 级别）
func NewTestLogger(module string) (*CtxZapLogger, *TestLogs) {
	core, observed := observer.New(zapcore.DebugLevel)
	return NewCtxZapLogger(zap.New(core), module), &TestLogs{observed: observed}
}

// HasLog 检查是否存在指定级别和消息的日志
func (t *TestLogs) HasLog(level, message string) bool {
	for _, e := range t.observed.All() {
		if e.Level.String() == level && e.Message == message {
			return true
		}
	}
	return false
}

// HasLogWithField 检查是否存在指定级别、消息和字段值的日志
func (t *TestLogs) HasLogWithField(level, message, key string, value interface{}) bool {
	for _, e := range t.observed.All() {
		if e.Level.String() != level || e.Message != message {
			continue
		}
		if v, ok := e.ContextMap()[key]; ok && v == value {
			return true
		}
	}
	return false
}

// CountLogs 统计指定级别的日志数量
func (t *TestLogs) CountLogs(level string) int {
	n := 0
	for _, e := range t.observed.All() {
		if e.Level.String() == level {
			n++
		}
	}
	return n
}

// Messages 返回全部日志消息（调试失败用例时使用）
func (t *TestLogs) Messages() []string {
	entries := t.observed.All()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}
