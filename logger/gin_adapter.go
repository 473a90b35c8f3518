package logger

import (
	"strings"
)

// GinLogWriter routes gin's own text output (route table, debug warnings)
// into a module logger. Assign it to gin.DefaultWriter and gin.DefaultErrorWriter.
type GinLogWriter struct {
	log *CtxZapLogger
}

// NewGinLogWriter creates the adapter
func NewGinLogWriter(log *CtxZapLogger) *GinLogWriter {
	return &GinLogWriter{log: log}
}

// Write implements io.Writer; one call is one gin log line
func (w *GinLogWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	switch {
	case strings.Contains(msg, "[WARNING]"):
		w.log.Warn(msg)
	case strings.Contains(msg, "[GIN-debug]"):
		w.log.Debug(msg)
	case strings.Contains(msg, "[Recovery]"), strings.Contains(msg, "panic recovered"):
		w.log.Error(msg)
	default:
		w.log.Info(msg)
	}

	return len(p), nil
}
