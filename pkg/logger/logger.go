package logger

import (
	"log/slog"
)

// Fields 日志附加上下文
type Fields map[string]any

// Logger 日志适配器接口
// 引擎只依赖这个接口，具体日志实现由业务方注入
type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, fields Fields)
}

// SlogLogger 基于标准库 log/slog 的默认实现
type SlogLogger struct {
	l *slog.Logger
}

// NewSlog 包装一个 *slog.Logger；传 nil 使用 slog.Default()
func NewSlog(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(msg string, fields Fields) { s.l.Debug(msg, args(fields)...) }
func (s *SlogLogger) Info(msg string, fields Fields)  { s.l.Info(msg, args(fields)...) }
func (s *SlogLogger) Warn(msg string, fields Fields)  { s.l.Warn(msg, args(fields)...) }
func (s *SlogLogger) Error(msg string, fields Fields) { s.l.Error(msg, args(fields)...) }

func args(fields Fields) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

// NopLogger 空实现，测试和未注入日志时使用
type NopLogger struct{}

func NewNop() *NopLogger { return &NopLogger{} }

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
