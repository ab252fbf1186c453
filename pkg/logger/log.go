package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Log struct {
	*slog.LevelVar
	*slog.Logger
}

// Logger 全局日志实例,普通事件写 stdout,WARN 及以上写 stderr
var Logger *Log

func init() {
	Logger = New(os.Stdout, os.Stderr)
	Logger.SetLogLevel("info")
}

// New 创建一个按级别分流的日志实例,低于 WARN 的记录写入 out,其余写入errOut
func New(out, errOut io.Writer) *Log {
	logLevel := &slog.LevelVar{}
	opts := &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{Key: "timestamp", Value: slog.TimeValue(a.Value.Time())}
			}
			return a
		},
	}
	return &Log{
		LevelVar: logLevel,
		Logger: slog.New(&splitHandler{
			out: slog.NewTextHandler(out, opts),
			err: slog.NewTextHandler(errOut, opts),
		}),
	}
}

// SetLogLevel 设置日志级别,无法识别的级别返回 false 且不做修改
func (l *Log) SetLogLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l.Set(slog.LevelDebug)
	case "info":
		l.Set(slog.LevelInfo)
	case "warn":
		l.Set(slog.LevelWarn)
	case "error":
		l.Set(slog.LevelError)
	default:
		return false
	}
	return true
}

func (l *Log) Fatal(msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}

// splitHandler 根据级别把记录交给不同的 handler
type splitHandler struct {
	out slog.Handler
	err slog.Handler
}

func (h *splitHandler) pick(level slog.Level) slog.Handler {
	if level >= slog.LevelWarn {
		return h.err
	}
	return h.out
}

func (h *splitHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.pick(level).Enabled(ctx, level)
}

func (h *splitHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.pick(r.Level).Handle(ctx, r)
}

func (h *splitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &splitHandler{out: h.out.WithAttrs(attrs), err: h.err.WithAttrs(attrs)}
}

func (h *splitHandler) WithGroup(name string) slog.Handler {
	return &splitHandler{out: h.out.WithGroup(name), err: h.err.WithGroup(name)}
}
