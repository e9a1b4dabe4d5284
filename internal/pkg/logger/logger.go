// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var base atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(os.Stdout).With().Timestamp().Logger()
	base.Store(&l)
}

// Init 设置全局日志：服务名、级别（debug/info/warn/error），pretty 为 true 时输出彩色控制台格式
func Init(serviceName, level string, pretty bool) {
	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	l := zerolog.New(out).Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
	base.Store(&l)
}

// SetOutput 替换输出目标，主要用于测试
func SetOutput(w io.Writer) {
	l := base.Load().Output(w)
	base.Store(&l)
}

// Ctx 返回带有 trace_id / span_id 的 logger，便于与 Jaeger 链路关联
func Ctx(ctx context.Context) *zerolog.Logger {
	l := *base.Load()
	if ctx == nil {
		return &l
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With().
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Logger()
	}
	return &l
}

// L 返回不带上下文的全局 logger
func L() *zerolog.Logger {
	l := *base.Load()
	return &l
}
