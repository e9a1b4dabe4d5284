// internal/service/ledger/infrastructure/log_sink.go
package infrastructure

import (
	"context"

	"chowfast/internal/pkg/logger"
	"chowfast/internal/service/ledger/domain"
	"chowfast/internal/service/ledger/domain/port"
)

// LogSink 把审计记录写到日志，未配置 Kafka 时使用
type LogSink struct{}

func (LogSink) Publish(ctx context.Context, envelopes ...*domain.Envelope) error {
	for _, env := range envelopes {
		logger.Ctx(ctx).Info().
			Uint64("seq", env.Seq).
			Str("event_id", env.EventID).
			Str("kind", string(env.Kind)).
			Uint64("order_id", env.OrderID).
			RawJSON("payload", env.Payload).
			Msg("📒 audit record")
	}
	return nil
}

// MultiSink 依次投递到多个 sink，任一失败即返回（整批会被中继重试）
type MultiSink []port.EventSink

func (m MultiSink) Publish(ctx context.Context, envelopes ...*domain.Envelope) error {
	for _, s := range m {
		if err := s.Publish(ctx, envelopes...); err != nil {
			return err
		}
	}
	return nil
}
