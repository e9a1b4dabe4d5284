package port

import (
	"context"

	"chowfast/internal/service/ledger/domain"
)

// EventSink 是审计记录的出站端口。
// 审计中继按 seq 顺序调用 Publish，实现可以是 Kafka、WebSocket 或日志。
type EventSink interface {
	Publish(ctx context.Context, envelopes ...*domain.Envelope) error
}
