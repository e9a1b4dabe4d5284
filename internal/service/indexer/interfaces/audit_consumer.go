// internal/service/indexer/interfaces/audit_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"chowfast/internal/pkg/logger"
	"chowfast/internal/pkg/mq"
	"chowfast/internal/service/indexer/application"
	ledger "chowfast/internal/service/ledger/domain"

	"github.com/segmentio/kafka-go"
)

// MessageReader 是 kafka.Reader 中消费者用到的部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AuditConsumer 是一个驱动适配器，它监听审计记录主题并驱动投影。
type AuditConsumer struct {
	reader     MessageReader
	projector  *application.Projector
	topic      string
	retryDelay time.Duration
}

func NewAuditConsumer(reader MessageReader, projector *application.Projector, topic string) *AuditConsumer {
	return &AuditConsumer{reader: reader, projector: projector, topic: topic, retryDelay: time.Second}
}

// Run 持续消费直到 ctx 结束。处理失败的消息不提交偏移量，原地重试。
func (c *AuditConsumer) Run(ctx context.Context) error {
	log := logger.Ctx(ctx)
	log.Info().Str("topic", c.topic).Msg("✅ Audit consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close kafka reader")
		}
		log.Info().Msg("🛑 Audit consumer shutting down.")
	}()

	for {
		// 使用 FetchMessage 而不是 ReadMessage，以便手动控制提交
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("could not fetch message, retrying")
			if !sleep(ctx, c.retryDelay) {
				return nil
			}
			continue
		}

		// FetchMessage 不会重新投递同一条消息，所以失败时原地重试，保证 seq 顺序
		for {
			err := c.process(ctx, msg)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("❌ failed to apply audit record, retrying")
			if !sleep(ctx, c.retryDelay) {
				return nil
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("failed to commit message")
		}
	}
}

// process 反序列化消息并交给投影
func (c *AuditConsumer) process(parent context.Context, msg kafka.Message) error {
	ctx := mq.ExtractTraceContext(parent, msg.Headers)
	var env ledger.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		// 格式错误的消息无法重试成功，跳过
		logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("malformed audit message skipped")
		return nil
	}
	_, err := c.projector.Apply(ctx, &env)
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
