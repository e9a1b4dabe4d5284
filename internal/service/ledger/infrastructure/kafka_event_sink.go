// internal/service/ledger/infrastructure/kafka_event_sink.go
package infrastructure

import (
	"context"
	"encoding/json"

	"chowfast/internal/pkg/logger"
	"chowfast/internal/pkg/mq"
	"chowfast/internal/service/ledger/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// KafkaEventSink 把审计记录写入 Kafka。
// 所有消息使用同一个 Key（账本名），落在同一分区，消费端看到的顺序就是 seq 顺序。
type KafkaEventSink struct {
	writer *kafka.Writer
	key    []byte
}

func NewKafkaEventSink(writer *kafka.Writer, ledgerName string) *KafkaEventSink {
	return &KafkaEventSink{writer: writer, key: []byte(ledgerName)}
}

func (s *KafkaEventSink) Publish(ctx context.Context, envelopes ...*domain.Envelope) error {
	if len(envelopes) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(envelopes))
	for _, env := range envelopes {
		value, err := json.Marshal(env)
		if err != nil {
			return errors.Wrapf(err, "marshal audit record seq %d", env.Seq)
		}
		msg := kafka.Message{
			Key:   s.key,
			Value: value,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(env.EventID)},
				{Key: "kind", Value: []byte(env.Kind)},
			},
		}
		mq.InjectTraceContext(ctx, &msg.Headers)
		msgs = append(msgs, msg)
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		logger.Ctx(ctx).Error().Err(err).Int("count", len(msgs)).Msg("Failed to produce audit records to Kafka")
		return errors.Wrap(err, "produce audit records")
	}
	return nil
}

func (s *KafkaEventSink) Close() error {
	return s.writer.Close()
}
