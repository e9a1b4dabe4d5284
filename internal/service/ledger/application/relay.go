// internal/service/ledger/application/relay.go
package application

import (
	"context"
	"time"

	"chowfast/internal/pkg/logger"
	"chowfast/internal/pkg/metrics"
	"chowfast/internal/service/ledger/domain"
	"chowfast/internal/service/ledger/domain/port"
)

// AuditRelay 把审计日志中尚未投递的记录按 seq 顺序推给 EventSink，成功后标记为已投递。
// 投递语义是至少一次，消费端按 seq 去重。多实例部署时由 Leadership 保证只有一个中继在跑。
type AuditRelay struct {
	uow      domain.UnitOfWork
	sink     port.EventSink
	leader   port.Leadership
	interval time.Duration
	batch    int
	wake     chan struct{}
}

func NewAuditRelay(uow domain.UnitOfWork, sink port.EventSink, leader port.Leadership, interval time.Duration, batch int) *AuditRelay {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &AuditRelay{
		uow:      uow,
		sink:     sink,
		leader:   leader,
		interval: interval,
		batch:    batch,
		wake:     make(chan struct{}, 1),
	}
}

// Notify 唤醒中继立即投递，不阻塞
func (r *AuditRelay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run 竞选 leader 后循环投递，直到 ctx 结束
func (r *AuditRelay) Run(ctx context.Context) error {
	log := logger.Ctx(ctx)
	for {
		err := r.leader.Lock()
		if err == nil {
			break
		}
		log.Warn().Err(err).Msg("⚠️ Audit relay waiting for leadership")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.interval):
		}
	}
	defer func() {
		if err := r.leader.Unlock(); err != nil {
			log.Warn().Err(err).Msg("Failed to release audit relay leadership")
		}
	}()
	log.Info().Msg("✅ Audit relay started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("❌ Audit relay flush failed, will retry")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("🛑 Audit relay shutting down.")
			return nil
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// Flush 投递所有未投递的记录，返回本次投递的条数
func (r *AuditRelay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		var batch []*domain.Envelope
		err := r.uow.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
			var err error
			batch, err = tx.Unpublished(ctx, r.batch)
			return err
		})
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}
		if err := r.sink.Publish(ctx, batch...); err != nil {
			return total, err
		}
		last := batch[len(batch)-1].Seq
		if err := r.uow.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
			// 与账本写事务相同的加锁顺序
			if _, err := tx.LoadMeta(ctx); err != nil {
				return err
			}
			return tx.MarkPublished(ctx, last)
		}); err != nil {
			return total, err
		}
		metrics.AddPublished(len(batch))
		total += len(batch)
		if len(batch) < r.batch {
			return total, nil
		}
	}
}
