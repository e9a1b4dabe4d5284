// internal/service/indexer/interfaces/audit_poller.go
package interfaces

import (
	"context"
	"time"

	"chowfast/internal/pkg/logger"
	"chowfast/internal/service/indexer/application"
	ledger "chowfast/internal/service/ledger/domain"
)

// AuditSource 按 seq 分页提供审计记录
type AuditSource interface {
	Fetch(ctx context.Context, after uint64, limit int) ([]*ledger.Envelope, error)
}

// AuditPoller 在没有 Kafka 的部署中直接轮询账本的审计日志驱动投影。
// 每轮从检查点之后开始拉取，拉满一页时立即拉下一页。
type AuditPoller struct {
	source    AuditSource
	projector *application.Projector
	interval  time.Duration
	pageSize  int
}

func NewAuditPoller(source AuditSource, projector *application.Projector, interval time.Duration, pageSize int) *AuditPoller {
	if pageSize <= 0 {
		pageSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &AuditPoller{source: source, projector: projector, interval: interval, pageSize: pageSize}
}

func (p *AuditPoller) Run(ctx context.Context) error {
	log := logger.Ctx(ctx)
	log.Info().Dur("interval", p.interval).Msg("✅ Audit poller started")
	defer log.Info().Msg("🛑 Audit poller shutting down.")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("❌ audit poll failed, retrying")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll 拉取并应用检查点之后的全部记录，返回应用的条数
func (p *AuditPoller) Poll(ctx context.Context) (int, error) {
	applied := 0
	for {
		after, err := p.projector.Checkpoint(ctx)
		if err != nil {
			return applied, err
		}
		records, err := p.source.Fetch(ctx, after, p.pageSize)
		if err != nil {
			return applied, err
		}
		for _, env := range records {
			if _, err := p.projector.Apply(ctx, env); err != nil {
				return applied, err
			}
			applied++
		}
		if len(records) < p.pageSize || records[len(records)-1].Seq <= after {
			return applied, nil
		}
	}
}
