// internal/service/indexer/application/projector.go
package application

import (
	"context"
	"errors"
	"sync"

	"chowfast/internal/pkg/logger"
	"chowfast/internal/pkg/metrics"
	"chowfast/internal/service/indexer/domain"
	ledger "chowfast/internal/service/ledger/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Notifier 在视图变化后被调用（例如推送给后厨大屏）
type Notifier interface {
	Notify(ctx context.Context, view *domain.OrderView)
}

// Projector 按 seq 顺序把审计记录应用到订单视图。
// seq 不大于检查点的记录直接跳过，因此重复投递是幂等的。
type Projector struct {
	store       domain.ViewStore
	graceWindow int64
	notifier    Notifier
	tracer      trace.Tracer
	mu          sync.Mutex
}

func NewProjector(store domain.ViewStore, graceWindow int64, tracer trace.Tracer, notifier Notifier) *Projector {
	return &Projector{store: store, graceWindow: graceWindow, tracer: tracer, notifier: notifier}
}

// Apply 应用一条记录，返回是否产生了变化。
// 无法解析的记录和引用未知订单的记录只记日志，检查点照常推进。
func (p *Projector) Apply(ctx context.Context, env *ledger.Envelope) (bool, error) {
	ctx, span := p.tracer.Start(ctx, "indexer.Apply", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.Int64("audit.seq", int64(env.Seq)),
		attribute.String("audit.kind", string(env.Kind)),
	)

	p.mu.Lock()
	defer p.mu.Unlock()

	log := logger.Ctx(ctx).With().Uint64("seq", env.Seq).Str("kind", string(env.Kind)).Logger()

	checkpoint, err := p.store.Checkpoint(ctx)
	if err != nil {
		return false, err
	}
	if env.Seq <= checkpoint {
		log.Debug().Uint64("checkpoint", checkpoint).Msg("duplicate audit record skipped")
		return false, nil
	}
	if env.Seq > checkpoint+1 {
		log.Warn().Uint64("checkpoint", checkpoint).Msg("⚠️ gap in audit sequence")
	}

	view, err := p.project(ctx, env)
	if err != nil {
		return false, err
	}
	if err := p.store.Apply(ctx, env.Seq, view); err != nil {
		return false, err
	}
	metrics.IncApplied(string(env.Kind))
	if view != nil && p.notifier != nil {
		p.notifier.Notify(ctx, view)
	}
	return view != nil, nil
}

// project 计算记录应用后的视图；返回 nil 表示没有视图需要写入
func (p *Projector) project(ctx context.Context, env *ledger.Envelope) (*domain.OrderView, error) {
	log := logger.Ctx(ctx).With().Uint64("seq", env.Seq).Str("kind", string(env.Kind)).Logger()

	rec, err := env.Decode()
	if err != nil {
		log.Error().Err(err).Msg("❌ undecodable audit record skipped")
		return nil, nil
	}

	var view *domain.OrderView
	switch r := rec.(type) {
	case *ledger.OrderCreated:
		view = domain.NewOrderView(r, p.graceWindow)
	case *ledger.PaymentReceived:
		if view, err = p.lookup(ctx, r.OrderID); view != nil {
			view.Paid = r.Amount
		}
	case *ledger.OrderStatusUpdated:
		if view, err = p.lookup(ctx, r.OrderID); view != nil {
			view.SetStatus(r.NewStatus, r.Timestamp)
		}
	case *ledger.FundsWithdrawn:
		log.Info().Str("owner", r.Owner.String()).Str("amount", r.Amount.String()).Msg("funds withdrawn")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if view != nil {
		view.LastSeq = env.Seq
	}
	return view, nil
}

func (p *Projector) lookup(ctx context.Context, orderID uint64) (*domain.OrderView, error) {
	view, err := p.store.Get(ctx, orderID)
	if errors.Is(err, domain.ErrViewNotFound) {
		logger.Ctx(ctx).Warn().Uint64("order_id", orderID).Msg("⚠️ audit record for unknown order skipped")
		return nil, nil
	}
	return view, err
}

// Order 返回订单视图
func (p *Projector) Order(ctx context.Context, orderID uint64) (*domain.OrderView, error) {
	return p.store.Get(ctx, orderID)
}

// OrdersByBuyer 返回买家的订单视图
func (p *Projector) OrdersByBuyer(ctx context.Context, buyer string, limit int) ([]*domain.OrderView, error) {
	return p.store.ListByBuyer(ctx, buyer, limit)
}

// Checkpoint 返回已应用到的 seq
func (p *Projector) Checkpoint(ctx context.Context) (uint64, error) {
	return p.store.Checkpoint(ctx)
}
