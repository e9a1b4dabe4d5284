// internal/service/ledger/application/service.go
package application

import (
	"context"
	"time"

	"chowfast/internal/pkg/logger"
	"chowfast/internal/pkg/metrics"
	"chowfast/internal/service/ledger/domain"
	"chowfast/internal/service/ledger/domain/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LedgerService 编排一次账本调用：开启事务、把附带金额存入托管账户、执行状态机、
// 把审计记录与状态变更一起提交。任何一步失败，整次调用不留痕迹。
type LedgerService struct {
	uow        domain.UnitOfWork
	ledger     *domain.Ledger
	clock      port.Clock
	recipients port.RecipientGuard
	custody    domain.Address
	tracer     trace.Tracer
	onCommit   func()
}

type ServiceOption func(*LedgerService)

// WithRecipientGuard 设置收款方校验，拒收的转账会失败
func WithRecipientGuard(g port.RecipientGuard) ServiceOption {
	return func(s *LedgerService) { s.recipients = g }
}

// WithCommitHook 在产生了审计记录的调用提交后回调（用于唤醒审计中继）
func WithCommitHook(fn func()) ServiceOption {
	return func(s *LedgerService) { s.onCommit = fn }
}

func NewLedgerService(uow domain.UnitOfWork, ledger *domain.Ledger, clock port.Clock, custody domain.Address, tracer trace.Tracer, opts ...ServiceOption) *LedgerService {
	s := &LedgerService{uow: uow, ledger: ledger, clock: clock, custody: custody, tracer: tracer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Custody 返回托管资金池的地址
func (s *LedgerService) Custody() domain.Address { return s.custody }

// callEnv 是 domain.Env 在一次事务内的实现
type callEnv struct {
	tx      domain.Tx
	caller  domain.Address
	value   domain.Amount
	now     int64
	custody domain.Address
	guard   port.RecipientGuard
	staged  []domain.Record
}

func (e *callEnv) Caller() domain.Address  { return e.caller }
func (e *callEnv) Value() domain.Amount    { return e.value }
func (e *callEnv) Now() int64              { return e.now }
func (e *callEnv) Custody() domain.Address { return e.custody }

func (e *callEnv) Balance(ctx context.Context) (domain.Amount, error) {
	return e.tx.BalanceOf(ctx, e.custody)
}

func (e *callEnv) Transfer(ctx context.Context, to domain.Address, amount domain.Amount) error {
	if e.guard != nil && !e.guard.Accepts(to) {
		return domain.ErrTransferRejected
	}
	return e.tx.Move(ctx, e.custody, to, amount)
}

func (e *callEnv) Emit(rec domain.Record) {
	e.staged = append(e.staged, rec)
}

// execute 是所有写操作的公共骨架
func (s *LedgerService) execute(ctx context.Context, op string, call Call, payable bool, fn func(ctx context.Context, env *callEnv) error) (err error) {
	ctx, span := s.tracer.Start(ctx, "ledger."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("ledger.caller", call.Caller.String()),
		attribute.String("ledger.value", call.Value.String()),
	)
	started := time.Now()
	defer func() { s.observe(ctx, span, op, started, err) }()

	// 托管地址不能作为调用者，否则存入和退款都是自转账
	if call.Caller.IsZero() || call.Caller == s.custody {
		return domain.ErrInvalidAddress
	}
	if !payable && call.Value > 0 {
		return domain.ErrNotPayable
	}

	now := s.clock.Now()
	var (
		custodyAfter domain.Amount
		emitted      int
	)
	err = s.uow.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		// 所有写事务先锁 meta 行，再碰账户行
		if _, err := tx.LoadMeta(ctx); err != nil {
			return err
		}
		// 附带金额先进入托管账户，之后的退款/转出都从托管账户出
		if call.Value > 0 {
			if err := tx.Move(ctx, call.Caller, s.custody, call.Value); err != nil {
				return err
			}
		}
		env := &callEnv{tx: tx, caller: call.Caller, value: call.Value, now: now, custody: s.custody, guard: s.recipients}
		if err := fn(ctx, env); err != nil {
			return err
		}
		if len(env.staged) > 0 {
			envelopes := make([]*domain.Envelope, 0, len(env.staged))
			for _, rec := range env.staged {
				e, err := domain.NewEnvelope(rec, uuid.NewString(), now)
				if err != nil {
					return err
				}
				envelopes = append(envelopes, e)
			}
			if err := tx.Append(ctx, envelopes...); err != nil {
				return err
			}
			emitted = len(envelopes)
		}
		bal, err := tx.BalanceOf(ctx, s.custody)
		if err != nil {
			return err
		}
		custodyAfter = bal
		return nil
	})
	if err != nil {
		return err
	}

	metrics.SetCustodyBalance(uint64(custodyAfter))
	span.SetAttributes(attribute.Int("ledger.records", emitted))
	if emitted > 0 && s.onCommit != nil {
		s.onCommit()
	}
	return nil
}

// query 是只读操作的公共骨架
func (s *LedgerService) query(ctx context.Context, op string, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	ctx, span := s.tracer.Start(ctx, "ledger."+op)
	defer span.End()
	started := time.Now()
	defer func() { s.observe(ctx, span, op, started, err) }()
	return s.uow.Atomic(ctx, fn)
}

func (s *LedgerService) observe(ctx context.Context, span trace.Span, op string, started time.Time, err error) {
	if err == nil {
		metrics.ObserveOperation(op, "ok", started)
		return
	}
	outcome := domain.CodeOf(err)
	if outcome == "" {
		outcome = "internal"
		logger.Ctx(ctx).Error().Err(err).Str("op", op).Msg("❌ Ledger operation failed")
	} else {
		logger.Ctx(ctx).Info().Str("op", op).Str("code", outcome).Msg("Ledger operation rejected")
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	metrics.ObserveOperation(op, outcome, started)
}

// Init 设置管理员，已初始化时返回 false 且不做任何修改
func (s *LedgerService) Init(ctx context.Context, call Call) (bool, error) {
	var initialized bool
	err := s.execute(ctx, "init", call, false, func(ctx context.Context, env *callEnv) error {
		var err error
		initialized, err = s.ledger.Init(ctx, env, env.tx)
		return err
	})
	if err == nil && initialized {
		logger.Ctx(ctx).Info().Str("owner", call.Caller.String()).Msg("✅ Ledger initialized")
	}
	return initialized, err
}

func (s *LedgerService) CreateOrder(ctx context.Context, call Call, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	var resp *CreateOrderResponse
	err := s.execute(ctx, "create_order", call, true, func(ctx context.Context, env *callEnv) error {
		id, err := s.ledger.CreateOrder(ctx, env, env.tx, req.toInput())
		if err != nil {
			return err
		}
		total, _ := req.Subtotal.CheckedAdd(s.ledger.FixedFee())
		resp = &CreateOrderResponse{OrderID: id, Total: total, Refunded: call.Value - total}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().
		Uint64("order_id", resp.OrderID).
		Str("buyer", call.Caller.String()).
		Str("total", resp.Total.String()).
		Str("refunded", resp.Refunded.String()).
		Msg("Order created")
	return resp, nil
}

func (s *LedgerService) UpdateOrderStatus(ctx context.Context, call Call, orderID uint64, status domain.OrderStatus) error {
	return s.updateOrderStatus(ctx, call, orderID, func() (domain.OrderStatus, error) { return status, nil })
}

// UpdateOrderStatusText 接收未解析的状态名或序号。管理员校验先于解析，非管理员总是得到 NotOwner。
func (s *LedgerService) UpdateOrderStatusText(ctx context.Context, call Call, orderID uint64, raw string) (domain.OrderStatus, error) {
	var status domain.OrderStatus
	err := s.updateOrderStatus(ctx, call, orderID, func() (domain.OrderStatus, error) {
		var err error
		status, err = domain.ParseOrderStatus(raw)
		return status, err
	})
	return status, err
}

func (s *LedgerService) updateOrderStatus(ctx context.Context, call Call, orderID uint64, parse func() (domain.OrderStatus, error)) error {
	var status domain.OrderStatus
	err := s.execute(ctx, "update_order_status", call, false, func(ctx context.Context, env *callEnv) error {
		if _, err := domain.RequireOwner(ctx, env, env.tx); err != nil {
			return err
		}
		var err error
		if status, err = parse(); err != nil {
			return err
		}
		return s.ledger.UpdateOrderStatus(ctx, env, env.tx, orderID, status)
	})
	if err == nil {
		logger.Ctx(ctx).Info().Uint64("order_id", orderID).Str("status", status.String()).Msg("Order status updated")
	}
	return err
}

func (s *LedgerService) CancelOrder(ctx context.Context, call Call, orderID uint64) error {
	err := s.execute(ctx, "cancel_order", call, false, func(ctx context.Context, env *callEnv) error {
		return s.ledger.CancelOrder(ctx, env, env.tx, orderID)
	})
	if err == nil {
		logger.Ctx(ctx).Info().Uint64("order_id", orderID).Str("buyer", call.Caller.String()).Msg("Order cancelled and refunded")
	}
	return err
}

func (s *LedgerService) Withdraw(ctx context.Context, call Call) (domain.Amount, error) {
	var amount domain.Amount
	err := s.execute(ctx, "withdraw", call, false, func(ctx context.Context, env *callEnv) error {
		var err error
		amount, err = s.ledger.Withdraw(ctx, env, env.tx)
		return err
	})
	if err != nil {
		return 0, err
	}
	logger.Ctx(ctx).Info().Str("owner", call.Caller.String()).Str("amount", amount.String()).Msg("💰 Funds withdrawn")
	return amount, nil
}

func (s *LedgerService) TransferOwnership(ctx context.Context, call Call, newOwner domain.Address) error {
	return s.transferOwnership(ctx, call, func() (domain.Address, error) { return newOwner, nil })
}

// TransferOwnershipText 接收未解析的地址文本，与 UpdateOrderStatusText 一样先校验管理员
func (s *LedgerService) TransferOwnershipText(ctx context.Context, call Call, raw string) (domain.Address, error) {
	var newOwner domain.Address
	err := s.transferOwnership(ctx, call, func() (domain.Address, error) {
		var err error
		newOwner, err = domain.ParseAddress(raw)
		return newOwner, err
	})
	return newOwner, err
}

// transferOwnership 不产生审计记录，这里用日志留痕
func (s *LedgerService) transferOwnership(ctx context.Context, call Call, parse func() (domain.Address, error)) error {
	var newOwner domain.Address
	err := s.execute(ctx, "transfer_ownership", call, false, func(ctx context.Context, env *callEnv) error {
		if _, err := domain.RequireOwner(ctx, env, env.tx); err != nil {
			return err
		}
		var err error
		if newOwner, err = parse(); err != nil {
			return err
		}
		return s.ledger.TransferOwnership(ctx, env, env.tx, newOwner)
	})
	if err == nil {
		logger.Ctx(ctx).Warn().Str("from", call.Caller.String()).Str("to", newOwner.String()).Msg("⚠️ Ledger ownership transferred")
	}
	return err
}

func (s *LedgerService) Owner(ctx context.Context) (domain.Address, error) {
	var owner domain.Address
	err := s.query(ctx, "owner", func(ctx context.Context, tx domain.Tx) error {
		var err error
		owner, err = s.ledger.Owner(ctx, tx)
		return err
	})
	if owner == "" {
		owner = domain.ZeroAddress
	}
	return owner, err
}

func (s *LedgerService) TotalOrders(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.query(ctx, "total_orders", func(ctx context.Context, tx domain.Tx) error {
		var err error
		n, err = s.ledger.TotalOrders(ctx, tx)
		return err
	})
	return n, err
}

// TransactionFee 返回每笔订单的固定手续费
func (s *LedgerService) TransactionFee() domain.Amount {
	return s.ledger.FixedFee()
}

// Order 返回订单摘要。商品明细只在审计记录里。
func (s *LedgerService) Order(ctx context.Context, orderID uint64) (*OrderSummary, error) {
	var summary *OrderSummary
	err := s.query(ctx, "get_order", func(ctx context.Context, tx domain.Tx) error {
		o, err := s.ledger.Order(ctx, tx, orderID)
		if err != nil {
			return err
		}
		summary = toOrderSummary(o, s.clock.Now(), s.ledger.GraceWindow())
		return nil
	})
	return summary, err
}

// CancelDeadline 返回买家可以自助取消的最后时刻（含）
func (s *LedgerService) CancelDeadline(ctx context.Context, orderID uint64) (int64, error) {
	summary, err := s.Order(ctx, orderID)
	if err != nil {
		return 0, err
	}
	return summary.CancelDeadline, nil
}

// AuditRecords 返回 seq > from 的审计记录
func (s *LedgerService) AuditRecords(ctx context.Context, from uint64, limit int) ([]*domain.Envelope, error) {
	var records []*domain.Envelope
	err := s.query(ctx, "audit_records", func(ctx context.Context, tx domain.Tx) error {
		var err error
		records, err = tx.Records(ctx, from, limit)
		return err
	})
	return records, err
}

// Balance 返回某个身份的余额，托管地址返回资金池余额
func (s *LedgerService) Balance(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	var bal domain.Amount
	err := s.query(ctx, "balance", func(ctx context.Context, tx domain.Tx) error {
		var err error
		bal, err = tx.BalanceOf(ctx, addr)
		return err
	})
	return bal, err
}

// Deposit 为某个身份的钱包充值。这是执行环境的操作，不经过账本状态机。
func (s *LedgerService) Deposit(ctx context.Context, addr domain.Address, amount domain.Amount) (domain.Amount, error) {
	if addr.IsZero() || addr == s.custody {
		return 0, domain.ErrInvalidAddress
	}
	if amount == 0 {
		return 0, domain.ErrZeroAmount
	}
	var bal domain.Amount
	err := s.query(ctx, "deposit", func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.LoadMeta(ctx); err != nil {
			return err
		}
		if err := tx.Mint(ctx, addr, amount); err != nil {
			return err
		}
		var err error
		bal, err = tx.BalanceOf(ctx, addr)
		return err
	})
	return bal, err
}
