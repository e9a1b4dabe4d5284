// internal/service/ledger/domain/ledger.go
package domain

import "context"

const (
	// DefaultFixedFee 是每笔订单固定收取的手续费（0.00001 ETH，单位 wei）
	DefaultFixedFee Amount = 10_000_000_000_000
	// DefaultGraceWindow 是买家自助取消的时间窗口（秒）
	DefaultGraceWindow int64 = 300
)

// Env 是一次调用的执行环境：调用者身份、附带金额、当前时间、托管余额、资金转移和审计记录输出。
// 由应用层按调用构造，账本本身不关心它们如何实现。
type Env interface {
	Caller() Address
	Value() Amount
	Now() int64
	// Custody 是资金池自身的地址，不能作为调用者或管理员
	Custody() Address
	// Balance 返回账本托管的资金池余额
	Balance(ctx context.Context) (Amount, error)
	// Transfer 从资金池转出，失败必须中止整个调用
	Transfer(ctx context.Context, to Address, amount Amount) error
	// Emit 记录一条审计记录，随调用一起提交
	Emit(rec Record)
}

// TransitionPolicy 是可选的状态流转策略。为 nil 时管理员可以写入任意状态（Cancelled 除外）。
type TransitionPolicy interface {
	Allow(from, to OrderStatus) (bool, error)
}

// CreateOrderInput 是下单参数。四个商品数组按下标一一对应。
type CreateOrderInput struct {
	ProductIDs   []string
	ProductNames []string
	Prices       []Amount
	Quantities   []uint64
	Subtotal     Amount
	DeliveryInfo string
}

// Ledger 是订单生命周期状态机与资金结算规则
type Ledger struct {
	fixedFee    Amount
	graceWindow int64
	policy      TransitionPolicy
}

type LedgerOption func(*Ledger)

// WithTransitionPolicy 为 UpdateOrderStatus 加上状态流转约束
func WithTransitionPolicy(p TransitionPolicy) LedgerOption {
	return func(l *Ledger) { l.policy = p }
}

func NewLedger(fixedFee Amount, graceWindow int64, opts ...LedgerOption) *Ledger {
	l := &Ledger{fixedFee: fixedFee, graceWindow: graceWindow}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) FixedFee() Amount   { return l.fixedFee }
func (l *Ledger) GraceWindow() int64 { return l.graceWindow }

// Init 设置管理员。管理员已存在时是空操作，返回 false。
// 计数器只在全新账本上为 0，已有订单时保持不变，避免重复分配订单号。
func (l *Ledger) Init(ctx context.Context, env Env, st State) (bool, error) {
	meta, err := st.LoadMeta(ctx)
	if err != nil {
		return false, err
	}
	if !meta.Owner.IsZero() {
		return false, nil
	}
	meta.Owner = env.Caller()
	if err := st.SaveMeta(ctx, meta); err != nil {
		return false, err
	}
	return true, nil
}

// CreateOrder 校验参数、收款、记账，多付部分退回调用者。
func (l *Ledger) CreateOrder(ctx context.Context, env Env, st State, in *CreateOrderInput) (uint64, error) {
	n := len(in.ProductIDs)
	if n == 0 {
		return 0, ErrNoItems
	}
	if len(in.ProductNames) != n || len(in.Prices) != n || len(in.Quantities) != n {
		return 0, ErrArrayLengthMismatch
	}
	if in.Subtotal == 0 {
		return 0, ErrZeroSubtotal
	}
	if in.DeliveryInfo == "" {
		return 0, ErrNoDeliveryInfo
	}
	total, err := in.Subtotal.CheckedAdd(l.fixedFee)
	if err != nil {
		return 0, err
	}
	paid := env.Value()
	if paid < total {
		return 0, ErrInsufficientPayment
	}

	meta, err := st.LoadMeta(ctx)
	if err != nil {
		return 0, err
	}
	meta.OrderCounter++
	orderID := meta.OrderCounter
	if err := st.SaveMeta(ctx, meta); err != nil {
		return 0, err
	}

	buyer := env.Caller()
	now := env.Now()
	order := &Order{
		ID:        orderID,
		Buyer:     buyer,
		Total:     total,
		CreatedAt: now,
		Status:    StatusPaid,
	}
	if err := st.SaveOrder(ctx, order); err != nil {
		return 0, err
	}

	env.Emit(&OrderCreated{
		OrderID:      orderID,
		Buyer:        buyer,
		Total:        total,
		Timestamp:    now,
		DeliveryInfo: in.DeliveryInfo,
		ProductIDs:   in.ProductIDs,
		ProductNames: in.ProductNames,
		Prices:       in.Prices,
		Quantities:   in.Quantities,
	})
	env.Emit(&PaymentReceived{OrderID: orderID, Buyer: buyer, Amount: paid})

	// 状态已落定后才转出多付部分
	if paid > total {
		if err := env.Transfer(ctx, buyer, paid-total); err != nil {
			return 0, err
		}
	}
	return orderID, nil
}

// RequireOwner 读取元数据并确认调用者是管理员。未初始化的账本没有管理员，任何人都不通过。
func RequireOwner(ctx context.Context, env Env, st State) (*Meta, error) {
	meta, err := st.LoadMeta(ctx)
	if err != nil {
		return nil, err
	}
	if meta.Owner.IsZero() || env.Caller() != meta.Owner {
		return nil, ErrNotOwner
	}
	return meta, nil
}

// UpdateOrderStatus 由管理员覆盖订单状态。除 Cancelled 终态外不校验流转方向，除非配置了策略。
func (l *Ledger) UpdateOrderStatus(ctx context.Context, env Env, st State, orderID uint64, next OrderStatus) error {
	meta, err := RequireOwner(ctx, env, st)
	if err != nil {
		return err
	}
	if !meta.Exists(orderID) {
		return ErrOrderNotFound
	}
	order, err := st.FindOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == StatusCancelled {
		return ErrOrderCancelled
	}
	if l.policy != nil {
		ok, err := l.policy.Allow(order.Status, next)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTransitionDenied
		}
	}

	order.Status = next
	if err := st.SaveOrder(ctx, order); err != nil {
		return err
	}
	env.Emit(&OrderStatusUpdated{OrderID: orderID, NewStatus: next, Timestamp: env.Now()})
	return nil
}

// CancelOrder 买家在宽限期内取消已支付订单并全额退款。状态变更与退款是一个原子单元。
func (l *Ledger) CancelOrder(ctx context.Context, env Env, st State, orderID uint64) error {
	meta, err := st.LoadMeta(ctx)
	if err != nil {
		return err
	}
	if !meta.Exists(orderID) {
		return ErrOrderNotFound
	}
	order, err := st.FindOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if env.Caller() != order.Buyer {
		return ErrNotBuyer
	}
	if order.Status != StatusPaid {
		return ErrCanOnlyCancelPaid
	}
	now := env.Now()
	if order.Elapsed(now) > l.graceWindow {
		return ErrTimeExpired
	}

	// 先改状态，再退款
	order.Status = StatusCancelled
	if err := st.SaveOrder(ctx, order); err != nil {
		return err
	}
	if err := env.Transfer(ctx, order.Buyer, order.Total); err != nil {
		return err
	}
	env.Emit(&OrderStatusUpdated{OrderID: orderID, NewStatus: StatusCancelled, Timestamp: now})
	return nil
}

// Withdraw 把资金池全部余额转给管理员。
// 注意：资金池不区分已结算收入和仍在取消窗口内的买家资金。
func (l *Ledger) Withdraw(ctx context.Context, env Env, st State) (Amount, error) {
	meta, err := RequireOwner(ctx, env, st)
	if err != nil {
		return 0, err
	}
	balance, err := env.Balance(ctx)
	if err != nil {
		return 0, err
	}
	if balance == 0 {
		return 0, ErrNoFunds
	}
	if err := env.Transfer(ctx, meta.Owner, balance); err != nil {
		return 0, err
	}
	env.Emit(&FundsWithdrawn{Owner: meta.Owner, Amount: balance})
	return balance, nil
}

// TransferOwnership 直接覆盖管理员，不产生审计记录
func (l *Ledger) TransferOwnership(ctx context.Context, env Env, st State, newOwner Address) error {
	meta, err := RequireOwner(ctx, env, st)
	if err != nil {
		return err
	}
	if newOwner.IsZero() || newOwner == env.Custody() {
		return ErrInvalidAddress
	}
	meta.Owner = newOwner
	return st.SaveMeta(ctx, meta)
}

func (l *Ledger) Owner(ctx context.Context, st State) (Address, error) {
	meta, err := st.LoadMeta(ctx)
	if err != nil {
		return "", err
	}
	return meta.Owner, nil
}

func (l *Ledger) TotalOrders(ctx context.Context, st State) (uint64, error) {
	meta, err := st.LoadMeta(ctx)
	if err != nil {
		return 0, err
	}
	return meta.OrderCounter, nil
}

// Order 读取订单摘要（只有四个持久化字段）
func (l *Ledger) Order(ctx context.Context, st State, orderID uint64) (*Order, error) {
	meta, err := st.LoadMeta(ctx)
	if err != nil {
		return nil, err
	}
	if !meta.Exists(orderID) {
		return nil, ErrOrderNotFound
	}
	return st.FindOrder(ctx, orderID)
}
