// internal/service/ledger/domain/repository.go
package domain

import "context"

// State 是账本的持久化状态接口，它位于领域层，但由基础设施层实现。
type State interface {
	// LoadMeta 读取管理员与订单计数器。实现应在事务内对该行加锁，以串行化所有写操作。
	LoadMeta(ctx context.Context) (*Meta, error)
	SaveMeta(ctx context.Context, meta *Meta) error

	// FindOrder 找不到时返回 ErrOrderNotFound
	FindOrder(ctx context.Context, id uint64) (*Order, error)
	SaveOrder(ctx context.Context, order *Order) error
}

// Accounts 是执行环境中各身份的余额簿，托管地址也是其中一个账户。
type Accounts interface {
	BalanceOf(ctx context.Context, addr Address) (Amount, error)
	// Move 从 from 转 amount 到 to，余额不足返回 ErrInsufficientFunds，from == to 返回 ErrSelfTransfer
	Move(ctx context.Context, from, to Address, amount Amount) error
	// Mint 从外部为某身份充值（环境操作，不属于账本状态机）
	Mint(ctx context.Context, to Address, amount Amount) error
}

// AuditLog 是只追加的审计日志，同时充当事务性发件箱（outbox）。
type AuditLog interface {
	// Append 为每条 Envelope 分配递增的 Seq
	Append(ctx context.Context, envelopes ...*Envelope) error
	// Records 返回 seq > afterSeq 的记录，按 seq 升序
	Records(ctx context.Context, afterSeq uint64, limit int) ([]*Envelope, error)
	// Unpublished 返回尚未投递到外部的记录，按 seq 升序
	Unpublished(ctx context.Context, limit int) ([]*Envelope, error)
	// MarkPublished 把 seq <= upToSeq 的记录标记为已投递
	MarkPublished(ctx context.Context, upToSeq uint64) error
}

// Tx 是一次调用内可见的全部状态
type Tx interface {
	State
	Accounts
	AuditLog
}

// UnitOfWork 保证一次调用要么全部提交，要么全部回滚：fn 返回错误时，
// 状态写入、余额变动和审计记录都不会留下任何痕迹。
type UnitOfWork interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
