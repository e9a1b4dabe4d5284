// internal/service/ledger/infrastructure/memory_store.go
package infrastructure

import (
	"context"
	"sort"
	"sync"

	"chowfast/internal/service/ledger/domain"
)

// MemoryStore 是进程内的 UnitOfWork 实现。
// 所有事务串行执行；事务内的写入先暂存在 memoryTx 中，fn 成功返回后才合并。
type MemoryStore struct {
	mu        sync.Mutex
	meta      domain.Meta
	orders    map[uint64]domain.Order
	balances  map[domain.Address]domain.Amount
	records   []*domain.Envelope
	published uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[uint64]domain.Order),
		balances: make(map[domain.Address]domain.Amount),
	}
}

func (s *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		s:        s,
		orders:   make(map[uint64]domain.Order),
		balances: make(map[domain.Address]domain.Amount),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memoryTx struct {
	s         *MemoryStore
	meta      *domain.Meta
	orders    map[uint64]domain.Order
	balances  map[domain.Address]domain.Amount
	appended  []*domain.Envelope
	published *uint64
}

func (t *memoryTx) commit() {
	if t.meta != nil {
		t.s.meta = *t.meta
	}
	for id, o := range t.orders {
		t.s.orders[id] = o
	}
	for addr, b := range t.balances {
		t.s.balances[addr] = b
	}
	t.s.records = append(t.s.records, t.appended...)
	if t.published != nil {
		t.s.published = *t.published
	}
}

func (t *memoryTx) LoadMeta(ctx context.Context) (*domain.Meta, error) {
	if t.meta != nil {
		m := *t.meta
		return &m, nil
	}
	m := t.s.meta
	return &m, nil
}

func (t *memoryTx) SaveMeta(ctx context.Context, meta *domain.Meta) error {
	m := *meta
	t.meta = &m
	return nil
}

func (t *memoryTx) FindOrder(ctx context.Context, id uint64) (*domain.Order, error) {
	if o, ok := t.orders[id]; ok {
		return &o, nil
	}
	if o, ok := t.s.orders[id]; ok {
		return &o, nil
	}
	return nil, domain.ErrOrderNotFound
}

// SaveOrder 插入新订单；已存在的订单只更新状态，与 GormStore 的 upsert 一致
func (t *memoryTx) SaveOrder(ctx context.Context, order *domain.Order) error {
	next := *order
	if prev, err := t.FindOrder(ctx, order.ID); err == nil {
		prev.Status = order.Status
		next = *prev
	}
	t.orders[order.ID] = next
	return nil
}

func (t *memoryTx) BalanceOf(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	if b, ok := t.balances[addr]; ok {
		return b, nil
	}
	return t.s.balances[addr], nil
}

func (t *memoryTx) Move(ctx context.Context, from, to domain.Address, amount domain.Amount) error {
	// 自转账不能当作空操作放行，否则转出方的余额检查被跳过
	if from == to {
		return domain.ErrSelfTransfer
	}
	if amount == 0 {
		return nil
	}
	fromBal, _ := t.BalanceOf(ctx, from)
	if fromBal < amount {
		return domain.ErrInsufficientFunds
	}
	toBal, _ := t.BalanceOf(ctx, to)
	next, err := toBal.CheckedAdd(amount)
	if err != nil {
		return err
	}
	t.balances[from] = fromBal - amount
	t.balances[to] = next
	return nil
}

func (t *memoryTx) Mint(ctx context.Context, to domain.Address, amount domain.Amount) error {
	bal, _ := t.BalanceOf(ctx, to)
	next, err := bal.CheckedAdd(amount)
	if err != nil {
		return err
	}
	t.balances[to] = next
	return nil
}

func (t *memoryTx) Append(ctx context.Context, envelopes ...*domain.Envelope) error {
	seq := uint64(len(t.s.records) + len(t.appended))
	for _, env := range envelopes {
		seq++
		e := *env
		e.Seq = seq
		env.Seq = seq
		t.appended = append(t.appended, &e)
	}
	return nil
}

func (t *memoryTx) all() []*domain.Envelope {
	out := make([]*domain.Envelope, 0, len(t.s.records)+len(t.appended))
	out = append(out, t.s.records...)
	return append(out, t.appended...)
}

func (t *memoryTx) Records(ctx context.Context, afterSeq uint64, limit int) ([]*domain.Envelope, error) {
	all := t.all()
	// 记录按 seq 升序排列
	start := sort.Search(len(all), func(i int) bool { return all[i].Seq > afterSeq })
	end := len(all)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]*domain.Envelope, 0, end-start)
	for _, e := range all[start:end] {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (t *memoryTx) Unpublished(ctx context.Context, limit int) ([]*domain.Envelope, error) {
	published := t.s.published
	if t.published != nil {
		published = *t.published
	}
	return t.Records(ctx, published, limit)
}

func (t *memoryTx) MarkPublished(ctx context.Context, upToSeq uint64) error {
	current := t.s.published
	if t.published != nil {
		current = *t.published
	}
	if upToSeq > current {
		t.published = &upToSeq
	}
	return nil
}
