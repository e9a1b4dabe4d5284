// internal/service/ledger/domain/order.go
package domain

// Order 是订单聚合。持久化字段只有四个：买家、应付总额、创建时间、状态。
// 商品明细和配送信息只出现在审计记录里，不进入可查询状态。
type Order struct {
	ID        uint64
	Buyer     Address
	Total     Amount
	CreatedAt int64 // unix 秒
	Status    OrderStatus
}

// Elapsed 返回 max(0, now - CreatedAt)
func (o *Order) Elapsed(now int64) int64 {
	if now > o.CreatedAt {
		return now - o.CreatedAt
	}
	return 0
}

// CancelDeadline 返回买家可自助取消的最后时刻（含）
func (o *Order) CancelDeadline(graceWindow int64) int64 {
	return o.CreatedAt + graceWindow
}

// Cancellable 报告买家此刻是否仍能取消该订单
func (o *Order) Cancellable(now, graceWindow int64) bool {
	return o.Status == StatusPaid && o.Elapsed(now) <= graceWindow
}

// Meta 是账本的全局状态：管理员和订单计数器
type Meta struct {
	Owner        Address
	OrderCounter uint64
}

// Exists 当且仅当 1 <= id <= counter。id 0 永远无效。
func (m *Meta) Exists(id uint64) bool {
	return id >= 1 && id <= m.OrderCounter
}
