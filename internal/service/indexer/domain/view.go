// internal/service/indexer/domain/view.go
package domain

import (
	"context"
	"errors"

	ledger "chowfast/internal/service/ledger/domain"
)

// ErrViewNotFound 表示投影中还没有该订单
var ErrViewNotFound = errors.New("order view not found")

type LineItem struct {
	ProductID string        `json:"product_id"`
	Name      string        `json:"name"`
	Price     ledger.Amount `json:"price"`
	Quantity  uint64        `json:"quantity"`
}

type StatusChange struct {
	Status     string `json:"status"`
	StatusCode uint8  `json:"status_code"`
	At         int64  `json:"at"`
}

// OrderView 是从审计记录重建出的完整订单，供商城与后厨调度查询。
// 账本只保存四个摘要字段，明细只能从 OrderCreated 记录中恢复。
type OrderView struct {
	OrderID        uint64         `json:"order_id"`
	Buyer          string         `json:"buyer"`
	Total          ledger.Amount  `json:"total"`
	Paid           ledger.Amount  `json:"paid"`
	CreatedAt      int64          `json:"created_at"`
	DeliveryInfo   string         `json:"delivery_info"`
	Items          []LineItem     `json:"items"`
	Status         string         `json:"status"`
	StatusCode     uint8          `json:"status_code"`
	History        []StatusChange `json:"history"`
	CancelDeadline int64          `json:"cancel_deadline"`
	LastSeq        uint64         `json:"last_seq"`
}

// SetStatus 更新当前状态并追加历史
func (v *OrderView) SetStatus(s ledger.OrderStatus, at int64) {
	v.Status = s.String()
	v.StatusCode = uint8(s)
	v.History = append(v.History, StatusChange{Status: v.Status, StatusCode: v.StatusCode, At: at})
}

// NewOrderView 从 OrderCreated 记录构造视图，初始状态为 Paid
func NewOrderView(rec *ledger.OrderCreated, graceWindow int64) *OrderView {
	items := make([]LineItem, len(rec.ProductIDs))
	for i := range rec.ProductIDs {
		items[i] = LineItem{ProductID: rec.ProductIDs[i]}
		if i < len(rec.ProductNames) {
			items[i].Name = rec.ProductNames[i]
		}
		if i < len(rec.Prices) {
			items[i].Price = rec.Prices[i]
		}
		if i < len(rec.Quantities) {
			items[i].Quantity = rec.Quantities[i]
		}
	}
	v := &OrderView{
		OrderID:        rec.OrderID,
		Buyer:          rec.Buyer.String(),
		Total:          rec.Total,
		CreatedAt:      rec.Timestamp,
		DeliveryInfo:   rec.DeliveryInfo,
		Items:          items,
		CancelDeadline: rec.Timestamp + graceWindow,
	}
	v.SetStatus(ledger.StatusPaid, rec.Timestamp)
	return v
}

// ViewStore 是订单投影的存储端口
type ViewStore interface {
	// Checkpoint 返回最后一条已应用记录的 seq
	Checkpoint(ctx context.Context) (uint64, error)
	// Get 找不到时返回 ErrViewNotFound
	Get(ctx context.Context, orderID uint64) (*OrderView, error)
	// Apply 原子地保存视图并把检查点推进到 seq；view 为 nil 时只推进检查点
	Apply(ctx context.Context, seq uint64, view *OrderView) error
	// ListByBuyer 按订单号倒序返回买家的订单
	ListByBuyer(ctx context.Context, buyer string, limit int) ([]*OrderView, error)
}
