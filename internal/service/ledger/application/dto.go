// internal/service/ledger/application/dto.go
package application

import "chowfast/internal/service/ledger/domain"

// Call 是一次调用的环境输入：调用者身份与附带金额
type Call struct {
	Caller domain.Address
	Value  domain.Amount
}

// CreateOrderRequest 是下单用例的输入数据
type CreateOrderRequest struct {
	ProductIDs   []string        `json:"product_ids"`
	ProductNames []string        `json:"product_names"`
	Prices       []domain.Amount `json:"prices"`
	Quantities   []uint64        `json:"quantities"`
	Subtotal     domain.Amount   `json:"subtotal"`
	DeliveryInfo string          `json:"delivery_info"`
}

func (req *CreateOrderRequest) toInput() *domain.CreateOrderInput {
	return &domain.CreateOrderInput{
		ProductIDs:   req.ProductIDs,
		ProductNames: req.ProductNames,
		Prices:       req.Prices,
		Quantities:   req.Quantities,
		Subtotal:     req.Subtotal,
		DeliveryInfo: req.DeliveryInfo,
	}
}

// CreateOrderResponse 是下单用例的输出数据
type CreateOrderResponse struct {
	OrderID  uint64        `json:"order_id"`
	Total    domain.Amount `json:"total"`
	Refunded domain.Amount `json:"refunded"`
}

// OrderSummary 是订单摘要查询的结果，只含持久化的四个字段和派生的取消窗口
type OrderSummary struct {
	OrderID        uint64        `json:"order_id"`
	Buyer          string        `json:"buyer"`
	Total          domain.Amount `json:"total"`
	CreatedAt      int64         `json:"created_at"`
	Status         string        `json:"status"`
	StatusCode     uint8         `json:"status_code"`
	CancelDeadline int64         `json:"cancel_deadline"`
	Cancellable    bool          `json:"cancellable"`
}

func toOrderSummary(o *domain.Order, now, graceWindow int64) *OrderSummary {
	return &OrderSummary{
		OrderID:        o.ID,
		Buyer:          o.Buyer.String(),
		Total:          o.Total,
		CreatedAt:      o.CreatedAt,
		Status:         o.Status.String(),
		StatusCode:     uint8(o.Status),
		CancelDeadline: o.CancelDeadline(graceWindow),
		Cancellable:    o.Cancellable(now, graceWindow),
	}
}
