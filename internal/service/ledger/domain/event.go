// internal/service/ledger/domain/event.go
package domain

import (
	"encoding/json"
	"fmt"
)

// RecordKind 标识审计记录的类型
type RecordKind string

const (
	KindOrderCreated       RecordKind = "OrderCreated"
	KindOrderStatusUpdated RecordKind = "OrderStatusUpdated"
	KindPaymentReceived    RecordKind = "PaymentReceived"
	KindFundsWithdrawn     RecordKind = "FundsWithdrawn"
)

// Record 是一条不可变的审计记录。
// 审计日志是订单明细的唯一来源，客户端（商城、后厨调度）依赖它重建订单。
type Record interface {
	Kind() RecordKind
	// OrderRef 返回关联的订单 ID，与订单无关的记录返回 0
	OrderRef() uint64
}

// OrderCreated 携带下单时的全部商品与配送数据，这是这些数据唯一一次被公开
type OrderCreated struct {
	OrderID      uint64   `json:"order_id"`
	Buyer        Address  `json:"buyer"`
	Total        Amount   `json:"total"`
	Timestamp    int64    `json:"timestamp"`
	DeliveryInfo string   `json:"delivery_info"`
	ProductIDs   []string `json:"product_ids"`
	ProductNames []string `json:"product_names"`
	Prices       []Amount `json:"prices"`
	Quantities   []uint64 `json:"quantities"`
}

func (e *OrderCreated) Kind() RecordKind { return KindOrderCreated }
func (e *OrderCreated) OrderRef() uint64 { return e.OrderID }

type OrderStatusUpdated struct {
	OrderID   uint64      `json:"order_id"`
	NewStatus OrderStatus `json:"new_status"`
	Timestamp int64       `json:"timestamp"`
}

func (e *OrderStatusUpdated) Kind() RecordKind { return KindOrderStatusUpdated }
func (e *OrderStatusUpdated) OrderRef() uint64 { return e.OrderID }

// PaymentReceived 记录的是原始附带金额，可能大于订单总额（多余部分已退回）
type PaymentReceived struct {
	OrderID uint64  `json:"order_id"`
	Buyer   Address `json:"buyer"`
	Amount  Amount  `json:"amount"`
}

func (e *PaymentReceived) Kind() RecordKind { return KindPaymentReceived }
func (e *PaymentReceived) OrderRef() uint64 { return e.OrderID }

type FundsWithdrawn struct {
	Owner  Address `json:"owner"`
	Amount Amount  `json:"amount"`
}

func (e *FundsWithdrawn) Kind() RecordKind { return KindFundsWithdrawn }
func (e *FundsWithdrawn) OrderRef() uint64 { return 0 }

// Envelope 是审计记录在日志与消息队列中的外层结构。
// Seq 由审计日志在追加时分配，同一账本实例内全序递增。
type Envelope struct {
	Seq       uint64          `json:"seq"`
	EventID   string          `json:"event_id"`
	Kind      RecordKind      `json:"kind"`
	OrderID   uint64          `json:"order_id,omitempty"`
	EmittedAt int64           `json:"emitted_at"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope 封装一条记录，Seq 留给审计日志分配
func NewEnvelope(rec Record, eventID string, emittedAt int64) (*Envelope, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal %s record: %w", rec.Kind(), err)
	}
	return &Envelope{
		EventID:   eventID,
		Kind:      rec.Kind(),
		OrderID:   rec.OrderRef(),
		EmittedAt: emittedAt,
		Payload:   payload,
	}, nil
}

// Decode 把 Payload 还原成具体的记录类型
func (e *Envelope) Decode() (Record, error) {
	var rec Record
	switch e.Kind {
	case KindOrderCreated:
		rec = &OrderCreated{}
	case KindOrderStatusUpdated:
		rec = &OrderStatusUpdated{}
	case KindPaymentReceived:
		rec = &PaymentReceived{}
	case KindFundsWithdrawn:
		rec = &FundsWithdrawn{}
	default:
		return nil, fmt.Errorf("unknown record kind %q", e.Kind)
	}
	if err := json.Unmarshal(e.Payload, rec); err != nil {
		return nil, fmt.Errorf("decode %s record (seq %d): %w", e.Kind, e.Seq, err)
	}
	return rec, nil
}
