// internal/service/ledger/infrastructure/gorm_model.go
package infrastructure

import (
	"encoding/json"

	"chowfast/internal/service/ledger/domain"
)

// metaRowID 是 ledger_meta 表中唯一一行的主键
const metaRowID = 1

// LedgerMetaModel 对应 ledger_meta 表，只有一行。所有写操作都先对它加行锁。
type LedgerMetaModel struct {
	ID           uint   `gorm:"primaryKey;autoIncrement:false"`
	Owner        string `gorm:"type:varchar(42);not null;default:''"`
	OrderCounter uint64 `gorm:"not null;default:0"`
}

func (LedgerMetaModel) TableName() string {
	return "ledger_meta"
}

// LedgerOrderModel 对应 ledger_orders 表，只保存订单摘要四个字段
type LedgerOrderModel struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement:false"`
	Buyer    string `gorm:"type:varchar(42);index"`
	Total    uint64
	PlacedAt int64 // 不用 CreatedAt，避免 GORM 自动填充时间
	Status   uint8 `gorm:"type:tinyint unsigned"`
}

func (LedgerOrderModel) TableName() string {
	return "ledger_orders"
}

// LedgerAccountModel 对应 ledger_accounts 表，托管地址也是其中一行
type LedgerAccountModel struct {
	Address string `gorm:"type:varchar(42);primaryKey"`
	Balance uint64 `gorm:"not null;default:0"`
}

func (LedgerAccountModel) TableName() string {
	return "ledger_accounts"
}

// LedgerAuditRecordModel 对应 ledger_audit_records 表，同时是发件箱
type LedgerAuditRecordModel struct {
	Seq       uint64 `gorm:"primaryKey;autoIncrement:false"`
	EventID   string `gorm:"type:char(36);uniqueIndex"`
	Kind      string `gorm:"type:varchar(32)"`
	OrderID   uint64 `gorm:"index"`
	EmittedAt int64
	Payload   []byte `gorm:"type:json"`
	Published bool   `gorm:"index;not null;default:false"`
}

func (LedgerAuditRecordModel) TableName() string {
	return "ledger_audit_records"
}

func toDomainMeta(m *LedgerMetaModel) *domain.Meta {
	return &domain.Meta{Owner: domain.Address(m.Owner), OrderCounter: m.OrderCounter}
}

func toDomainOrder(m *LedgerOrderModel) *domain.Order {
	return &domain.Order{
		ID:        m.ID,
		Buyer:     domain.Address(m.Buyer),
		Total:     domain.Amount(m.Total),
		CreatedAt: m.PlacedAt,
		Status:    domain.OrderStatus(m.Status),
	}
}

func fromDomainOrder(o *domain.Order) *LedgerOrderModel {
	return &LedgerOrderModel{
		ID:       o.ID,
		Buyer:    string(o.Buyer),
		Total:    uint64(o.Total),
		PlacedAt: o.CreatedAt,
		Status:   uint8(o.Status),
	}
}

func toDomainEnvelope(m *LedgerAuditRecordModel) *domain.Envelope {
	return &domain.Envelope{
		Seq:       m.Seq,
		EventID:   m.EventID,
		Kind:      domain.RecordKind(m.Kind),
		OrderID:   m.OrderID,
		EmittedAt: m.EmittedAt,
		Payload:   json.RawMessage(m.Payload),
	}
}

func fromDomainEnvelope(e *domain.Envelope) *LedgerAuditRecordModel {
	return &LedgerAuditRecordModel{
		Seq:       e.Seq,
		EventID:   e.EventID,
		Kind:      string(e.Kind),
		OrderID:   e.OrderID,
		EmittedAt: e.EmittedAt,
		Payload:   []byte(e.Payload),
	}
}
