// internal/service/ledger/infrastructure/gorm_store.go
package infrastructure

import (
	"context"

	"chowfast/internal/service/ledger/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 是基于 MySQL 的 UnitOfWork 实现，每次调用是一个数据库事务。
// 写事务必须先调用 LoadMeta（SELECT ... FOR UPDATE 锁住 ledger_meta 唯一一行）再碰账户行，
// 这样多实例部署下写操作串行，且加锁顺序固定为 meta -> accounts -> audit，不会互相死锁。
// LedgerService 的每个写入口都遵守这个顺序。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate 建表并写入 meta 行（已存在则不动）
func (s *GormStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&LedgerMetaModel{},
		&LedgerOrderModel{},
		&LedgerAccountModel{},
		&LedgerAuditRecordModel{},
	); err != nil {
		return errors.Wrap(err, "auto migrate ledger tables")
	}
	err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&LedgerMetaModel{ID: metaRowID}).Error
	return errors.Wrap(err, "seed ledger meta row")
}

func (s *GormStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(ctx, &gormTx{db: db})
	})
}

type gormTx struct {
	db         *gorm.DB
	metaLocked bool
}

func (t *gormTx) forUpdate() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *gormTx) LoadMeta(ctx context.Context) (*domain.Meta, error) {
	var m LedgerMetaModel
	if err := t.forUpdate().First(&m, metaRowID).Error; err != nil {
		return nil, errors.Wrap(err, "load ledger meta")
	}
	t.metaLocked = true
	return toDomainMeta(&m), nil
}

func (t *gormTx) SaveMeta(ctx context.Context, meta *domain.Meta) error {
	err := t.db.Model(&LedgerMetaModel{}).Where("id = ?", metaRowID).Updates(map[string]interface{}{
		"owner":         string(meta.Owner),
		"order_counter": meta.OrderCounter,
	}).Error
	return errors.Wrap(err, "save ledger meta")
}

func (t *gormTx) FindOrder(ctx context.Context, id uint64) (*domain.Order, error) {
	var m LedgerOrderModel
	err := t.db.Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "find order %d", id)
	}
	return toDomainOrder(&m), nil
}

func (t *gormTx) SaveOrder(ctx context.Context, order *domain.Order) error {
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status"}),
	}).Create(fromDomainOrder(order)).Error
	return errors.Wrapf(err, "save order %d", order.ID)
}

func (t *gormTx) balanceForUpdate(addr domain.Address) (domain.Amount, error) {
	var m LedgerAccountModel
	err := t.forUpdate().Where("address = ?", string(addr)).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "load balance of %s", addr)
	}
	return domain.Amount(m.Balance), nil
}

func (t *gormTx) setBalance(addr domain.Address, bal domain.Amount) error {
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance"}),
	}).Create(&LedgerAccountModel{Address: string(addr), Balance: uint64(bal)}).Error
	return errors.Wrapf(err, "update balance of %s", addr)
}

func (t *gormTx) BalanceOf(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	var m LedgerAccountModel
	err := t.db.Where("address = ?", string(addr)).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "load balance of %s", addr)
	}
	return domain.Amount(m.Balance), nil
}

func (t *gormTx) Move(ctx context.Context, from, to domain.Address, amount domain.Amount) error {
	// 自转账不能当作空操作放行，否则转出方的余额检查被跳过
	if from == to {
		return domain.ErrSelfTransfer
	}
	if amount == 0 {
		return nil
	}
	fromBal, err := t.balanceForUpdate(from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return domain.ErrInsufficientFunds
	}
	toBal, err := t.balanceForUpdate(to)
	if err != nil {
		return err
	}
	next, err := toBal.CheckedAdd(amount)
	if err != nil {
		return err
	}
	if err := t.setBalance(from, fromBal-amount); err != nil {
		return err
	}
	return t.setBalance(to, next)
}

func (t *gormTx) Mint(ctx context.Context, to domain.Address, amount domain.Amount) error {
	bal, err := t.balanceForUpdate(to)
	if err != nil {
		return err
	}
	next, err := bal.CheckedAdd(amount)
	if err != nil {
		return err
	}
	return t.setBalance(to, next)
}

func (t *gormTx) Append(ctx context.Context, envelopes ...*domain.Envelope) error {
	if len(envelopes) == 0 {
		return nil
	}
	// seq 的分配依赖 meta 行锁串行化
	if !t.metaLocked {
		if _, err := t.LoadMeta(ctx); err != nil {
			return err
		}
	}
	var last uint64
	if err := t.db.Model(&LedgerAuditRecordModel{}).Select("COALESCE(MAX(seq), 0)").Scan(&last).Error; err != nil {
		return errors.Wrap(err, "load last audit seq")
	}
	models := make([]*LedgerAuditRecordModel, 0, len(envelopes))
	for _, env := range envelopes {
		last++
		env.Seq = last
		models = append(models, fromDomainEnvelope(env))
	}
	return errors.Wrap(t.db.Create(&models).Error, "append audit records")
}

func (t *gormTx) Records(ctx context.Context, afterSeq uint64, limit int) ([]*domain.Envelope, error) {
	q := t.db.Where("seq > ?", afterSeq).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return t.find(q)
}

func (t *gormTx) Unpublished(ctx context.Context, limit int) ([]*domain.Envelope, error) {
	q := t.db.Where("published = ?", false).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return t.find(q)
}

func (t *gormTx) find(q *gorm.DB) ([]*domain.Envelope, error) {
	var models []LedgerAuditRecordModel
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "query audit records")
	}
	out := make([]*domain.Envelope, 0, len(models))
	for i := range models {
		out = append(out, toDomainEnvelope(&models[i]))
	}
	return out, nil
}

func (t *gormTx) MarkPublished(ctx context.Context, upToSeq uint64) error {
	err := t.db.Model(&LedgerAuditRecordModel{}).
		Where("seq <= ? AND published = ?", upToSeq, false).
		Update("published", true).Error
	return errors.Wrap(err, "mark audit records published")
}
