package infrastructure

import (
	"context"
	"errors"
	"testing"

	"chowfast/internal/service/ledger/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice domain.Address = "0x2222222222222222222222222222222222222222"
	bob   domain.Address = "0x3333333333333333333333333333333333333333"
)

func envelope(kind domain.RecordKind) *domain.Envelope {
	return &domain.Envelope{EventID: uuid.NewString(), Kind: kind, Payload: []byte(`{}`)}
}

// storeFactory 每次返回一个空账本
type storeFactory func(t *testing.T) domain.UnitOfWork

// testStoreContract 是 MemoryStore 与 GormStore 共同遵守的行为
func testStoreContract(t *testing.T, newStore storeFactory) {
	t.Run("CommitAndRollback", func(t *testing.T) { testCommitAndRollback(t, newStore(t)) })
	t.Run("Move", func(t *testing.T) { testMove(t, newStore(t)) })
	t.Run("SelfMoveRejected", func(t *testing.T) { testSelfMoveRejected(t, newStore(t)) })
	t.Run("FindOrderMissing", func(t *testing.T) { testFindOrderMissing(t, newStore(t)) })
	t.Run("SaveOrderOnlyUpdatesStatus", func(t *testing.T) { testSaveOrderOnlyUpdatesStatus(t, newStore(t)) })
	t.Run("AuditLogOutbox", func(t *testing.T) { testAuditLogOutbox(t, newStore(t)) })
	t.Run("CanceledContext", func(t *testing.T) { testCanceledContext(t, newStore(t)) })
}

func testCommitAndRollback(t *testing.T, s domain.UnitOfWork) {
	ctx := context.Background()

	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.LoadMeta(ctx); err != nil {
			return err
		}
		require.NoError(t, tx.Mint(ctx, alice, 500))
		require.NoError(t, tx.SaveMeta(ctx, &domain.Meta{Owner: alice, OrderCounter: 1}))
		return tx.SaveOrder(ctx, &domain.Order{ID: 1, Buyer: alice, Total: 100, CreatedAt: 7, Status: domain.StatusPaid})
	}))

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.LoadMeta(ctx); err != nil {
			return err
		}
		require.NoError(t, tx.Move(ctx, alice, bob, 200))
		require.NoError(t, tx.SaveMeta(ctx, &domain.Meta{Owner: bob, OrderCounter: 2}))
		require.NoError(t, tx.SaveOrder(ctx, &domain.Order{ID: 1, Buyer: alice, Total: 100, CreatedAt: 7, Status: domain.StatusCancelled}))
		require.NoError(t, tx.Append(ctx, envelope(domain.KindOrderCreated)))

		// 事务内可以读到自己的写入
		bal, err := tx.BalanceOf(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(200), bal)
		o, err := tx.FindOrder(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, o.Status)
		recs, err := tx.Records(ctx, 0, 0)
		require.NoError(t, err)
		assert.Len(t, recs, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		meta, err := tx.LoadMeta(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Meta{Owner: alice, OrderCounter: 1}, *meta)
		o, err := tx.FindOrder(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, o.Status)
		a, _ := tx.BalanceOf(ctx, alice)
		b, _ := tx.BalanceOf(ctx, bob)
		assert.Equal(t, domain.Amount(500), a)
		assert.Equal(t, domain.Amount(0), b)
		recs, err := tx.Records(ctx, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, recs)
		return nil
	}))
}

func testMove(t *testing.T, s domain.UnitOfWork) {
	ctx := context.Background()
	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		require.NoError(t, tx.Mint(ctx, alice, 100))
		assert.ErrorIs(t, tx.Move(ctx, alice, bob, 101), domain.ErrInsufficientFunds)
		assert.NoError(t, tx.Move(ctx, alice, bob, 0))
		return tx.Move(ctx, alice, bob, 100)
	}))

	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		a, _ := tx.BalanceOf(ctx, alice)
		b, _ := tx.BalanceOf(ctx, bob)
		assert.Equal(t, domain.Amount(0), a)
		assert.Equal(t, domain.Amount(100), b)
		// 溢出的入账整体失败，两边余额都不变
		require.NoError(t, tx.Mint(ctx, alice, domain.MaxAmount))
		assert.ErrorIs(t, tx.Move(ctx, alice, bob, domain.MaxAmount), domain.ErrAmountOverflow)
		return nil
	}))
}

// 自转账不能跳过余额检查悄悄成功
func testSelfMoveRejected(t *testing.T, s domain.UnitOfWork) {
	ctx := context.Background()
	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		require.NoError(t, tx.Mint(ctx, alice, 10))
		assert.ErrorIs(t, tx.Move(ctx, alice, alice, 10), domain.ErrSelfTransfer)
		assert.ErrorIs(t, tx.Move(ctx, bob, bob, 1), domain.ErrSelfTransfer)
		assert.ErrorIs(t, tx.Move(ctx, bob, bob, 0), domain.ErrSelfTransfer)
		bal, _ := tx.BalanceOf(ctx, alice)
		assert.Equal(t, domain.Amount(10), bal)
		return nil
	}))
}

func testFindOrderMissing(t *testing.T, s domain.UnitOfWork) {
	require.NoError(t, s.Atomic(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.FindOrder(ctx, 1)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
		return nil
	}))
}

func testSaveOrderOnlyUpdatesStatus(t *testing.T, s domain.UnitOfWork) {
	ctx := context.Background()
	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.SaveOrder(ctx, &domain.Order{ID: 3, Buyer: alice, Total: 1100, CreatedAt: 5, Status: domain.StatusPaid})
	}))
	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.SaveOrder(ctx, &domain.Order{ID: 3, Buyer: bob, Total: 1, CreatedAt: 99, Status: domain.StatusCompleted})
	}))
	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		o, err := tx.FindOrder(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, domain.Order{ID: 3, Buyer: alice, Total: 1100, CreatedAt: 5, Status: domain.StatusCompleted}, *o)
		return nil
	}))
}

func testAuditLogOutbox(t *testing.T, s domain.UnitOfWork) {
	ctx := context.Background()

	first := envelope(domain.KindOrderCreated)
	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Append(ctx, first, envelope(domain.KindPaymentReceived))
	}))
	assert.Equal(t, uint64(1), first.Seq, "seq written back to caller")
	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Append(ctx, envelope(domain.KindOrderStatusUpdated))
	}))

	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		recs, err := tx.Records(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, uint64(2), recs[0].Seq)
		assert.Equal(t, domain.KindOrderStatusUpdated, recs[1].Kind)
		assert.Equal(t, uint64(3), recs[1].Seq)

		recs, _ = tx.Records(ctx, 0, 1)
		require.Len(t, recs, 1)
		assert.Equal(t, first.EventID, recs[0].EventID)

		pending, _ := tx.Unpublished(ctx, 2)
		require.Len(t, pending, 2)
		return tx.MarkPublished(ctx, 2)
	}))

	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		pending, _ := tx.Unpublished(ctx, 10)
		require.Len(t, pending, 1)
		assert.Equal(t, uint64(3), pending[0].Seq)
		// 标记不会回退
		require.NoError(t, tx.MarkPublished(ctx, 1))
		pending, _ = tx.Unpublished(ctx, 10)
		assert.Len(t, pending, 1)
		return nil
	}))
}

func testCanceledContext(t *testing.T, s domain.UnitOfWork) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.Atomic(ctx, func(context.Context, domain.Tx) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
