package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"chowfast/internal/service/ledger/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// startMySQL 启动一次性的 MySQL 容器。-short 或没有 Docker 时跳过。
func startMySQL(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping mysql container in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mysql:8.0",
			ExposedPorts: []string{"3306/tcp"},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": "chowfast",
				"MYSQL_DATABASE":      "chowfast",
			},
			WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(3 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() {
		assert.NoError(t, c.Terminate(context.Background()))
	})

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	db, err := OpenMySQL(MySQLOptions{
		Addr:     fmt.Sprintf("%s:%s", host, port.Port()),
		User:     "root",
		Password: "chowfast",
		DBName:   "chowfast",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// freshGormStore 清空所有表并重新写入 meta 行
func freshGormStore(t *testing.T, db *gorm.DB) *GormStore {
	t.Helper()
	s := NewGormStore(db)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	all := db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, m := range []interface{}{
		&LedgerMetaModel{},
		&LedgerOrderModel{},
		&LedgerAccountModel{},
		&LedgerAuditRecordModel{},
	} {
		require.NoError(t, all.Delete(m).Error)
	}
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestGormStore_Contract(t *testing.T) {
	db := startMySQL(t)
	testStoreContract(t, func(t *testing.T) domain.UnitOfWork { return freshGormStore(t, db) })

	t.Run("ConcurrentWritersSerialize", func(t *testing.T) {
		testConcurrentWritersSerialize(t, freshGormStore(t, db))
	})
}

// 每个写事务都先锁 meta 再动账户和审计表，并发写不会死锁，seq 也不会重复
func testConcurrentWritersSerialize(t *testing.T, s *GormStore) {
	ctx := context.Background()
	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.LoadMeta(ctx); err != nil {
			return err
		}
		return tx.Mint(ctx, alice, 100)
	}))

	const writers = 8
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < writers; i++ {
		from, to := alice, bob
		if i%2 == 1 {
			from, to = bob, alice
		}
		g.Go(func() error {
			return s.Atomic(gctx, func(ctx context.Context, tx domain.Tx) error {
				meta, err := tx.LoadMeta(ctx)
				if err != nil {
					return err
				}
				meta.OrderCounter++
				if err := tx.SaveMeta(ctx, meta); err != nil {
					return err
				}
				// 反向转账在 bob 还没有余额时会失败，这里只关心加锁顺序
				if err := tx.Move(ctx, from, to, 1); err != nil && !errors.Is(err, domain.ErrInsufficientFunds) {
					return err
				}
				return tx.Append(ctx, envelope(domain.KindPaymentReceived))
			})
		})
	}
	require.NoError(t, g.Wait())

	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		meta, err := tx.LoadMeta(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(writers), meta.OrderCounter)

		a, _ := tx.BalanceOf(ctx, alice)
		b, _ := tx.BalanceOf(ctx, bob)
		assert.Equal(t, domain.Amount(100), a+b)

		recs, err := tx.Records(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, recs, writers)
		for i, r := range recs {
			assert.Equal(t, uint64(i+1), r.Seq)
		}
		return nil
	}))
}
