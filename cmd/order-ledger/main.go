// cmd/order-ledger/main.go
package main

import (
	"context"
	"os"

	"chowfast/internal/pkg/bootstrap"
	"chowfast/internal/pkg/logger"
	"chowfast/internal/pkg/mq"
	"chowfast/internal/pkg/zookeeper"
	"chowfast/internal/service/ledger/application"
	"chowfast/internal/service/ledger/domain"
	"chowfast/internal/service/ledger/domain/port"
	"chowfast/internal/service/ledger/infrastructure"
	"chowfast/internal/service/ledger/interfaces"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

const (
	serviceName = "order-ledger"
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg, err := bootstrap.Init(serviceName)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(serviceName, cfg.Log.Level, cfg.Log.Pretty)

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Port:             cfg.App.Port,
		RegisterHandlers: registerLedger,
	})
	if err != nil {
		logger.L().Error().Err(err).Msg("❌ service exited with error")
		os.Exit(1)
	}
}

func registerLedger(appCtx *bootstrap.AppCtx) error {
	cfg := appCtx.Config
	ctx := context.Background()
	log := logger.L()

	custody, err := domain.ParseAddress(cfg.App.CustodyAddress)
	if err != nil || custody.IsZero() {
		return errors.Errorf("invalid custody address %q", cfg.App.CustodyAddress)
	}

	// 1. 存储：内存或 MySQL
	var uow domain.UnitOfWork
	switch cfg.App.Store {
	case "mysql":
		db, err := infrastructure.OpenMySQL(infrastructure.MySQLOptions{
			Addr:     cfg.Infra.MySQL.Addr,
			User:     cfg.Infra.MySQL.User,
			Password: cfg.Infra.MySQL.Password,
			DBName:   cfg.Infra.MySQL.DBName,
		})
		if err != nil {
			return err
		}
		store := infrastructure.NewGormStore(db)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		appCtx.OnShutdown(func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		uow = store
		log.Info().Str("addr", cfg.Infra.MySQL.Addr).Msg("✅ Ledger store: mysql")
	case "memory", "":
		uow = infrastructure.NewMemoryStore()
		log.Warn().Msg("⚠️ Ledger store: memory, state is lost on restart")
	default:
		return errors.Errorf("unknown ledger store %q", cfg.App.Store)
	}

	// 2. 状态机
	var ledgerOpts []domain.LedgerOption
	if cfg.App.StatusPolicy != "" {
		policy, err := infrastructure.NewCELTransitionPolicy(cfg.App.StatusPolicy)
		if err != nil {
			return err
		}
		ledgerOpts = append(ledgerOpts, domain.WithTransitionPolicy(policy))
	}
	ledger := domain.NewLedger(domain.Amount(cfg.App.FixedFee), cfg.App.GraceWindow, ledgerOpts...)

	// 3. 审计记录出口：日志 + Kafka
	sinks := infrastructure.MultiSink{infrastructure.LogSink{}}
	if len(cfg.Infra.Kafka.Brokers) > 0 {
		writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.Topic)
		kafkaSink := infrastructure.NewKafkaEventSink(writer, serviceName)
		appCtx.OnShutdown(func(context.Context) error { return kafkaSink.Close() })
		sinks = append(sinks, kafkaSink)
	}

	// 4. 中继选主：多实例部署时用 ZooKeeper
	var leader port.Leadership = infrastructure.LocalLeadership{}
	if len(cfg.Infra.Zookeeper.Servers) > 0 {
		conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			return err
		}
		appCtx.OnShutdown(func(context.Context) error {
			conn.Close()
			return nil
		})
		zl, err := infrastructure.NewZookeeperLeadership(conn, serviceName, cfg.App.RelayInterval*10)
		if err != nil {
			return err
		}
		leader = zl
	}
	relay := application.NewAuditRelay(uow, sinks, leader, cfg.App.RelayInterval, cfg.App.RelayBatchSize)

	// 5. 应用服务与 HTTP 入口
	svc := application.NewLedgerService(
		uow,
		ledger,
		infrastructure.SystemClock{},
		custody,
		otel.Tracer(serviceName),
		application.WithRecipientGuard(infrastructure.NewRejectingRecipients(cfg.App.RejectingRecipients...)),
		application.WithCommitHook(relay.Notify),
	)
	interfaces.NewLedgerHandler(svc).RegisterRoutes(appCtx.Mux)

	appCtx.Go(relay.Run)
	return nil
}
