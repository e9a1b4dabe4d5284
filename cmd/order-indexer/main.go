// cmd/order-indexer/main.go
package main

import (
	"context"
	"os"

	"chowfast/internal/pkg/bootstrap"
	"chowfast/internal/pkg/httpclient"
	"chowfast/internal/pkg/logger"
	"chowfast/internal/pkg/mq"
	"chowfast/internal/pkg/redis"
	"chowfast/internal/pkg/ws"
	"chowfast/internal/service/indexer/application"
	"chowfast/internal/service/indexer/domain"
	"chowfast/internal/service/indexer/infrastructure"
	"chowfast/internal/service/indexer/interfaces"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

const (
	serviceName = "order-indexer"
)

func main() {
	cfg, err := bootstrap.Init(serviceName)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(serviceName, cfg.Log.Level, cfg.Log.Pretty)

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Port:             cfg.App.Port,
		RegisterHandlers: registerIndexer,
	})
	if err != nil {
		logger.L().Error().Err(err).Msg("❌ service exited with error")
		os.Exit(1)
	}
}

func registerIndexer(appCtx *bootstrap.AppCtx) error {
	cfg := appCtx.Config
	ctx := context.Background()

	// 1. 视图存储
	var store domain.ViewStore
	switch cfg.App.ViewStore {
	case "redis":
		client, err := redis.NewClient(ctx, cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password)
		if err != nil {
			return err
		}
		appCtx.OnShutdown(func(context.Context) error { return client.Close() })
		rs, err := infrastructure.NewRedisViewStore(ctx, client)
		if err != nil {
			return err
		}
		store = rs
	case "memory", "":
		store = infrastructure.NewMemoryViewStore()
		logger.L().Warn().Msg("⚠️ View store: memory, projection restarts from seq 0")
	default:
		return errors.Errorf("unknown view store %q", cfg.App.ViewStore)
	}

	// 2. 实时推送
	hub := ws.NewHub()
	appCtx.Go(func(ctx context.Context) error {
		hub.Run(ctx)
		return nil
	})

	tracer := otel.Tracer(serviceName)
	projector := application.NewProjector(store, cfg.App.GraceWindow, tracer, interfaces.NewLiveFeed(hub))
	interfaces.NewViewHandler(projector, hub).RegisterRoutes(appCtx.Mux)

	// 3. 审计记录来源：优先 Kafka，否则直接轮询账本
	switch {
	case len(cfg.Infra.Kafka.Brokers) > 0:
		reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.Topic, cfg.App.ConsumerGroup)
		appCtx.Go(interfaces.NewAuditConsumer(reader, projector, cfg.Infra.Kafka.Topic).Run)
	case cfg.App.LedgerURL != "":
		source := infrastructure.NewLedgerAuditClient(httpclient.NewClient(tracer), cfg.App.LedgerURL)
		appCtx.Go(interfaces.NewAuditPoller(source, projector, cfg.App.PollInterval, 0).Run)
	default:
		logger.L().Warn().Msg("⚠️ Neither Kafka brokers nor ledger URL set, projection will stay empty")
	}
	return nil
}
