// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"chowfast/internal/pkg/logger"
	"chowfast/internal/pkg/nacos"
	"chowfast/internal/pkg/tracing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Worker 是随服务一起运行的后台任务，ctx 结束时应返回 nil
type Worker func(ctx context.Context) error

type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client // 未启用 Nacos 时为 nil
	Config *Config

	workers  []Worker
	cleanups []func(ctx context.Context) error
}

// Go 注册一个后台任务
func (a *AppCtx) Go(w Worker) {
	a.workers = append(a.workers, w)
}

// OnShutdown 注册关停时的清理动作，按注册的相反顺序执行
func (a *AppCtx) OnShutdown(fn func(ctx context.Context) error) {
	a.cleanups = append(a.cleanups, fn)
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx *AppCtx) error // 每个服务注册自己的 HTTP 路由与后台任务
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑，阻塞到收到 SIGINT/SIGTERM。
func StartService(info AppInfo) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Run(ctx, info)
}

// Run 启动服务并阻塞到 ctx 结束或任一后台任务失败
func Run(ctx context.Context, info AppInfo) error {
	cfg := GetCurrentConfig()
	log := logger.L()

	// 1. Tracer
	shutdownTracer, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return err
	}

	appCtx := &AppCtx{Mux: http.NewServeMux(), Config: cfg}
	appCtx.OnShutdown(func(ctx context.Context) error {
		// 确保所有缓冲的 trace 都被发送出去
		return shutdownTracer(ctx)
	})

	// 2. Nacos：配置中心覆盖 + 服务注册
	if cfg.Infra.Nacos.Enabled {
		nc, err := nacos.NewNacosClient(cfg.Infra.Nacos.Addrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			return err
		}
		appCtx.Nacos = nc
		appCtx.OnShutdown(func(context.Context) error {
			nc.Close()
			return nil
		})

		dataID := info.ServiceName + ".yaml"
		if content, err := nc.GetConfig(dataID); err != nil {
			log.Warn().Err(err).Str("data_id", dataID).Msg("⚠️ Nacos config unavailable, using local config")
		} else if cfg, err = MergeRemote(content); err != nil {
			return err
		}
		appCtx.Config = cfg
		if err := nc.ListenConfig(dataID, func(content string) {
			if _, err := MergeRemote(content); err != nil {
				log.Error().Err(err).Msg("❌ Failed to apply remote config")
			}
		}); err != nil {
			log.Warn().Err(err).Msg("⚠️ Nacos config listener not started")
		}
	}

	if info.RegisterHandlers != nil {
		if err := info.RegisterHandlers(appCtx); err != nil {
			runCleanups(appCtx.cleanups, log)
			return err
		}
	}
	appCtx.Mux.Handle("GET /metrics", promhttp.Handler())
	appCtx.Mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	lis, err := net.Listen("tcp", ":"+strconv.Itoa(info.Port))
	if err != nil {
		runCleanups(appCtx.cleanups, log)
		return err
	}
	server := &http.Server{Handler: appCtx.Mux, ReadHeaderTimeout: 5 * time.Second}

	// 3. 注册到 Nacos（监听成功之后，确保注册时服务已可用）
	if appCtx.Nacos != nil {
		ip, err := GetOutboundIP()
		if err != nil {
			_ = lis.Close()
			runCleanups(appCtx.cleanups, log)
			return err
		}
		port := lis.Addr().(*net.TCPAddr).Port
		if err := appCtx.Nacos.RegisterServiceInstance(info.ServiceName, ip, port); err != nil {
			_ = lis.Close()
			runCleanups(appCtx.cleanups, log)
			return err
		}
		nc := appCtx.Nacos
		appCtx.OnShutdown(func(context.Context) error {
			return nc.DeregisterServiceInstance(info.ServiceName, ip, port)
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msgf("✅ %s listening on %s", info.ServiceName, lis.Addr())
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	for _, w := range appCtx.workers {
		w := w
		g.Go(func() error {
			if err := w(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	// 4. 优雅关停
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msgf("🛑 Shutting down service %s...", info.ServiceName)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down http server")
		}
		return nil
	})

	err = g.Wait()
	runCleanups(appCtx.cleanups, log)
	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
	return err
}

// runCleanups 按后进先出顺序执行清理动作
func runCleanups(cleanups []func(ctx context.Context) error, log *zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](ctx); err != nil {
			log.Error().Err(err).Msg("Error during shutdown cleanup")
		}
	}
}

// GetOutboundIP 获取本机对外通信使用的 IP，用于服务注册
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
