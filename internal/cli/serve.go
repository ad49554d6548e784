package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eurodatacube/edc-qgis-plugin/internal/cache/catalog"
	"github.com/eurodatacube/edc-qgis-plugin/internal/cache/redisstore"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/config"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/executor"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/health"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/httpclient"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/observability"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/server"
	"github.com/eurodatacube/edc-qgis-plugin/internal/events"
	"github.com/eurodatacube/edc-qgis-plugin/internal/invalidation/kafkaconsumer"
	"github.com/eurodatacube/edc-qgis-plugin/internal/logger"
)

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP facade",
		Long: `Serves capabilities, instance lists and built request URLs over HTTP.
Configuration comes from the environment (ADDR, LOG_LEVEL, REDIS_ADDR,
EVENTS_ENABLED, KAFKA_BROKERS, INVALIDATION_ENABLED, ...).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromEnv()
			if addr != "" {
				cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $ADDR or :8090)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "facade",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(config.Version)
	appLog.Info("starting facade", "addr", cfg.Addr, "version", config.Version)

	client := httpclient.NewOutbound(cfg.HTTPTimeout, cfg.Proxy)
	exec := executor.New(appLog, client, cfg.UserAgent, cfg.Proxy.Hint())

	ready := map[string]health.Pinger{}
	var docs catalog.DocStore
	if cfg.Cache.RedisAddr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rs, err := redisstore.New(dialCtx, cfg.Cache.RedisAddr)
		cancel()
		if err != nil {
			appLog.Error("redis unavailable", "addr", cfg.Cache.RedisAddr, "err", err)
			return err
		}
		defer func() { _ = rs.Close() }()
		docs = rs
		ready["redis"] = rs
	}
	cache := catalog.New(appLog, exec, docs, catalog.Config{
		Size:      cfg.Cache.Size,
		TTL:       cfg.Cache.TTL,
		OpTimeout: cfg.Cache.OpTimeout,
	})

	var sink events.Sink = events.Nop{}
	if cfg.Events.Enabled {
		pub, err := events.Dial(appLog, config.Brokers(cfg.Events.Brokers), cfg.Events.Topic, 0)
		if err != nil {
			appLog.Error("event publisher setup failed", "err", err)
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := pub.Close(closeCtx); err != nil {
				appLog.Warn("event publisher close", "err", err)
			}
		}()
		sink = pub
	}

	if cfg.Invalidation.Enabled {
		consumer := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg), appLog, cache)
		// joined before the redis tier and publisher above are closed
		stop := background(ctx, func(ctx context.Context) {
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("invalidation consumer stopped", "err", err)
			}
		})
		defer stop()
	}

	h := server.NewHandler(server.Deps{
		Logger:    appLog,
		Catalogs:  cache,
		Instances: exec,
		Events:    sink,
		H3Res:     cfg.Events.H3Res,
		Ready:     ready,
	})
	if err := server.Run(ctx, cfg.Addr, appLog, h); err != nil {
		appLog.Error("server exited", "err", err)
		return err
	}
	appLog.Info("facade stopped")
	return nil
}

// background runs fn until ctx ends or the returned stop is called. stop
// waits for fn to return.
func background(ctx context.Context, fn func(context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}
