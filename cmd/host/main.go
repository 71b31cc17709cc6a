// Command host — хост-приложение Sparkplug B: объявляет STATE, принимает birth/data/death
// узлов и устройств и отправляет им команды. Состояние доступно по HTTP и gRPC health.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RoGogDBD/sparkplug-b/internal/config"
	"github.com/RoGogDBD/sparkplug-b/internal/config/db"
	"github.com/RoGogDBD/sparkplug-b/internal/grpcserver"
	"github.com/RoGogDBD/sparkplug-b/internal/handler"
	"github.com/RoGogDBD/sparkplug-b/internal/host"
	"github.com/RoGogDBD/sparkplug-b/internal/metrics"
	"github.com/RoGogDBD/sparkplug-b/internal/repository"
	"github.com/RoGogDBD/sparkplug-b/internal/service"
	"github.com/RoGogDBD/sparkplug-b/internal/transport"
	"github.com/RoGogDBD/sparkplug-b/internal/version"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// dbSyncInterval — период сохранения последних значений в PostgreSQL.
const dbSyncInterval = 10 * time.Second

func main() {
	version.PrintBuildInfo(os.Stdout)
	if err := run(os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("host failed: %v", err)
	}
}

func run(args []string) error {
	cfg, err := config.LoadHostConfig(args)
	if err != nil {
		return err
	}

	logger, err := config.Initialize(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	observers := repository.NewObserverManager(logger)
	if cfg.AuditFile != "" {
		fo, err := repository.NewFileObserver(cfg.AuditFile)
		if err != nil {
			return err
		}
		observers.Attach(fo)
	}
	if cfg.WebhookURL != "" {
		observers.Attach(repository.NewWebhookObserver(cfg.WebhookURL))
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		observers.Attach(repository.NewRedisSink(rdb))
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "host-" + uuid.NewString()
	}
	mq := transport.NewMQTT(transport.MQTTOptions{
		Broker:   cfg.Broker,
		ClientID: clientID,
		Username: cfg.Username,
		Password: cfg.Password,
	}, logger)

	h, err := host.NewHostAgent(host.Config{
		HostID:      cfg.HostID,
		SettleDelay: cfg.SettleDelay,
		Subject:     observers,
		Logger:      logger,
		Recorder:    metrics.NewRecorder(promReg),
	}, mq)
	if err != nil {
		return err
	}
	if err := addConsumers(h, cfg.Consumers); err != nil {
		return err
	}

	var pinger handler.Pinger
	if cfg.DatabaseDSN != "" {
		pool, err := db.InitDB(ctx, cfg.DatabaseDSN, logger)
		if err != nil {
			return err
		}
		pg := repository.NewPostgres(pool)
		defer pg.Close()
		pinger = pg
		go syncLoop(ctx, h, repository.NewPostgresSink(pool, logger), dbSyncInterval, logger)
	} else {
		logger.Info("no DSN provided, database features disabled")
	}

	srv := &http.Server{
		Addr:    cfg.Address.String(),
		Handler: service.NewRouter(handler.NewHandler(h, pinger, logger), promReg, logger),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	if cfg.GRPCAddress != "" {
		subnet, err := grpcserver.ParseSubnet(cfg.TrustedSubnet)
		if err != nil {
			return err
		}
		hs := grpcserver.NewServer(subnet, logger)
		go func() {
			if err := hs.ListenAndServe(cfg.GRPCAddress); err != nil {
				logger.Error("grpc server stopped", zap.Error(err))
			}
		}()
		go hs.Watch(ctx, h.Online, cfg.PublishInterval)
		defer hs.GracefulStop()
	}

	if err := h.Start(); err != nil {
		logger.Warn("initial connect failed", zap.Error(err))
	}
	go supervise(ctx, h, cfg.PublishInterval, logger)

	logger.Info("host started",
		zap.String("host_id", cfg.HostID),
		zap.String("broker", cfg.Broker),
		zap.String("address", cfg.Address.String()),
		zap.Strings("consumers", cfg.Consumers))

	err = h.Run(ctx, cfg.PublishInterval)
	h.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("http shutdown failed", zap.Error(shutdownErr))
	}
	logger.Info("host stopped")
	return err
}
