// Command edge — edge-узел Sparkplug B: публикует birth/data по MQTT и принимает команды хоста.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/RoGogDBD/sparkplug-b/internal/agent"
	"github.com/RoGogDBD/sparkplug-b/internal/config"
	"github.com/RoGogDBD/sparkplug-b/internal/grpcserver"
	"github.com/RoGogDBD/sparkplug-b/internal/metrics"
	"github.com/RoGogDBD/sparkplug-b/internal/repository"
	"github.com/RoGogDBD/sparkplug-b/internal/topic"
	"github.com/RoGogDBD/sparkplug-b/internal/transport"
	"github.com/RoGogDBD/sparkplug-b/internal/version"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Алиасы системных метрик не пересекаются с алиасами из конфигурации.
const systemAliasBase = 1000

func main() {
	version.PrintBuildInfo(os.Stdout)
	if err := run(os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("edge failed: %v", err)
	}
}

func run(args []string) error {
	cfg, err := config.LoadEdgeConfig(args)
	if err != nil {
		return err
	}

	logger, err := config.Initialize(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	id := topic.Identity{Group: cfg.Group, Node: cfg.Node, Device: cfg.Device}
	if err := id.Validate(); err != nil {
		return err
	}

	observers := repository.NewObserverManager(logger)
	if cfg.WebhookURL != "" {
		observers.Attach(repository.NewWebhookObserver(cfg.WebhookURL))
	}
	reg := repository.NewRegistry(id.String(), observers)

	if cfg.Restore {
		if n, err := repository.LoadSnapshot(reg, cfg.StoreFile); err != nil {
			logger.Warn("failed to restore metrics", zap.Error(err))
		} else if n > 0 {
			logger.Info("metrics restored", zap.String("file", cfg.StoreFile), zap.Int("count", n))
		}
	}
	for _, d := range cfg.Metrics {
		if reg.HasMetric(d.Name) {
			continue
		}
		if err := defineMetrics(reg, []config.MetricDef{d}); err != nil {
			return err
		}
	}

	var collector *SystemCollector
	if cfg.SystemMetrics {
		collector = NewSystemCollector(systemAliasBase)
		if err := collector.Define(reg); err != nil {
			return err
		}
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "edge-" + uuid.NewString()
	}
	mq := transport.NewMQTT(transport.MQTTOptions{
		Broker:   cfg.Broker,
		ClientID: clientID,
		Username: cfg.Username,
		Password: cfg.Password,
	}, logger)

	a, err := agent.NewEdgeAgent(agent.EdgeConfig{
		Identity:      id,
		PrimaryHostID: cfg.PrimaryHostID,
		UseAlias:      cfg.UseAlias,
		Logger:        logger,
		Recorder:      metrics.NewRecorder(prometheus.DefaultRegisterer),
	}, mq, reg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	var live atomic.Bool
	if cfg.GRPCAddress != "" {
		hs := grpcserver.NewServer(nil, logger)
		go func() {
			if err := hs.ListenAndServe(cfg.GRPCAddress); err != nil {
				logger.Error("grpc server stopped", zap.Error(err))
			}
		}()
		go hs.Watch(ctx, live.Load, cfg.PublishInterval)
		defer hs.GracefulStop()
	}

	if collector != nil {
		go pollLoop(ctx, collector, cfg.PublishInterval, func(values map[string]any) {
			a.Post(func() {
				if err := apply(reg, values); err != nil {
					logger.Warn("system metrics not applied", zap.Error(err))
				}
			})
		})
	}

	go supervise(ctx, a, cfg.PublishInterval, &live, logger)

	if err := a.Start(); err != nil {
		logger.Warn("initial connect failed", zap.Error(err))
	}
	logger.Info("edge started",
		zap.String("producer", id.String()),
		zap.String("broker", cfg.Broker),
		zap.String("client_id", clientID),
		zap.Int("metrics", reg.Len()))

	err = a.Run(ctx, cfg.PublishInterval)
	a.Stop()

	if saveErr := repository.SaveSnapshot(reg, cfg.StoreFile); saveErr != nil {
		logger.Error("failed to save metrics", zap.Error(saveErr))
	}
	logger.Info("edge stopped")
	return err
}

// supervise переподключает агента после потери соединения и обновляет флаг живости.
// Проверки выполняются в такте агента.
func supervise(ctx context.Context, a *agent.EdgeAgent, interval time.Duration, live *atomic.Bool, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Post(func() {
				live.Store(a.State() == agent.Live)
				if a.State() != agent.Disconnected {
					return
				}
				if err := a.Start(); err != nil {
					logger.Warn("reconnect failed", zap.Error(err))
				}
			})
		}
	}
}
