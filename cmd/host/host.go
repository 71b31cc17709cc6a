package main

import (
	"context"
	"fmt"
	"time"

	"github.com/RoGogDBD/sparkplug-b/internal/host"
	"github.com/RoGogDBD/sparkplug-b/internal/repository"
	"github.com/RoGogDBD/sparkplug-b/internal/topic"
	"go.uber.org/zap"
)

// addConsumers регистрирует консюмеров из списка "group/node[/device]".
func addConsumers(h *host.HostAgent, ids []string) error {
	for _, s := range ids {
		id, err := topic.ParseIdentity(s)
		if err != nil {
			return fmt.Errorf("consumer %q: %w", s, err)
		}
		if _, err := h.AddConsumer(id); err != nil {
			return err
		}
	}
	return nil
}

// registries возвращает реестры всех консюмеров хоста.
func registries(h *host.HostAgent) []*repository.Registry {
	consumers := h.Consumers()
	out := make([]*repository.Registry, 0, len(consumers))
	for _, c := range consumers {
		out = append(out, c.Registry())
	}
	return out
}

// Syncer сохраняет снимок реестров во внешнее хранилище.
type Syncer interface {
	Sync(ctx context.Context, registries ...*repository.Registry) error
}

// syncLoop раз в interval сохраняет последние значения метрик всех консюмеров.
func syncLoop(ctx context.Context, h *host.HostAgent, s Syncer, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sync(ctx, registries(h)...); err != nil {
				logger.Error("failed to sync metrics", zap.Error(err))
			}
		}
	}
}

// supervise переподключает хост после потери соединения. Проверка выполняется в такте хоста.
func supervise(ctx context.Context, h *host.HostAgent, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Post(func() {
				if err := h.Start(); err != nil {
					logger.Warn("reconnect failed", zap.Error(err))
				}
			})
		}
	}
}
