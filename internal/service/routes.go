// Package service собирает HTTP-роутер хост-приложения.
package service

import (
	"github.com/RoGogDBD/sparkplug-b/internal/config"
	"github.com/RoGogDBD/sparkplug-b/internal/handler"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter создает и настраивает HTTP-роутер хоста.
//
// Параметры:
//   - h: обработчик запросов (handler.Handler)
//   - gatherer: источник метрик Prometheus для /metrics; nil отключает эндпоинт
//   - logger: логгер для логирования запросов
//
// Возвращает:
//   - *chi.Mux: настроенный роутер
func NewRouter(h *handler.Handler, gatherer prometheus.Gatherer, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)         // Добавляет уникальный идентификатор запроса
	r.Use(middleware.RealIP)            // Определяет реальный IP клиента
	r.Use(config.RequestLogger(logger)) // Логирует запросы с помощью zap
	r.Use(middleware.Recoverer)         // Восстанавливает после паники
	r.Use(middleware.Compress(5))       // Сжимает ответы

	r.Get("/", h.HandleMetricsPage)
	r.Get("/ping", h.HandlePing)
	r.Get("/health", h.HandleHealth)
	r.Get("/value", h.HandleGetMetricValue)
	r.Post("/update", h.HandleUpdate)
	r.Post("/rebirth", h.HandleRebirth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/consumers", h.HandleConsumers)
		r.Get("/metrics", h.HandleMetrics)
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
