package repository

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	models "github.com/RoGogDBD/sparkplug-b/internal/model"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// FileObserver дописывает события обновления метрик в файл в формате JSON Lines.
//
// Поля:
//   - filePath: путь к файлу журнала
//   - mu: мьютекс для синхронизации доступа к файлу
type FileObserver struct {
	filePath string
	mu       sync.Mutex
}

// NewFileObserver создаёт наблюдателя, пишущего в filePath.
// Каталог файла создаётся при необходимости.
func NewFileObserver(filePath string) (*FileObserver, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return &FileObserver{filePath: filePath}, nil
}

// OnMetricUpdate записывает событие одной строкой JSON.
func (f *FileObserver) OnMetricUpdate(update models.MetricUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal file: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal metric update: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write metric update: %w", err)
	}
	return nil
}

// WebhookObserver отправляет события обновления метрик POST-запросом на внешний URL.
type WebhookObserver struct {
	client *resty.Client
	url    string
}

// NewWebhookObserver создаёт наблюдателя с клиентом resty: таймаут 5с, 3 повтора.
func NewWebhookObserver(url string) *WebhookObserver {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond)
	return &WebhookObserver{client: client, url: url}
}

// OnMetricUpdate отправляет событие как JSON. Ответы кроме 200/201/204 считаются ошибкой.
func (w *WebhookObserver) OnMetricUpdate(update models.MetricUpdate) error {
	resp, err := w.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(update).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("failed to send metric update: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
}

// ObserverManager рассылает события обновления метрик подключённым наблюдателям.
//
// Ошибки наблюдателей логируются и не прерывают рассылку.
type ObserverManager struct {
	observers []models.MetricObserver
	logger    *zap.Logger
	mu        sync.RWMutex
}

// NewObserverManager создаёт пустой менеджер. nil logger заменяется на no-op.
func NewObserverManager(logger *zap.Logger) *ObserverManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObserverManager{
		observers: make([]models.MetricObserver, 0),
		logger:    logger,
	}
}

// Attach добавляет наблюдателя.
func (a *ObserverManager) Attach(observer models.MetricObserver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, observer)
}

// Detach удаляет наблюдателя.
func (a *ObserverManager) Detach(observer models.MetricObserver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, obs := range a.observers {
		if obs == observer {
			a.observers = append(a.observers[:i], a.observers[i+1:]...)
			break
		}
	}
}

// Notify передаёт событие всем наблюдателям по очереди.
func (a *ObserverManager) Notify(update models.MetricUpdate) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, observer := range a.observers {
		if err := observer.OnMetricUpdate(update); err != nil {
			a.logger.Warn("metric observer error",
				zap.String("producer", update.Producer),
				zap.String("metric", update.Name),
				zap.Error(err))
		}
	}
}

// HasObservers проверяет, есть ли подключённые наблюдатели.
func (a *ObserverManager) HasObservers() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.observers) > 0
}
