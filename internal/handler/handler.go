// Package handler содержит HTTP-обработчики инспекции и управления хост-приложением.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"strings"

	"github.com/RoGogDBD/sparkplug-b/internal/host"
	models "github.com/RoGogDBD/sparkplug-b/internal/model"
	"github.com/RoGogDBD/sparkplug-b/internal/topic"
	"github.com/RoGogDBD/sparkplug-b/internal/transport"
	"go.uber.org/zap"
)

// Host — операции хост-приложения, доступные через HTTP.
type Host interface {
	HostID() string
	Online() bool
	Consumers() []*host.Consumer
	Consumer(id topic.Identity) (*host.Consumer, bool)
	SetValue(id topic.Identity, name string, v any) error
	Rebirth(id topic.Identity) error
	Do(ctx context.Context, fn func() error) error
}

// Pinger проверяет доступность базы данных.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler обслуживает HTTP API хоста.
type Handler struct {
	host   Host
	db     Pinger
	logger *zap.Logger
}

// NewHandler создаёт обработчик. db может быть nil — тогда /ping отвечает 500.
func NewHandler(h Host, db Pinger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{host: h, db: db, logger: logger}
}

// MetricView — метрика в ответах API.
type MetricView struct {
	Name      string  `json:"name"`
	Alias     *uint64 `json:"alias,omitempty"`
	Datatype  string  `json:"datatype"`
	Value     string  `json:"value"`
	Timestamp uint64  `json:"timestamp"`
}

// UpdateRequest — тело запроса POST /update.
type UpdateRequest struct {
	Producer string `json:"producer"`
	Name     string `json:"name"`
	Value    string `json:"value"`
}

// RebirthRequest — тело запроса POST /rebirth.
type RebirthRequest struct {
	Producer string `json:"producer"`
}

func viewOf(m models.Metric) MetricView {
	v := MetricView{
		Name:      m.Name,
		Datatype:  m.Datatype.String(),
		Value:     m.ValueString(),
		Timestamp: m.Timestamp,
	}
	if m.HasAlias {
		alias := m.Alias
		v.Alias = &alias
	}
	return v
}

// HandleConsumers возвращает состояние всех консюмеров.
func (h *Handler) HandleConsumers(w http.ResponseWriter, r *http.Request) {
	consumers := h.host.Consumers()
	out := make([]host.ConsumerStatus, 0, len(consumers))
	for _, c := range consumers {
		out = append(out, c.Status())
	}
	h.writeJSON(w, http.StatusOK, out)
}

// HandleMetrics возвращает метрики консюмера ?producer=group/node[/device].
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	c, ok := h.consumerFromQuery(w, r)
	if !ok {
		return
	}
	metrics := c.Registry().Metrics()
	out := make([]MetricView, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, viewOf(m))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// HandleGetMetricValue возвращает значение метрики ?producer=...&name=... в текстовом виде.
func (h *Handler) HandleGetMetricValue(w http.ResponseWriter, r *http.Request) {
	c, ok := h.consumerFromQuery(w, r)
	if !ok {
		return
	}
	m, ok := c.Registry().GetMetric(r.URL.Query().Get("name"))
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(m.ValueString()))
}

// HandleUpdate записывает значение метрики консюмера; команда уйдёт на следующем такте агрегации.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	id, err := topic.ParseIdentity(req.Producer)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, ok := h.host.Consumer(id)
	if !ok {
		http.Error(w, "unknown consumer", http.StatusNotFound)
		return
	}
	m, ok := c.Registry().GetMetric(req.Name)
	if !ok {
		http.Error(w, "unknown metric", http.StatusNotFound)
		return
	}
	v, err := models.ParseValue(m.Datatype, req.Value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.host.Do(r.Context(), func() error { return h.host.SetValue(id, req.Name, v) })
	if err != nil {
		h.writeError(w, err)
		return
	}
	m, _ = c.Registry().GetMetric(req.Name)
	h.writeJSON(w, http.StatusOK, viewOf(m))
}

// HandleRebirth отправляет производителю команду повторного birth.
func (h *Handler) HandleRebirth(w http.ResponseWriter, r *http.Request) {
	var req RebirthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	id, err := topic.ParseIdentity(req.Producer)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.host.Do(r.Context(), func() error { return h.host.Rebirth(id) }); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleMetricsPage отображает HTML-страницу со всеми консюмерами и их метриками.
func (h *Handler) HandleMetricsPage(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("<html><body><h1>" + html.EscapeString(h.host.HostID()) + "</h1>")
	for _, c := range h.host.Consumers() {
		st := c.Status()
		state := "offline"
		if st.Online {
			state = "online"
		}
		b.WriteString("<h2>" + html.EscapeString(st.ID) + " (" + state + ")</h2><ul>")
		for _, m := range c.Registry().Metrics() {
			b.WriteString("<li>" + html.EscapeString(m.Name) + ": " + html.EscapeString(m.ValueString()) + "</li>")
		}
		b.WriteString("</ul>")
	}
	b.WriteString("</body></html>")

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}

// HandlePing проверяет соединение с базой данных.
func (h *Handler) HandlePing(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		http.Error(w, "database not configured", http.StatusInternalServerError)
		return
	}
	if err := h.db.Ping(r.Context()); err != nil {
		http.Error(w, "database not reachable: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleHealth сообщает, опубликовал ли хост online-статус.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !h.host.Online() {
		http.Error(w, "host offline", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) consumerFromQuery(w http.ResponseWriter, r *http.Request) (*host.Consumer, bool) {
	id, err := topic.ParseIdentity(r.URL.Query().Get("producer"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	c, ok := h.host.Consumer(id)
	if !ok {
		http.Error(w, "unknown consumer", http.StatusNotFound)
		return nil, false
	}
	return c, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, host.ErrUnknownConsumer), errors.Is(err, models.ErrUnknownMetric):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidValue), errors.Is(err, models.ErrMissingIdentifier):
		status = http.StatusBadRequest
	case errors.Is(err, transport.ErrNotConnected):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusGatewayTimeout
	default:
		h.logger.Error("request failed", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}
