// Package host реализует хост-приложение Sparkplug B: набор консюмеров узлов и устройств,
// маршрутизацию входящих сообщений, агрегацию исходящих команд и объявление статуса STATE.
package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/RoGogDBD/sparkplug-b/internal/codec"
	"github.com/RoGogDBD/sparkplug-b/internal/metrics"
	models "github.com/RoGogDBD/sparkplug-b/internal/model"
	"github.com/RoGogDBD/sparkplug-b/internal/topic"
	"github.com/RoGogDBD/sparkplug-b/internal/transport"
	"go.uber.org/zap"
)

var (
	// ErrUnknownConsumer — консюмер с такой идентичностью не добавлен.
	ErrUnknownConsumer = errors.New("unknown consumer")
	// ErrInvalidHostID — пустой идентификатор хоста или идентификатор с разделителями MQTT.
	ErrInvalidHostID = errors.New("invalid host id")
)

// DefaultSettleDelay — задержка между завершением подписок и публикацией online-статуса.
const DefaultSettleDelay = time.Second

const role = "host"

// Config — параметры хост-приложения.
type Config struct {
	HostID      string
	SettleDelay time.Duration        // 0 — публикация статуса в том же такте
	Subject     models.MetricSubject // Получатель событий обновления метрик всех консюмеров
	Logger      *zap.Logger
	Recorder    *metrics.Recorder
}

// HostAgent — хост-приложение.
//
// Все изменения консюмеров и счётчиков выполняются в Tick. Карта консюмеров защищена
// мьютексом только для чтения из HTTP/gRPC-обработчиков.
type HostAgent struct {
	hostID      string
	statusTopic string
	settleDelay time.Duration
	subject     models.MetricSubject
	transport   transport.Transport
	queue       *transport.Queue
	logger      *zap.Logger
	recorder    *metrics.Recorder

	mu        sync.RWMutex
	consumers map[string]*Consumer

	running    bool
	connected  bool
	subscribed bool
	online     bool
	startTs    int64
	seq        uint64
	settle     *time.Timer
	generation uint64
}

// NewHostAgent создаёт хост поверх транспорта.
func NewHostAgent(cfg Config, t transport.Transport) (*HostAgent, error) {
	if cfg.HostID == "" || strings.ContainsAny(cfg.HostID, "/+#") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHostID, cfg.HostID)
	}
	if t == nil {
		return nil, errors.New("host agent: transport is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostAgent{
		hostID:      cfg.HostID,
		statusTopic: topic.BuildHostStatusTopic(topic.Namespace, cfg.HostID),
		settleDelay: cfg.SettleDelay,
		subject:     cfg.Subject,
		transport:   t,
		queue:       transport.NewQueue(),
		logger:      logger.With(zap.String("host", cfg.HostID)),
		recorder:    cfg.Recorder,
		consumers:   make(map[string]*Consumer),
	}, nil
}

// HostID возвращает идентификатор хоста.
func (h *HostAgent) HostID() string { return h.hostID }

// StatusTopic возвращает топик STATE хоста.
func (h *HostAgent) StatusTopic() string { return h.statusTopic }

// Online сообщает, опубликован ли online-статус в текущем соединении.
func (h *HostAgent) Online() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.online
}

// Seq возвращает текущий seq команд.
func (h *HostAgent) Seq() uint64 { return h.seq }

// Post выполняет fn в следующем такте агента.
func (h *HostAgent) Post(fn func()) { h.queue.Post(fn) }

// Do выполняет fn в такте агента и ждёт результата.
// Используется обработчиками HTTP, которые работают в своих горутинах.
func (h *HostAgent) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	h.queue.Post(func() { done <- fn() })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddNode добавляет консюмера узла group/node.
func (h *HostAgent) AddNode(group, node string) (*Consumer, error) {
	return h.AddConsumer(topic.NodeIdentity(group, node))
}

// AddDevice добавляет консюмера устройства group/node/device.
func (h *HostAgent) AddDevice(group, node, device string) (*Consumer, error) {
	return h.AddConsumer(topic.DeviceIdentity(group, node, device))
}

// AddConsumer добавляет консюмера; при активном соединении сразу подписывается на его топики.
// Повторное добавление возвращает существующего консюмера.
func (h *HostAgent) AddConsumer(id topic.Identity) (*Consumer, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("add consumer: %w", err)
	}
	key := id.String()

	h.mu.Lock()
	if c, ok := h.consumers[key]; ok {
		h.mu.Unlock()
		return c, nil
	}
	c := newConsumer(id, h.subject)
	h.consumers[key] = c
	h.mu.Unlock()

	if h.connected {
		if err := h.transport.Subscribe(c.topics(), transport.AtMostOnce); err != nil {
			h.logger.Error("consumer subscribe failed", zap.String("consumer", key), zap.Error(err))
		}
	}
	h.logger.Info("consumer added", zap.String("consumer", key))
	return c, nil
}

// RemoveConsumer удаляет консюмера и отписывается от его топиков.
func (h *HostAgent) RemoveConsumer(id topic.Identity) bool {
	key := id.String()
	h.mu.Lock()
	c, ok := h.consumers[key]
	delete(h.consumers, key)
	h.mu.Unlock()
	if !ok {
		return false
	}
	if h.connected {
		if err := h.transport.Unsubscribe(c.topics()...); err != nil {
			h.logger.Warn("consumer unsubscribe failed", zap.String("consumer", key), zap.Error(err))
		}
	}
	h.recorder.SetOnline(key, false)
	return true
}

// Consumer возвращает консюмера по идентичности.
func (h *HostAgent) Consumer(id topic.Identity) (*Consumer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.consumers[id.String()]
	return c, ok
}

// Consumers возвращает консюмеров, упорядоченных по идентичности.
func (h *HostAgent) Consumers() []*Consumer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Consumer, 0, len(h.consumers))
	for _, c := range h.consumers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id.String() < out[j].id.String() })
	return out
}

// Start взводит волю {online=false, timestamp=время старта} и запрашивает подключение.
// Повторный вызов без Stop ничего не делает.
func (h *HostAgent) Start() error {
	if h.running {
		return nil
	}
	h.startTs = int64(models.NowMillis())
	payload, err := codec.EncodeHostState(models.HostState{Online: false, Timestamp: h.startTs})
	if err != nil {
		return fmt.Errorf("host will: %w", err)
	}
	will := &transport.Will{
		Topic:    h.statusTopic,
		Payload:  payload,
		QoS:      transport.AtLeastOnce,
		Retained: true,
	}
	h.running = true
	if err := h.transport.Connect(will, h.queue); err != nil {
		h.running = false
		return fmt.Errorf("host connect: %w", err)
	}
	h.logger.Info("host connecting")
	return nil
}

// Stop публикует offline-статус с текущим временем и закрывает соединение.
// Повторный вызов безопасен.
func (h *HostAgent) Stop() {
	if !h.running {
		return
	}
	h.cancelSettle()
	if h.connected {
		// offline должен быть строго новее online, иначе edge его отбросит
		ts := max(int64(models.NowMillis()), h.startTs+1)
		if err := h.publishState(false, ts); err != nil {
			h.logger.Warn("offline state not published", zap.Error(err))
		}
	}
	h.transport.Disconnect()
	h.reset()
	h.logger.Info("host stopped")
}

func (h *HostAgent) reset() {
	h.running = false
	h.connected = false
	h.subscribed = false
	h.setOnline(false)
}

// Tick обрабатывает накопленные события транспорта и отложенные задачи.
func (h *HostAgent) Tick() {
	for events := h.queue.Drain(); len(events) > 0; events = h.queue.Drain() {
		for _, ev := range events {
			h.handle(ev)
		}
	}
}

// Run выполняет цикл хоста до отмены ctx; агрегированные команды публикуются раз в interval.
func (h *HostAgent) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Tick()
			return ctx.Err()
		case <-h.queue.Ready():
			h.Tick()
		case <-ticker.C:
			h.Tick()
			if _, err := h.PublishCommands(); err != nil {
				h.logger.Error("publish commands failed", zap.Error(err))
			}
		}
	}
}

func (h *HostAgent) handle(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnected:
		h.onConnected()
	case transport.EventConnectionLost:
		if h.running {
			h.logger.Warn("host connection lost", zap.Error(ev.Err))
		}
		h.cancelSettle()
		h.reset()
	case transport.EventSubscribed:
		if ev.Err != nil {
			h.logger.Error("host subscribe failed", zap.Strings("topics", ev.Topics), zap.Error(ev.Err))
			return
		}
		h.onSubscribed()
	case transport.EventMessage:
		h.onMessage(ev.Topic, ev.Payload)
	case transport.EventTask:
		ev.Task()
	}
}

func (h *HostAgent) onConnected() {
	if !h.running {
		// подключение завершилось уже после Stop
		h.transport.Disconnect()
		h.logger.Info("late connection closed after stop")
		return
	}
	if h.connected {
		return
	}
	h.connected = true

	var topics []string
	for _, c := range h.Consumers() {
		topics = append(topics, c.topics()...)
	}
	if len(topics) == 0 {
		h.onSubscribed()
		return
	}
	if err := h.transport.Subscribe(topics, transport.AtMostOnce); err != nil {
		h.logger.Error("host subscribe failed", zap.Error(err))
	}
}

// onSubscribed запускает однократный таймер объявления online-статуса.
// Отсчёт ведётся от завершения подписок первого набора консюмеров.
func (h *HostAgent) onSubscribed() {
	if !h.connected || h.subscribed {
		return
	}
	h.subscribed = true
	h.generation++
	gen := h.generation

	if h.settleDelay <= 0 {
		h.announce(gen)
		return
	}
	h.settle = time.AfterFunc(h.settleDelay, func() {
		h.queue.Post(func() { h.announce(gen) })
	})
}

func (h *HostAgent) announce(gen uint64) {
	if gen != h.generation || !h.connected || h.Online() {
		return
	}
	if err := h.publishState(true, h.startTs); err != nil {
		h.logger.Error("online state not published", zap.Error(err))
		return
	}
	h.setOnline(true)
	h.logger.Info("host online", zap.Int64("timestamp", h.startTs))
}

func (h *HostAgent) cancelSettle() {
	if h.settle != nil {
		h.settle.Stop()
		h.settle = nil
	}
	h.generation++
}

func (h *HostAgent) setOnline(v bool) {
	h.mu.Lock()
	h.online = v
	h.mu.Unlock()
}

func (h *HostAgent) publishState(online bool, ts int64) error {
	payload, err := codec.EncodeHostState(models.HostState{Online: online, Timestamp: ts})
	if err != nil {
		return err
	}
	if err := h.transport.Publish(h.statusTopic, transport.AtLeastOnce, true, payload); err != nil {
		return err
	}
	h.recorder.IncPublished(role, string(topic.State))
	return nil
}

func (h *HostAgent) onMessage(t string, payload []byte) {
	parsed, err := topic.ParseTopic(t)
	if err != nil {
		h.recorder.IncDropped(role, "routing_miss")
		h.logger.Warn("routing miss", zap.String("topic", t), zap.Error(err))
		return
	}
	c, ok := h.Consumer(parsed.Identity())
	if !ok {
		h.recorder.IncDropped(role, "routing_miss")
		h.logger.Warn("routing miss: no consumer", zap.String("topic", t))
		return
	}
	h.recorder.IncReceived(role, string(parsed.Type))

	p, err := codec.DecodePayload(payload)
	if err != nil {
		h.recorder.IncDropped(role, "malformed")
		h.logger.Warn("malformed payload dropped", zap.String("topic", t), zap.Error(err))
		return
	}

	switch {
	case parsed.Type.IsBirth():
		h.applyBirth(c, p)
	case parsed.Type.IsData(), parsed.Type.IsDeath():
		h.applyUpdate(c, p)
	default:
		h.recorder.IncDropped(role, "routing_miss")
		h.logger.Warn("unexpected message type", zap.String("topic", t))
		return
	}
	c.observe(parsed.Type, p)
	h.recorder.SetOnline(c.id.String(), c.Status().Online)
}

func (h *HostAgent) applyBirth(c *Consumer, p *models.Payload) {
	for _, m := range p.Metrics {
		if !m.HasName() {
			h.logger.Warn("birth metric without name skipped",
				zap.String("consumer", c.id.String()), zap.Uint64("alias", m.Alias))
			continue
		}
		if err := c.registry.Register(m); err != nil {
			h.logger.Warn("birth metric not registered", zap.String("consumer", c.id.String()), zap.Error(err))
		}
	}
}

func (h *HostAgent) applyUpdate(c *Consumer, p *models.Payload) {
	for _, m := range p.Metrics {
		if _, err := c.registry.UpdateFromRemote(m); err != nil {
			h.logger.Debug("metric update not applied", zap.String("consumer", c.id.String()), zap.Error(err))
		}
	}
}

// SetValue записывает значение метрики консюмера; команда уйдёт на следующем такте агрегации.
func (h *HostAgent) SetValue(id topic.Identity, name string, v any) error {
	c, ok := h.Consumer(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConsumer, id)
	}
	return c.registry.SetValue(name, v)
}

// PublishCommands публикует по одной команде каждому консюмеру с изменёнными метриками.
//
// Консюмер, метрики которого нельзя адресовать, пропускается с сохранением его изменений;
// ошибки всех консюмеров возвращаются вместе. Возвращает число опубликованных команд.
func (h *HostAgent) PublishCommands() (int, error) {
	if !h.connected {
		return 0, nil
	}
	var (
		sent int
		errs []error
	)
	for _, c := range h.Consumers() {
		if !c.registry.HasChanged() {
			continue
		}
		out, err := commandMetrics(c.registry.SnapshotChanged())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.id, err))
			continue
		}
		c.registry.ClearChanged()
		if err := h.publishCommand(c, out); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// SendCommand немедленно отправляет метрики консюмеру, минуя множество изменённых.
func (h *HostAgent) SendCommand(id topic.Identity, ms []models.Metric) error {
	c, ok := h.Consumer(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConsumer, id)
	}
	if !h.connected {
		return transport.ErrNotConnected
	}
	out, err := commandMetrics(ms)
	if err != nil {
		return err
	}
	return h.publishCommand(c, out)
}

// Rebirth запрашивает у производителя повторный birth.
func (h *HostAgent) Rebirth(id topic.Identity) error {
	return h.SendCommand(id, []models.Metric{{
		Name:         models.RebirthMetric,
		Datatype:     models.Boolean,
		BooleanValue: true,
	}})
}

func (h *HostAgent) publishCommand(c *Consumer, ms []models.Metric) error {
	h.seq = models.NextSeq(h.seq)
	p := &models.Payload{
		Timestamp: models.NowMillis(),
		Seq:       h.seq,
		HasSeq:    true,
		Metrics:   ms,
	}
	t := c.id.Topic(topic.NodeCommand)
	data, err := codec.EncodePayload(p)
	if err != nil {
		return fmt.Errorf("publish %s: %w", t, err)
	}
	if err := h.transport.Publish(t, transport.AtMostOnce, false, data); err != nil {
		return fmt.Errorf("publish %s: %w", t, err)
	}
	h.recorder.IncPublished(role, string(c.id.Level(topic.NodeCommand)))
	h.logger.Debug("command published", zap.String("topic", t), zap.Uint64("seq", p.Seq), zap.Int("metrics", len(ms)))
	return nil
}
