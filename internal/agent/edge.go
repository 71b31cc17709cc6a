// Package agent реализует сторону производителя Sparkplug B: edge-узел или устройство,
// публикующее birth/data и обрабатывающее команды, а также монитор основного хоста.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RoGogDBD/sparkplug-b/internal/codec"
	"github.com/RoGogDBD/sparkplug-b/internal/metrics"
	models "github.com/RoGogDBD/sparkplug-b/internal/model"
	"github.com/RoGogDBD/sparkplug-b/internal/repository"
	"github.com/RoGogDBD/sparkplug-b/internal/topic"
	"github.com/RoGogDBD/sparkplug-b/internal/transport"
	"go.uber.org/zap"
)

// ErrNothingToPublish — PublishData не нашёл изменённых метрик или основной хост офлайн.
var ErrNothingToPublish = errors.New("nothing to publish")

const role = "edge"

// State — состояние соединения edge-агента.
type State int

const (
	Disconnected State = iota
	Connecting
	AwaitingHost
	Live
)

// String возвращает имя состояния.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AwaitingHost:
		return "awaiting_host"
	case Live:
		return "live"
	default:
		return "unknown"
	}
}

// EdgeConfig — параметры edge-агента.
type EdgeConfig struct {
	Identity      topic.Identity    // group/node или group/node/device
	PrimaryHostID string            // Пусто — публикация без ожидания хоста
	UseAlias      bool              // Публиковать data по алиасам
	Logger        *zap.Logger       // nil — no-op
	Recorder      *metrics.Recorder // nil — без счётчиков
}

// EdgeAgent — конечный автомат производителя.
//
// Disconnected -> Connecting (воля взведена) -> AwaitingHost (если задан основной хост) -> Live.
// Все переходы выполняются в Tick; колбэки транспорта только ставят события в очередь.
type EdgeAgent struct {
	id        topic.Identity
	useAlias  bool
	transport transport.Transport
	registry  *repository.Registry
	queue     *transport.Queue
	monitor   *PrimaryHostMonitor
	logger    *zap.Logger
	recorder  *metrics.Recorder

	state     State
	connected bool
	seq       uint64
	bdSeq     uint64
}

// NewEdgeAgent создаёт агента поверх транспорта и реестра метрик.
func NewEdgeAgent(cfg EdgeConfig, t transport.Transport, reg *repository.Registry) (*EdgeAgent, error) {
	if err := cfg.Identity.Validate(); err != nil {
		return nil, fmt.Errorf("edge agent: %w", err)
	}
	if t == nil || reg == nil {
		return nil, errors.New("edge agent: transport and registry are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &EdgeAgent{
		id:        cfg.Identity,
		useAlias:  cfg.UseAlias,
		transport: t,
		registry:  reg,
		queue:     transport.NewQueue(),
		logger:    logger.With(zap.String("producer", cfg.Identity.String())),
		recorder:  cfg.Recorder,
	}
	if cfg.PrimaryHostID != "" {
		a.monitor = NewPrimaryHostMonitor(cfg.PrimaryHostID, a, a.logger)
	}
	return a, nil
}

// Identity возвращает идентичность производителя.
func (a *EdgeAgent) Identity() topic.Identity { return a.id }

// Registry возвращает реестр метрик агента.
func (a *EdgeAgent) Registry() *repository.Registry { return a.registry }

// Monitor возвращает монитор основного хоста или nil.
func (a *EdgeAgent) Monitor() *PrimaryHostMonitor { return a.monitor }

// Seq возвращает текущий seq.
func (a *EdgeAgent) Seq() uint64 { return a.seq }

// BdSeq возвращает текущий bdSeq.
func (a *EdgeAgent) BdSeq() uint64 { return a.bdSeq }

// State возвращает текущее состояние.
func (a *EdgeAgent) State() State { return a.state }

// Post выполняет fn в следующем такте агента.
func (a *EdgeAgent) Post(fn func()) { a.queue.Post(fn) }

// Start увеличивает bdSeq, сбрасывает статус хоста, взводит волю с bdSeq и запрашивает
// подключение. Повторный вызов без Stop ничего не делает.
func (a *EdgeAgent) Start() error {
	if a.state != Disconnected {
		return nil
	}
	bdSeq := models.NextSeq(a.bdSeq)
	death, err := codec.EncodePayload(&models.Payload{Metrics: []models.Metric{bdSeqMetric(bdSeq)}})
	if err != nil {
		return fmt.Errorf("edge will: %w", err)
	}
	a.bdSeq = bdSeq
	if a.monitor != nil {
		a.monitor.Reset()
	}

	will := &transport.Will{
		Topic:   a.id.Topic(topic.NodeDeath),
		Payload: death,
		QoS:     transport.AtLeastOnce,
	}
	a.state = Connecting
	a.connected = false
	if err := a.transport.Connect(will, a.queue); err != nil {
		a.state = Disconnected
		return fmt.Errorf("edge connect: %w", err)
	}
	a.logger.Info("edge connecting", zap.Uint64("bdSeq", a.bdSeq))
	return nil
}

// Stop закрывает соединение явным disconnect. Death-сообщение не публикуется:
// его доставляет только воля при потере соединения. Повторный вызов безопасен.
func (a *EdgeAgent) Stop() {
	if a.state == Disconnected {
		return
	}
	a.state = Disconnected
	a.connected = false
	a.transport.Disconnect()
	a.logger.Info("edge stopped")
}

// Tick обрабатывает накопленные события транспорта и отложенные задачи,
// включая события, появившиеся во время обработки.
func (a *EdgeAgent) Tick() {
	for events := a.queue.Drain(); len(events) > 0; events = a.queue.Drain() {
		for _, ev := range events {
			a.handle(ev)
		}
	}
}

func (a *EdgeAgent) handle(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnected:
		a.onConnected()
	case transport.EventConnectionLost:
		if a.state != Disconnected {
			a.logger.Warn("edge connection lost", zap.Error(ev.Err))
		}
		a.state = Disconnected
		a.connected = false
	case transport.EventSubscribed:
		if ev.Err != nil {
			a.logger.Error("edge subscribe failed", zap.Strings("topics", ev.Topics), zap.Error(ev.Err))
		}
	case transport.EventMessage:
		a.onMessage(ev.Topic, ev.Payload)
	case transport.EventTask:
		ev.Task()
	}
}

// Run выполняет цикл агента до отмены ctx: события транспорта обрабатываются по мере
// поступления, изменённые метрики публикуются раз в interval.
func (a *EdgeAgent) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.Tick()
			return ctx.Err()
		case <-a.queue.Ready():
			a.Tick()
		case <-ticker.C:
			a.Tick()
			if err := a.PublishData(); err != nil &&
				!errors.Is(err, ErrNothingToPublish) && !errors.Is(err, transport.ErrNotConnected) {
				a.logger.Error("publish data failed", zap.Error(err))
			}
		}
	}
}

func (a *EdgeAgent) onConnected() {
	switch a.state {
	case Disconnected:
		// подключение завершилось уже после Stop
		a.transport.Disconnect()
		a.logger.Info("late connection closed after stop")
		return
	case Connecting:
	default:
		return
	}
	a.connected = true

	topics := []string{a.id.Topic(topic.NodeCommand)}
	if a.monitor != nil {
		topics = append(topics, a.monitor.Topic())
	}
	if err := a.transport.Subscribe(topics, transport.AtLeastOnce); err != nil {
		a.logger.Error("edge subscribe failed", zap.Error(err))
	}

	if a.monitor != nil {
		a.state = AwaitingHost
		a.logger.Info("edge connected, waiting for primary host")
		return
	}
	a.state = Live
	if err := a.PublishBirth(); err != nil {
		a.logger.Error("birth failed", zap.Error(err))
	}
}

func (a *EdgeAgent) onMessage(t string, payload []byte) {
	if a.monitor != nil && t == a.monitor.Topic() {
		a.recorder.IncReceived(role, string(topic.State))
		tr, err := a.monitor.HandleMessage(payload)
		if err != nil {
			if errors.Is(err, codec.ErrMalformedPayload) {
				a.recorder.IncDropped(role, "malformed")
			}
			a.logger.Warn("host state not applied", zap.String("topic", t), zap.Error(err))
		}
		if a.connected {
			switch tr {
			case WentOnline:
				a.state = Live
			case WentOffline:
				a.state = AwaitingHost
			}
		}
		return
	}
	if t == a.id.Topic(topic.NodeCommand) {
		a.recorder.IncReceived(role, string(a.id.Level(topic.NodeCommand)))
		a.onCommand(t, payload)
		return
	}
	a.recorder.IncDropped(role, "routing_miss")
	a.logger.Warn("unexpected topic", zap.String("topic", t))
}

func (a *EdgeAgent) onCommand(t string, payload []byte) {
	p, err := codec.DecodePayload(payload)
	if err != nil {
		a.recorder.IncDropped(role, "malformed")
		a.logger.Warn("malformed command dropped", zap.String("topic", t), zap.Error(err))
		return
	}
	for _, m := range p.Metrics {
		if m.Name == models.RebirthMetric {
			if m.BooleanValue {
				a.logger.Info("rebirth requested")
				if err := a.PublishBirth(); err != nil {
					a.logger.Error("rebirth failed", zap.Error(err))
				}
			}
			continue
		}
		if _, err := a.registry.UpdateFromRemote(m); err != nil {
			a.logger.Warn("command metric not applied", zap.String("topic", t), zap.Error(err))
		}
	}
}

// PublishBirth публикует birth: bdSeq, Node Control/Rebirth=false и все метрики реестра.
// Очищает множество изменённых метрик; seq не сбрасывается.
func (a *EdgeAgent) PublishBirth() error {
	if !a.connected {
		return transport.ErrNotConnected
	}
	all := a.registry.Metrics()
	out := make([]models.Metric, 0, len(all)+2)
	out = append(out, bdSeqMetric(a.bdSeq), models.Metric{
		Name:         models.RebirthMetric,
		Datatype:     models.Boolean,
		BooleanValue: false,
	})
	out = append(out, all...)

	p := &models.Payload{
		Timestamp: models.NowMillis(),
		Seq:       a.seq,
		HasSeq:    true,
		Metrics:   out,
	}
	a.registry.ClearChanged()
	return a.publish(topic.NodeBirth, p)
}

// PublishData публикует изменённые метрики.
//
// Возвращает ErrNothingToPublish, если изменений нет или основной хост офлайн,
// и ErrMissingIdentifier, если у метрики нет имени (или алиаса в режиме алиасов);
// в последнем случае seq и множество изменённых не меняются.
func (a *EdgeAgent) PublishData() error {
	if a.monitor != nil && !a.monitor.Online() {
		return ErrNothingToPublish
	}
	if !a.registry.HasChanged() {
		return ErrNothingToPublish
	}
	if !a.connected {
		return transport.ErrNotConnected
	}

	changed := a.registry.SnapshotChanged()
	out, err := OutboundMetrics(changed, a.useAlias)
	if err != nil {
		return err
	}

	a.seq = models.NextSeq(a.seq)
	a.registry.ClearChanged()
	p := &models.Payload{
		Timestamp: models.NowMillis(),
		Seq:       a.seq,
		HasSeq:    true,
		Metrics:   out,
	}
	return a.publish(topic.NodeData, p)
}

func (a *EdgeAgent) publish(kind topic.MessageType, p *models.Payload) error {
	t := a.id.Topic(kind)
	data, err := codec.EncodePayload(p)
	if err != nil {
		return fmt.Errorf("publish %s: %w", t, err)
	}
	if err := a.transport.Publish(t, transport.AtMostOnce, false, data); err != nil {
		return fmt.Errorf("publish %s: %w", t, err)
	}
	a.recorder.IncPublished(role, string(a.id.Level(kind)))
	a.logger.Debug("published", zap.String("topic", t), zap.Uint64("seq", p.Seq), zap.Int("metrics", len(p.Metrics)))
	return nil
}

func bdSeqMetric(bdSeq uint64) models.Metric {
	return models.Metric{Name: models.BdSeqMetric, Datatype: models.Int64, LongValue: bdSeq}
}

// OutboundMetrics строит метрики исходящего data/command-сообщения: по алиасу при useAlias,
// иначе по имени. Значение копируется через models.CopyValue (Template передаётся строкой).
func OutboundMetrics(src []models.Metric, useAlias bool) ([]models.Metric, error) {
	out := make([]models.Metric, 0, len(src))
	for i := range src {
		s := &src[i]
		m := models.Metric{Datatype: s.Datatype, Timestamp: s.Timestamp}
		switch {
		case useAlias && s.HasAlias:
			m.Alias, m.HasAlias = s.Alias, true
		case useAlias:
			return nil, fmt.Errorf("metric %q has no alias: %w", s.Name, models.ErrMissingIdentifier)
		case s.HasName():
			m.Name = s.Name
		default:
			return nil, fmt.Errorf("outbound metric: %w", models.ErrMissingIdentifier)
		}
		if err := models.CopyValue(s, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
