package agent

import (
	"github.com/RoGogDBD/sparkplug-b/internal/codec"
	models "github.com/RoGogDBD/sparkplug-b/internal/model"
	"github.com/RoGogDBD/sparkplug-b/internal/topic"
	"go.uber.org/zap"
)

// Transition — результат применения статуса основного хоста.
type Transition int

const (
	// NoTransition — статус отклонён или онлайн-состояние не изменилось.
	NoTransition Transition = iota
	// WentOnline — хост перешёл offline -> online.
	WentOnline
	// WentOffline — хост перешёл online -> offline.
	WentOffline
)

// Birther публикует birth-сообщение производителя.
type Birther interface {
	PublishBirth() error
}

// PrimaryHostMonitor отслеживает статус основного хоста на стороне edge-узла.
//
// Обновление принимается только при строго большей отметке времени.
// Переход offline -> online запускает повторный birth.
type PrimaryHostMonitor struct {
	hostID  string
	topic   string
	status  models.HostState
	birther Birther
	logger  *zap.Logger
}

// NewPrimaryHostMonitor создаёт монитор хоста hostID.
func NewPrimaryHostMonitor(hostID string, birther Birther, logger *zap.Logger) *PrimaryHostMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrimaryHostMonitor{
		hostID:  hostID,
		topic:   topic.BuildHostStatusTopic(topic.Namespace, hostID),
		birther: birther,
		logger:  logger,
	}
}

// Topic возвращает топик статуса хоста.
func (m *PrimaryHostMonitor) Topic() string {
	return m.topic
}

// Status возвращает последний принятый статус.
func (m *PrimaryHostMonitor) Status() models.HostState {
	return m.status
}

// Online сообщает, считается ли хост онлайн.
func (m *PrimaryHostMonitor) Online() bool {
	return m.status.Online
}

// Reset возвращает статус к {offline, 0}; вызывается при каждом Start агента.
func (m *PrimaryHostMonitor) Reset() {
	m.status = models.HostState{}
}

// Apply применяет статус и возвращает переход.
// Статус с отметкой времени не больше текущей игнорируется.
func (m *PrimaryHostMonitor) Apply(s models.HostState) Transition {
	if s.Timestamp <= m.status.Timestamp {
		m.logger.Debug("stale host state ignored",
			zap.String("host", m.hostID),
			zap.Int64("timestamp", s.Timestamp),
			zap.Int64("current", m.status.Timestamp))
		return NoTransition
	}
	was := m.status.Online
	m.status = s
	switch {
	case !was && s.Online:
		return WentOnline
	case was && !s.Online:
		return WentOffline
	default:
		return NoTransition
	}
}

// HandleMessage разбирает сообщение STATE, применяет его и при переходе в online
// публикует birth.
func (m *PrimaryHostMonitor) HandleMessage(payload []byte) (Transition, error) {
	s, err := codec.DecodeHostState(payload)
	if err != nil {
		return NoTransition, err
	}
	tr := m.Apply(s)
	switch tr {
	case WentOnline:
		m.logger.Info("primary host online", zap.String("host", m.hostID))
		if m.birther != nil {
			if err := m.birther.PublishBirth(); err != nil {
				return tr, err
			}
		}
	case WentOffline:
		m.logger.Info("primary host offline", zap.String("host", m.hostID))
	}
	return tr, nil
}
