package transport

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTOptions — параметры подключения к MQTT-брокеру.
type MQTTOptions struct {
	Broker         string        // URL брокера, например tcp://localhost:1883
	ClientID       string        // Идентификатор клиента
	Username       string        // Имя пользователя (необязательно)
	Password       string        // Пароль (необязательно)
	KeepAlive      time.Duration // Интервал keep-alive, 0 — 30с
	ConnectTimeout time.Duration // Таймаут подключения, 0 — 10с
}

// MQTT — реализация Transport поверх paho.mqtt.golang.
//
// Автоматическое переподключение отключено: каждое соединение — отдельный цикл
// birth/death, и решение о повторном Connect принимает агент.
type MQTT struct {
	opts   MQTTOptions
	logger *zap.Logger

	mu      sync.Mutex
	client  mqtt.Client
	handler Handler
}

// NewMQTT создаёт адаптер; соединение не открывается до вызова Connect.
func NewMQTT(opts MQTTOptions, logger *zap.Logger) *MQTT {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.KeepAlive == 0 {
		opts.KeepAlive = 30 * time.Second
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	return &MQTT{opts: opts, logger: logger}
}

// Connect создаёт клиента paho с последней волей и запрашивает подключение.
// Результат доставляется через h.OnConnected или h.OnConnectionLost.
func (m *MQTT) Connect(will *Will, h Handler) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.opts.Broker)
	opts.SetClientID(m.opts.ClientID)
	if m.opts.Username != "" {
		opts.SetUsername(m.opts.Username)
	}
	if m.opts.Password != "" {
		opts.SetPassword(m.opts.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetKeepAlive(m.opts.KeepAlive)
	opts.SetConnectTimeout(m.opts.ConnectTimeout)
	if will != nil {
		opts.SetBinaryWill(will.Topic, will.Payload, will.QoS, will.Retained)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if !m.current(c) {
			// соединение, запрошенное до Disconnect или до следующего Connect
			c.Disconnect(0)
			return
		}
		h.OnConnected()
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		if !m.current(c) {
			return
		}
		m.logger.Warn("mqtt connection lost", zap.Error(err))
		h.OnConnectionLost(err)
	})
	opts.SetDefaultPublishHandler(func(c mqtt.Client, msg mqtt.Message) {
		if m.current(c) {
			h.OnMessage(msg.Topic(), msg.Payload())
		}
	})

	client := mqtt.NewClient(opts)
	m.mu.Lock()
	prev := m.client
	m.client = client
	m.handler = h
	m.mu.Unlock()
	if prev != nil {
		go prev.Disconnect(0)
	}

	token := client.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil && m.current(client) {
			m.logger.Error("mqtt connect failed", zap.String("broker", m.opts.Broker), zap.Error(err))
			h.OnConnectionLost(fmt.Errorf("failed to connect to MQTT broker: %w", err))
		}
	}()
	return nil
}

// Disconnect закрывает соединение, ожидая до 250мс отправки исходящих сообщений.
// Подключение, которое ещё не завершилось, прерывается; его колбэки больше не вызываются.
func (m *MQTT) Disconnect() {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.handler = nil
	m.mu.Unlock()
	if client != nil {
		client.Disconnect(250)
	}
}

// Subscribe подписывается на фильтры одним запросом SUBSCRIBE.
func (m *MQTT) Subscribe(topics []string, qos byte) error {
	client, h, err := m.active()
	if err != nil {
		return err
	}
	filters := make(map[string]byte, len(topics))
	for _, t := range topics {
		filters[t] = qos
	}
	token := client.SubscribeMultiple(filters, nil)
	topics = append([]string(nil), topics...)
	go func() {
		token.Wait()
		h.OnSubscribed(topics, token.Error())
	}()
	return nil
}

// Unsubscribe отменяет подписки.
func (m *MQTT) Unsubscribe(topics ...string) error {
	client, _, err := m.active()
	if err != nil {
		return err
	}
	token := client.Unsubscribe(topics...)
	go func() {
		if token.Wait() && token.Error() != nil {
			m.logger.Warn("mqtt unsubscribe failed", zap.Strings("topics", topics), zap.Error(token.Error()))
		}
	}()
	return nil
}

// Publish ставит сообщение в очередь paho. Ошибка доставки только логируется.
func (m *MQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	client, _, err := m.active()
	if err != nil {
		return err
	}
	token := client.Publish(topic, qos, retained, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			m.logger.Warn("mqtt publish failed", zap.String("topic", topic), zap.Error(token.Error()))
		}
	}()
	return nil
}

// IsConnected сообщает, открыто ли соединение.
func (m *MQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil && m.client.IsConnectionOpen()
}

func (m *MQTT) current(c mqtt.Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client == c
}

func (m *MQTT) active() (mqtt.Client, Handler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil || !m.client.IsConnectionOpen() {
		return nil, nil, ErrNotConnected
	}
	return m.client, m.handler, nil
}
