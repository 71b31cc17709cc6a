// Package transporttest содержит транспорты для тестов агентов: синхронный брокер в памяти
// и встроенный MQTT-брокер для проверки адаптера paho.
package transporttest

import (
	"strings"
	"sync"

	"github.com/RoGogDBD/sparkplug-b/internal/transport"
)

// Broker — брокер pub/sub в памяти процесса.
//
// Поддерживает retained-сообщения, фильтры с + и #, и последнюю волю, которая публикуется
// при Kill клиента. Обработчики вызываются синхронно из Publish/Subscribe/Connect вне
// внутренней блокировки брокера.
type Broker struct {
	mu       sync.Mutex
	clients  map[string]*Client
	retained map[string][]byte
}

// NewBroker создаёт пустой брокер.
func NewBroker() *Broker {
	return &Broker{
		clients:  make(map[string]*Client),
		retained: make(map[string][]byte),
	}
}

// Client создаёт клиента брокера с заданным идентификатором.
func (b *Broker) Client(id string) *Client {
	return &Client{id: id, broker: b, filters: make(map[string]struct{})}
}

// Retained возвращает retained-сообщение топика.
func (b *Broker) Retained(topic string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.retained[topic]
	return p, ok
}

type delivery struct {
	h       transport.Handler
	topic   string
	payload []byte
}

func deliver(ds []delivery) {
	for _, d := range ds {
		d.h.OnMessage(d.topic, d.payload)
	}
}

// route собирает доставки для топика; вызывается под b.mu.
func (b *Broker) route(topic string, retained bool, payload []byte) []delivery {
	if retained {
		if len(payload) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = append([]byte(nil), payload...)
		}
	}
	var ds []delivery
	for _, c := range b.clients {
		for f := range c.filters {
			if MatchTopic(f, topic) {
				ds = append(ds, delivery{h: c.handler, topic: topic, payload: append([]byte(nil), payload...)})
				break
			}
		}
	}
	return ds
}

var _ transport.Transport = (*Client)(nil)

// Client — клиент Broker, реализующий transport.Transport.
type Client struct {
	id      string
	broker  *Broker
	handler transport.Handler
	will    *transport.Will
	filters map[string]struct{}
	online  bool
	sent    []Message
}

// Message — сообщение, опубликованное клиентом Client.
type Message struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// Connect регистрирует клиента в брокере и сразу вызывает h.OnConnected.
func (c *Client) Connect(will *transport.Will, h transport.Handler) error {
	b := c.broker
	b.mu.Lock()
	if old, ok := b.clients[c.id]; ok && old != c {
		old.online = false
	}
	c.handler = h
	c.will = will
	c.online = true
	c.filters = make(map[string]struct{})
	b.clients[c.id] = c
	b.mu.Unlock()

	h.OnConnected()
	return nil
}

// Disconnect корректно отключает клиента без публикации последней воли.
func (c *Client) Disconnect() {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	c.drop()
}

// Kill имитирует обрыв соединения: брокер публикует последнюю волю,
// клиент получает OnConnectionLost.
func (c *Client) Kill(err error) {
	b := c.broker
	b.mu.Lock()
	if !c.online {
		b.mu.Unlock()
		return
	}
	will, h := c.will, c.handler
	c.drop()
	var ds []delivery
	if will != nil {
		ds = b.route(will.Topic, will.Retained, will.Payload)
	}
	b.mu.Unlock()

	deliver(ds)
	h.OnConnectionLost(err)
}

func (c *Client) drop() {
	if !c.online {
		return
	}
	c.online = false
	c.will = nil
	if c.broker.clients[c.id] == c {
		delete(c.broker.clients, c.id)
	}
}

// Subscribe добавляет фильтры, подтверждает подписку и доставляет подходящие retained-сообщения.
func (c *Client) Subscribe(topics []string, _ byte) error {
	b := c.broker
	b.mu.Lock()
	if !c.online {
		b.mu.Unlock()
		return transport.ErrNotConnected
	}
	var ds []delivery
	for _, f := range topics {
		c.filters[f] = struct{}{}
		for t, p := range b.retained {
			if MatchTopic(f, t) {
				ds = append(ds, delivery{h: c.handler, topic: t, payload: append([]byte(nil), p...)})
			}
		}
	}
	h := c.handler
	b.mu.Unlock()

	h.OnSubscribed(topics, nil)
	deliver(ds)
	return nil
}

// Unsubscribe удаляет фильтры.
func (c *Client) Unsubscribe(topics ...string) error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if !c.online {
		return transport.ErrNotConnected
	}
	for _, f := range topics {
		delete(c.filters, f)
	}
	return nil
}

// Publish доставляет сообщение подписчикам и запоминает его в журнале клиента.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	b := c.broker
	b.mu.Lock()
	if !c.online {
		b.mu.Unlock()
		return transport.ErrNotConnected
	}
	c.sent = append(c.sent, Message{Topic: topic, QoS: qos, Retained: retained, Payload: append([]byte(nil), payload...)})
	ds := b.route(topic, retained, payload)
	b.mu.Unlock()

	deliver(ds)
	return nil
}

// IsConnected сообщает, подключён ли клиент.
func (c *Client) IsConnected() bool {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	return c.online
}

// Sent возвращает копию журнала опубликованных клиентом сообщений.
func (c *Client) Sent() []Message {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	return append([]Message(nil), c.sent...)
}

// Will возвращает текущую последнюю волю клиента.
func (c *Client) Will() *transport.Will {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	return c.will
}

// MatchTopic проверяет соответствие топика MQTT-фильтру с wildcard + и #.
func MatchTopic(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}
