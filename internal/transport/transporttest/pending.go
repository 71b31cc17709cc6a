package transporttest

import (
	"sync"

	"github.com/RoGogDBD/sparkplug-b/internal/transport"
)

var _ transport.Transport = (*Pending)(nil)

// Pending — транспорт, подключение которого завершается только вызовом Complete.
//
// Как и у клиента сети, Disconnect закрывает лишь открытое соединение: запрос, который
// ещё не завершился, после Complete откроет соединение с взведённой волей.
type Pending struct {
	mu      sync.Mutex
	handler transport.Handler
	will    *transport.Will
	open    bool
	sent    []Message
	connect int
}

// NewPending создаёт транспорт без соединения.
func NewPending() *Pending {
	return &Pending{}
}

// Connect запоминает волю и обработчик; OnConnected будет вызван из Complete.
func (p *Pending) Connect(will *transport.Will, h transport.Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.will = will
	p.handler = h
	p.connect++
	return nil
}

// Complete завершает последний запрос Connect.
func (p *Pending) Complete() {
	p.mu.Lock()
	h := p.handler
	p.open = h != nil
	p.mu.Unlock()
	if h != nil {
		h.OnConnected()
	}
}

// Disconnect закрывает открытое соединение без публикации воли.
func (p *Pending) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return
	}
	p.open = false
	p.will = nil
}

// Subscribe сразу подтверждает подписку.
func (p *Pending) Subscribe(topics []string, _ byte) error {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return transport.ErrNotConnected
	}
	h := p.handler
	p.mu.Unlock()
	h.OnSubscribed(topics, nil)
	return nil
}

// Unsubscribe ничего не делает на открытом соединении.
func (p *Pending) Unsubscribe(...string) error {
	if !p.IsConnected() {
		return transport.ErrNotConnected
	}
	return nil
}

// Publish записывает сообщение в журнал.
func (p *Pending) Publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return transport.ErrNotConnected
	}
	p.sent = append(p.sent, Message{Topic: topic, QoS: qos, Retained: retained, Payload: append([]byte(nil), payload...)})
	return nil
}

// IsConnected сообщает, открыто ли соединение.
func (p *Pending) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Will возвращает волю открытого или ожидающего соединения.
func (p *Pending) Will() *transport.Will {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.will
}

// Sent возвращает копию журнала опубликованных сообщений.
func (p *Pending) Sent() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.sent...)
}

// Connects возвращает число вызовов Connect.
func (p *Pending) Connects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connect
}
