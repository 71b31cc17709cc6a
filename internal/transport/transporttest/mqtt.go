package transporttest

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

var errDropped = errors.New("connection dropped by test broker")

// MQTTBroker — встроенный MQTT-брокер mochi на loopback-адресе.
type MQTTBroker struct {
	srv *mqtt.Server
	url string
}

// NewMQTTBroker запускает брокер на свободном порту. Брокер закрывается по завершении теста.
func NewMQTTBroker(tb testing.TB) *MQTTBroker {
	tb.Helper()

	srv := mqtt.New(&mqtt.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := srv.AddHook(new(auth.AllowHook), nil); err != nil {
		tb.Fatalf("mqtt broker hook: %v", err)
	}
	tcp := listeners.NewTCP(listeners.Config{ID: "test", Address: "127.0.0.1:0"})
	if err := srv.AddListener(tcp); err != nil {
		tb.Fatalf("mqtt broker listener: %v", err)
	}
	if err := srv.Serve(); err != nil {
		tb.Fatalf("mqtt broker serve: %v", err)
	}
	tb.Cleanup(func() { _ = srv.Close() })

	return &MQTTBroker{srv: srv, url: "tcp://" + tcp.Address()}
}

// URL возвращает адрес брокера для transport.MQTTOptions.Broker.
func (b *MQTTBroker) URL() string {
	return b.url
}

// Connected сообщает, есть ли у брокера открытая сессия клиента.
func (b *MQTTBroker) Connected(clientID string) bool {
	cl, ok := b.srv.Clients.Get(clientID)
	return ok && !cl.Closed()
}

// Drop обрывает соединение клиента без DISCONNECT, так что брокер публикует его последнюю волю.
// Возвращает false, если клиент не подключён.
func (b *MQTTBroker) Drop(clientID string) bool {
	cl, ok := b.srv.Clients.Get(clientID)
	if !ok || cl.Closed() {
		return false
	}
	cl.Stop(errDropped)
	return true
}

// Retained возвращает retained-сообщение топика, сохранённое брокером.
func (b *MQTTBroker) Retained(topic string) ([]byte, bool) {
	pks := b.srv.Topics.Messages(topic)
	if len(pks) == 0 {
		return nil, false
	}
	return pks[0].Payload, true
}
