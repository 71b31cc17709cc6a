// Package transport описывает клиент pub/sub, через который агенты Sparkplug B обмениваются
// сообщениями, и его реализацию поверх paho MQTT.
//
// Все методы Transport неблокирующие: завершение подключения и подписки, входящие сообщения
// и потеря соединения доставляются через Handler. Агенты передают в качестве Handler очередь
// Queue и разбирают её в своём кооперативном цикле.
package transport

import "errors"

// ErrNotConnected — операция вызвана без активного соединения.
var ErrNotConnected = errors.New("transport is not connected")

// QoS уровни доставки.
const (
	AtMostOnce  byte = 0
	AtLeastOnce byte = 1
)

// Will — сообщение последней воли, публикуемое брокером при потере соединения клиента.
type Will struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Handler получает асинхронные события транспорта.
type Handler interface {
	// OnConnected вызывается после установления соединения.
	OnConnected()
	// OnConnectionLost вызывается при обрыве соединения или неудачной попытке подключения.
	OnConnectionLost(err error)
	// OnMessage вызывается для каждого входящего сообщения.
	OnMessage(topic string, payload []byte)
	// OnSubscribed вызывается по завершении запроса Subscribe.
	OnSubscribed(topics []string, err error)
}

// Transport — клиент брокера сообщений.
type Transport interface {
	// Connect запрашивает подключение с указанной последней волей (nil — без воли).
	Connect(will *Will, h Handler) error
	// Disconnect корректно закрывает соединение; последняя воля при этом не публикуется.
	Disconnect()
	// Subscribe запрашивает подписку на фильтры топиков.
	Subscribe(topics []string, qos byte) error
	// Unsubscribe отменяет подписки.
	Unsubscribe(topics ...string) error
	// Publish ставит сообщение в очередь на отправку.
	Publish(topic string, qos byte, retained bool, payload []byte) error
	// IsConnected сообщает, активно ли соединение.
	IsConnected() bool
}
