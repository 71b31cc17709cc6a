package transport_test

import (
	"sync"
	"testing"
	"time"

	"github.com/RoGogDBD/sparkplug-b/internal/transport"
	"github.com/RoGogDBD/sparkplug-b/internal/transport/transporttest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const waitFor = 5 * time.Second

// events копит события очереди, чтобы их можно было проверять повторно.
type events struct {
	q   *transport.Queue
	mu  sync.Mutex
	all []transport.Event
}

func newEvents() *events {
	return &events{q: transport.NewQueue()}
}

func (e *events) snapshot() []transport.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, e.q.Drain()...)
	return append([]transport.Event(nil), e.all...)
}

func (e *events) has(kind transport.EventKind, topic string) bool {
	for _, ev := range e.snapshot() {
		if ev.Kind == kind && ev.Topic == topic {
			return true
		}
	}
	return false
}

func (e *events) messages(topic string) [][]byte {
	var out [][]byte
	for _, ev := range e.snapshot() {
		if ev.Kind == transport.EventMessage && ev.Topic == topic {
			out = append(out, ev.Payload)
		}
	}
	return out
}

func connect(t *testing.T, b *transporttest.MQTTBroker, id string, will *transport.Will) (*transport.MQTT, *events) {
	t.Helper()
	m := transport.NewMQTT(transport.MQTTOptions{Broker: b.URL(), ClientID: id}, zap.NewNop())
	ev := newEvents()
	require.NoError(t, m.Connect(will, ev.q))
	require.Eventually(t, func() bool { return ev.has(transport.EventConnected, "") }, waitFor, 10*time.Millisecond)
	require.True(t, m.IsConnected())
	t.Cleanup(m.Disconnect)
	return m, ev
}

func subscribe(t *testing.T, m *transport.MQTT, ev *events, topics ...string) {
	t.Helper()
	require.NoError(t, m.Subscribe(topics, transport.AtLeastOnce))
	var subErr error
	require.Eventually(t, func() bool {
		for _, e := range ev.snapshot() {
			if e.Kind == transport.EventSubscribed {
				subErr = e.Err
				return true
			}
		}
		return false
	}, waitFor, 10*time.Millisecond)
	require.NoError(t, subErr)
}

func TestMQTT_NotConnected(t *testing.T) {
	m := transport.NewMQTT(transport.MQTTOptions{Broker: "tcp://127.0.0.1:1", ClientID: "idle"}, nil)
	require.False(t, m.IsConnected())
	require.ErrorIs(t, m.Publish("a", 0, false, nil), transport.ErrNotConnected)
	require.ErrorIs(t, m.Subscribe([]string{"a"}, 0), transport.ErrNotConnected)
	require.ErrorIs(t, m.Unsubscribe("a"), transport.ErrNotConnected)
	m.Disconnect()
}

func TestMQTT_ConnectFailureReported(t *testing.T) {
	m := transport.NewMQTT(transport.MQTTOptions{
		Broker:         "tcp://127.0.0.1:1",
		ClientID:       "nobody",
		ConnectTimeout: 200 * time.Millisecond,
	}, zap.NewNop())
	ev := newEvents()
	require.NoError(t, m.Connect(nil, ev.q))
	require.Eventually(t, func() bool {
		return ev.has(transport.EventConnectionLost, "")
	}, waitFor, 10*time.Millisecond)
	require.False(t, m.IsConnected())
}

func TestMQTT_PublishSubscribeRetained(t *testing.T) {
	b := transporttest.NewMQTTBroker(t)
	pub, _ := connect(t, b, "pub", nil)
	sub, ev := connect(t, b, "sub", nil)

	require.NoError(t, pub.Publish("spBv1.0/STATE/scada", transport.AtLeastOnce, true, []byte("online")))
	require.Eventually(t, func() bool {
		_, ok := b.Retained("spBv1.0/STATE/scada")
		return ok
	}, waitFor, 10*time.Millisecond)

	// retained-сообщение доставляется подписчику, подписавшемуся позже
	subscribe(t, sub, ev, "spBv1.0/G1/#", "spBv1.0/STATE/+")
	require.Eventually(t, func() bool {
		return len(ev.messages("spBv1.0/STATE/scada")) == 1
	}, waitFor, 10*time.Millisecond)
	require.Equal(t, []byte("online"), ev.messages("spBv1.0/STATE/scada")[0])

	require.NoError(t, pub.Publish("spBv1.0/G1/NDATA/E1", transport.AtMostOnce, false, []byte{1, 2}))
	require.Eventually(t, func() bool {
		return len(ev.messages("spBv1.0/G1/NDATA/E1")) == 1
	}, waitFor, 10*time.Millisecond)

	require.NoError(t, sub.Unsubscribe("spBv1.0/G1/#"))
}

func TestMQTT_WillPublishedOnlyOnDrop(t *testing.T) {
	b := transporttest.NewMQTTBroker(t)
	watcher, ev := connect(t, b, "watch", nil)
	subscribe(t, watcher, ev, "spBv1.0/G1/NDEATH/+")

	will := func(node string) *transport.Will {
		return &transport.Will{Topic: "spBv1.0/G1/NDEATH/" + node, Payload: []byte(node), QoS: transport.AtLeastOnce}
	}
	graceful, _ := connect(t, b, "graceful", will("E1"))
	dropped, droppedEv := connect(t, b, "dropped", will("E2"))

	graceful.Disconnect()
	require.Eventually(t, func() bool { return !b.Connected("graceful") }, waitFor, 10*time.Millisecond)

	require.True(t, b.Drop("dropped"))
	require.Eventually(t, func() bool {
		return len(ev.messages("spBv1.0/G1/NDEATH/E2")) == 1
	}, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return droppedEv.has(transport.EventConnectionLost, "")
	}, waitFor, 10*time.Millisecond)
	require.False(t, dropped.IsConnected())

	require.Empty(t, ev.messages("spBv1.0/G1/NDEATH/E1"))
	require.False(t, b.Drop("graceful"))
}

func TestMQTT_DisconnectWhileConnecting(t *testing.T) {
	b := transporttest.NewMQTTBroker(t)
	watcher, ev := connect(t, b, "watch", nil)
	subscribe(t, watcher, ev, "spBv1.0/G1/NDEATH/E1")

	m := transport.NewMQTT(transport.MQTTOptions{Broker: b.URL(), ClientID: "edge"}, zap.NewNop())
	require.NoError(t, m.Connect(&transport.Will{Topic: "spBv1.0/G1/NDEATH/E1", Payload: []byte{1}}, newEvents().q))
	m.Disconnect()
	require.False(t, m.IsConnected())

	// сессия, если и успела открыться, закрыта без воли
	time.Sleep(300 * time.Millisecond)
	require.False(t, b.Connected("edge"))
	require.False(t, b.Drop("edge"))
	require.Empty(t, ev.messages("spBv1.0/G1/NDEATH/E1"))
}
