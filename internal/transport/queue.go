package transport

import "sync"

// EventKind — тип события транспорта.
type EventKind int

const (
	EventConnected EventKind = iota
	EventConnectionLost
	EventMessage
	EventSubscribed
	EventTask
)

// String возвращает имя типа события для логов.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventConnectionLost:
		return "connection_lost"
	case EventMessage:
		return "message"
	case EventSubscribed:
		return "subscribed"
	case EventTask:
		return "task"
	default:
		return "unknown"
	}
}

// Event — событие транспорта, отложенное до следующего такта агента.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload []byte
	Topics  []string
	Err     error
	Task    func()
}

// Queue — неограниченная очередь событий, реализующая Handler.
//
// Колбэки транспорта только добавляют событие и никогда не блокируются;
// агент забирает накопленные события методом Drain.
type Queue struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewQueue создаёт пустую очередь.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

func (q *Queue) push(e Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// OnConnected реализует Handler.
func (q *Queue) OnConnected() {
	q.push(Event{Kind: EventConnected})
}

// OnConnectionLost реализует Handler.
func (q *Queue) OnConnectionLost(err error) {
	q.push(Event{Kind: EventConnectionLost, Err: err})
}

// OnMessage реализует Handler. Payload копируется.
func (q *Queue) OnMessage(topic string, payload []byte) {
	q.push(Event{Kind: EventMessage, Topic: topic, Payload: append([]byte(nil), payload...)})
}

// OnSubscribed реализует Handler.
func (q *Queue) OnSubscribed(topics []string, err error) {
	q.push(Event{Kind: EventSubscribed, Topics: append([]string(nil), topics...), Err: err})
}

// Post откладывает выполнение fn до следующего такта агента.
func (q *Queue) Post(fn func()) {
	q.push(Event{Kind: EventTask, Task: fn})
}

// Drain возвращает накопленные события в порядке поступления и очищает очередь.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events
	q.events = nil
	return events
}

// Len возвращает число ожидающих событий.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Ready возвращает канал, в который приходит сигнал при появлении новых событий.
func (q *Queue) Ready() <-chan struct{} {
	return q.notify
}
