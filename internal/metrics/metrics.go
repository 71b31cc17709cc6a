// Package metrics содержит счётчики Prometheus для активности агентов Sparkplug B.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder — набор счётчиков сообщений агента.
//
// Все методы допускают nil-получатель, поэтому агенты можно создавать без метрик.
type Recorder struct {
	Published *prometheus.CounterVec
	Received  *prometheus.CounterVec
	Dropped   *prometheus.CounterVec
	Online    *prometheus.GaugeVec
}

// NewRecorder создаёт счётчики и регистрирует их в reg (nil — без регистрации).
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		Published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sparkplug",
				Subsystem: "messages",
				Name:      "published_total",
				Help:      "Total number of Sparkplug B messages published",
			},
			[]string{"role", "type"},
		),
		Received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sparkplug",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of Sparkplug B messages received",
			},
			[]string{"role", "type"},
		),
		Dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sparkplug",
				Subsystem: "messages",
				Name:      "dropped_total",
				Help:      "Total number of inbound messages dropped",
			},
			[]string{"role", "reason"},
		),
		Online: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "sparkplug",
				Subsystem: "producer",
				Name:      "online",
				Help:      "Producer liveness as seen by the host (1=born, 0=dead)",
			},
			[]string{"producer"},
		),
	}
	if reg != nil {
		reg.MustRegister(r.Published, r.Received, r.Dropped, r.Online)
	}
	return r
}

// IncPublished учитывает исходящее сообщение.
func (r *Recorder) IncPublished(role, msgType string) {
	if r == nil {
		return
	}
	r.Published.WithLabelValues(role, msgType).Inc()
}

// IncReceived учитывает входящее сообщение.
func (r *Recorder) IncReceived(role, msgType string) {
	if r == nil {
		return
	}
	r.Received.WithLabelValues(role, msgType).Inc()
}

// IncDropped учитывает отброшенное входящее сообщение.
func (r *Recorder) IncDropped(role, reason string) {
	if r == nil {
		return
	}
	r.Dropped.WithLabelValues(role, reason).Inc()
}

// SetOnline отмечает состояние производителя.
func (r *Recorder) SetOnline(producer string, online bool) {
	if r == nil {
		return
	}
	v := 0.0
	if online {
		v = 1
	}
	r.Online.WithLabelValues(producer).Set(v)
}
