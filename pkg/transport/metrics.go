package transport

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the transport collectors. A nil *metrics records nothing.
type metrics struct {
	eventsSent       *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	reconnects       prometheus.Counter
	authentications  *prometheus.CounterVec
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amqp_device",
			Subsystem: "transport",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// newMetrics registers the collectors on registerer. Collectors already
// registered by another transport are shared.
func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	if registerer == nil {
		return nil, nil
	}

	m := &metrics{
		eventsSent:       newCounterVec("events_sent_total", "Telemetry events completed, by result", []string{"result"}),
		messagesReceived: newCounterVec("messages_received_total", "Cloud-to-device messages settled, by outcome", []string{"outcome"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "amqp_device",
			Subsystem: "transport",
			Name:      "reconnects_total",
			Help:      "Connections torn down after a fatal error",
		}),
		authentications: newCounterVec("cbs_authentications_total", "CBS put-token exchanges, by result", []string{"result"}),
	}

	var err error
	if m.eventsSent, err = register(registerer, m.eventsSent); err != nil {
		return nil, err
	}
	if m.messagesReceived, err = register(registerer, m.messagesReceived); err != nil {
		return nil, err
	}
	if m.reconnects, err = register(registerer, m.reconnects); err != nil {
		return nil, err
	}
	if m.authentications, err = register(registerer, m.authentications); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) eventCompleted(r SendResult) {
	if m != nil {
		m.eventsSent.WithLabelValues(r.String()).Inc()
	}
}

func (m *metrics) messageSettled(outcome string) {
	if m != nil {
		m.messagesReceived.WithLabelValues(outcome).Inc()
	}
}

func (m *metrics) reconnected() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *metrics) authenticated(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.authentications.WithLabelValues(result).Inc()
}
