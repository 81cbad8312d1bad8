package brontide

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "lnnoise"

// Metrics counts handshakes, key rotations and decryption failures. A nil
// *Metrics records nothing.
type Metrics struct {
	Handshakes      *prometheus.CounterVec
	KeyRotations    *prometheus.CounterVec
	DecryptFailures prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handshakes_total",
			Help:      "Completed and failed BOLT8 handshakes",
		}, []string{"role", "result"}),
		KeyRotations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "key_rotations_total",
			Help:      "Transport key rotations",
		}, []string{"direction"}),
		DecryptFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decrypt_failures_total",
			Help:      "Transport messages that failed authentication",
		}),
	}
}

func (m *Metrics) handshake(initiator bool, err error) {
	if m == nil {
		return
	}
	role := "responder"
	if initiator {
		role = "initiator"
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.Handshakes.WithLabelValues(role, result).Inc()
}

func (m *Metrics) rotation(direction string) {
	if m == nil {
		return
	}
	m.KeyRotations.WithLabelValues(direction).Inc()
}

func (m *Metrics) decryptFailure() {
	if m == nil {
		return
	}
	m.DecryptFailures.Inc()
}
