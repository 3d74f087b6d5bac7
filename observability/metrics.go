package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SignerMetrics captures signing and verification activity.
type SignerMetrics struct {
	signatures    *prometheus.CounterVec
	signLatency   *prometheus.HistogramVec
	verifications *prometheus.CounterVec
	dispatches    *prometheus.CounterVec
}

var (
	signerMetricsOnce sync.Once
	signerRegistry    *SignerMetrics
)

// Signer returns the lazily-initialised signer metrics registered with the
// default Prometheus registry.
func Signer() *SignerMetrics {
	signerMetricsOnce.Do(func() {
		signerRegistry = NewSignerMetrics()
		prometheus.MustRegister(signerRegistry.Collectors()...)
	})
	return signerRegistry
}

// NewSignerMetrics builds an unregistered collector set. Tests register it
// against their own registry.
func NewSignerMetrics() *SignerMetrics {
	return &SignerMetrics{
		signatures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eragon",
			Subsystem: "signer",
			Name:      "signatures_total",
			Help:      "Authorisation signatures segmented by message kind and outcome.",
		}, []string{"kind", "outcome"}),
		signLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eragon",
			Subsystem: "signer",
			Name:      "sign_duration_seconds",
			Help:      "Time spent encoding, hashing and signing a message.",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
		}, []string{"kind"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eragon",
			Subsystem: "signer",
			Name:      "verifications_total",
			Help:      "Verifier decisions segmented by kind, resulting state and rejection reason.",
		}, []string{"kind", "state", "reason"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eragon",
			Subsystem: "signer",
			Name:      "dispatch_attempts_total",
			Help:      "Ledger submission attempts segmented by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
}

// Collectors lists every collector for registration.
func (m *SignerMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.signatures, m.signLatency, m.verifications, m.dispatches}
}

// ObserveSignature records one signing attempt.
func (m *SignerMetrics) ObserveSignature(kind string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.signatures.WithLabelValues(kind, outcome).Inc()
	if err == nil {
		m.signLatency.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// ObserveVerification records a verifier decision. Reasons should be stable
// strings such as "stale" or "replayed".
func (m *SignerMetrics) ObserveVerification(kind, state, reason string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	if reason == "" {
		reason = "none"
	}
	m.verifications.WithLabelValues(kind, state, reason).Inc()
}

// ObserveDispatch records one ledger submission attempt.
func (m *SignerMetrics) ObserveDispatch(kind, outcome string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.dispatches.WithLabelValues(kind, outcome).Inc()
}
