package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSignerMetrics(t *testing.T) {
	m := NewSignerMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.Collectors()...)

	m.ObserveSignature("claim", nil, time.Millisecond)
	m.ObserveSignature("claim", errors.New("boom"), 0)
	m.ObserveVerification("claim", "rejected", "replayed")
	m.ObserveDispatch("", "retry")

	if got := testutil.ToFloat64(m.signatures.WithLabelValues("claim", "success")); got != 1 {
		t.Fatalf("success count: %v", got)
	}
	if got := testutil.ToFloat64(m.signatures.WithLabelValues("claim", "error")); got != 1 {
		t.Fatalf("error count: %v", got)
	}
	if got := testutil.ToFloat64(m.verifications.WithLabelValues("claim", "rejected", "replayed")); got != 1 {
		t.Fatalf("verification count: %v", got)
	}
	if got := testutil.ToFloat64(m.dispatches.WithLabelValues("unknown", "retry")); got != 1 {
		t.Fatalf("dispatch count: %v", got)
	}

	var nilMetrics *SignerMetrics
	nilMetrics.ObserveSignature("claim", nil, 0)
}
