package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts register mutations and their failures.
type LedgerMetrics struct {
	movements *prometheus.CounterVec
	failures  *prometheus.CounterVec
	retries   *prometheus.CounterVec
	credits   *prometheus.CounterVec
	drift     prometheus.Gauge
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_movements_total",
		Help: "Movements recorded on cash registers.",
	}, []string{"kind"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operation_failures_total",
		Help: "Ledger operations that returned an error.",
	}, []string{"op", "code"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_retry_attempts_total",
		Help: "Transactions retried after lock contention.",
	}, []string{"op"})
	credits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_repair_credits_total",
		Help: "Repair credit settlements by outcome.",
	}, []string{"outcome"})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_reconciliation_drift_accounts",
		Help: "Cash accounts whose stored balance differs from their replayed movements.",
	})
	reg.MustRegister(movements, failures, retries, credits, drift)
	return &LedgerMetrics{
		movements: movements,
		failures:  failures,
		retries:   retries,
		credits:   credits,
		drift:     drift,
	}
}

func (m *LedgerMetrics) IncMovement(kind string) {
	if m == nil || m.movements == nil {
		return
	}
	m.movements.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *LedgerMetrics) IncFailure(op, code string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(op), normalizeLabel(code)).Inc()
}

func (m *LedgerMetrics) IncRetry(op string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(op)).Inc()
}

func (m *LedgerMetrics) IncCredit(outcome string) {
	if m == nil || m.credits == nil {
		return
	}
	m.credits.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// SetDrift records how many accounts the last reconciliation flagged.
func (m *LedgerMetrics) SetDrift(accounts int) {
	if m == nil || m.drift == nil {
		return
	}
	m.drift.Set(float64(accounts))
}
