package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestLedgerMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)
	m.IncMovement("deposit")
	m.IncMovement("deposit")
	m.IncMovement("withdrawal")
	m.IncFailure("withdraw", "VALIDATION_ERROR")
	m.IncRetry("deposit")
	m.IncCredit("settled")
	m.SetDrift(2)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "ledger_movements_total", "kind", "deposit"); err != nil || got != 2 {
		t.Fatalf("expected deposit=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "ledger_operation_failures_total", "code", "VALIDATION_ERROR"); err != nil || got != 1 {
		t.Fatalf("expected failures=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "ledger_retry_attempts_total", "op", "deposit"); err != nil || got != 1 {
		t.Fatalf("expected retries=1, got %f (%v)", got, err)
	}
	mf := findMetricFamily(mfs, "ledger_reconciliation_drift_accounts")
	if mf == nil || mf.GetMetric()[0].GetGauge().GetValue() != 2 {
		t.Fatalf("expected drift gauge 2")
	}
}

func TestLedgerMetricsNilSafe(t *testing.T) {
	var m *LedgerMetrics
	m.IncMovement("deposit")
	m.IncFailure("deposit", "")
	m.IncRetry("deposit")
	m.IncCredit("settled")
	m.SetDrift(1)

	NewLedgerMetrics(nil).IncMovement("deposit")
}
