package telemetry

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// gatherFamily collects the named metric family from the default registry.
// Families with no observed series yet are absent from Gather output, so
// callers touch a label combination first.
func gatherFamily(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("DefaultGatherer.Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestLifecycleOperationsTotal_Labels(t *testing.T) {
	LifecycleOperationsTotal.WithLabelValues("create", "ok").Inc()
	LifecycleOperationsTotal.WithLabelValues("create", "rejected").Inc()

	mf := gatherFamily(t, "tenant_lifecycle_operations_total")
	if mf == nil {
		t.Fatal("tenant_lifecycle_operations_total not registered")
	}

	outcomes := map[string]bool{}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "outcome" {
				outcomes[lp.GetValue()] = true
			}
		}
	}
	if !outcomes["ok"] || !outcomes["rejected"] {
		t.Errorf("expected ok and rejected outcome series, got %v", outcomes)
	}
}

func TestInconsistenciesTotal_Registered(t *testing.T) {
	InconsistenciesTotal.WithLabelValues("rename").Inc()

	mf := gatherFamily(t, "tenant_lifecycle_inconsistencies_total")
	if mf == nil {
		t.Fatal("tenant_lifecycle_inconsistencies_total not registered")
	}
	if !strings.Contains(mf.GetHelp(), "reconciliation") {
		t.Errorf("help text should point operators at reconciliation, got %q", mf.GetHelp())
	}
}

func TestReconcilerFindingsTotal_Registered(t *testing.T) {
	for _, kind := range []string{"drifted_partition_id", "missing_partition", "orphaned_partition", "stale_intent"} {
		ReconcilerFindingsTotal.WithLabelValues(kind).Inc()
	}
	if mf := gatherFamily(t, "tenant_reconciler_findings_total"); mf == nil {
		t.Fatal("tenant_reconciler_findings_total not registered")
	}
}

func TestHTTPMetrics_Registered(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "200").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/health").Observe(0.01)

	if mf := gatherFamily(t, "http_requests_total"); mf == nil {
		t.Fatal("http_requests_total not registered")
	}
	if mf := gatherFamily(t, "http_request_duration_seconds"); mf == nil {
		t.Fatal("http_request_duration_seconds not registered")
	}
}
