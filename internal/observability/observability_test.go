package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/rasidhq/rasid/internal/config"
	"github.com/rasidhq/rasid/internal/interp"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_NilConfig(t *testing.T) {
	obs, err := New(nil, discardLogger())
	if err != nil {
		t.Fatalf("New(nil): %v", err)
	}
	if obs != nil {
		t.Fatal("nil config should yield nil observability")
	}
	obs.Shutdown(context.Background())
	if obs.TracerOrNil() != nil {
		t.Error("TracerOrNil on nil must be nil")
	}
}

func TestNew_MetricsOnly(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{
		Metrics: &config.MetricsConfig{Enabled: true},
	}, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if obs.Metrics == nil || obs.Metrics.Registry == nil {
		t.Fatal("metrics should be enabled")
	}
	if obs.Tracer != nil {
		t.Error("tracing should stay disabled")
	}
	if obs.Health == nil {
		t.Error("health checker should always exist")
	}
}

func findFamily(t *testing.T, fams []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, f := range fams {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}

func labelMap(pairs []*dto.LabelPair) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		m[p.GetName()] = p.GetValue()
	}
	return m
}

func TestMetricsRecordAndGather(t *testing.T) {
	m := NewMetricsCollector()

	m.OperationsTotal.WithLabelValues("issue_invoice", "ok").Inc()
	m.OperationsTotal.WithLabelValues("issue_invoice", "ok").Inc()
	m.OperationsTotal.WithLabelValues("issue_invoice", "error").Inc()
	m.RemindersSentTotal.WithLabelValues("overdue", "ok").Inc()

	fams, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	ops := findFamily(t, fams, "rasid_ops_executions_total")
	foundOK := false
	for _, metric := range ops.GetMetric() {
		labels := labelMap(metric.GetLabel())
		if labels["operation"] == "issue_invoice" && labels["status"] == "ok" {
			foundOK = true
			if got := metric.GetCounter().GetValue(); got != 2 {
				t.Errorf("ok counter = %v, want 2", got)
			}
		}
	}
	if !foundOK {
		t.Error("issue_invoice/ok sample missing")
	}

	findFamily(t, fams, "rasid_reminder_sent_total")
}

type stubInterp struct {
	plan *interp.Plan
	err  error
}

func (s *stubInterp) Interpret(context.Context, string) (*interp.Plan, error) {
	return s.plan, s.err
}

func TestInstrumentedInterpreter(t *testing.T) {
	m := NewMetricsCollector()
	okStub := &stubInterp{plan: &interp.Plan{Reply: "hi"}}
	wrapped := InstrumentInterpreter(okStub, m, nil)

	if _, err := wrapped.Interpret(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	failStub := &stubInterp{err: errors.New("model down")}
	wrapped = InstrumentInterpreter(failStub, m, nil)
	if _, err := wrapped.Interpret(context.Background(), "hello"); err == nil {
		t.Fatal("expected error passthrough")
	}

	fams, err := m.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	fam := findFamily(t, fams, "rasid_interp_requests_total")
	counts := map[string]float64{}
	for _, metric := range fam.GetMetric() {
		counts[labelMap(metric.GetLabel())["status"]] = metric.GetCounter().GetValue()
	}
	if counts["ok"] != 1 || counts["error"] != 1 {
		t.Errorf("interp counters = %v", counts)
	}
}

func TestInstrumentInterpreterPassthrough(t *testing.T) {
	stub := &stubInterp{}
	if got := InstrumentInterpreter(stub, nil, nil); got != Interpreter(stub) {
		t.Error("nothing to record should return the inner interpreter")
	}
}

func TestOperationObserverNilSafe(t *testing.T) {
	var o *OperationObserver
	o.Observe("x", time.Second, nil)
	NewOperationObserver(nil).Observe("x", time.Second, errors.New("boom"))
}

func TestHealthChecker(t *testing.T) {
	h := NewHealthChecker(discardLogger())
	if got := h.CheckReady(context.Background()); got.Status != "ok" {
		t.Errorf("no checks should be ok, got %q", got.Status)
	}

	h.AddCheck("db", func(context.Context) error { return nil })
	h.AddCheck("telegram", func(context.Context) error { return errors.New("unreachable") })

	status := h.CheckReady(context.Background())
	if status.Status != "degraded" {
		t.Errorf("status = %q, want degraded", status.Status)
	}
	if status.Checks["db"].Status != "ok" {
		t.Errorf("db check = %+v", status.Checks["db"])
	}
	if status.Checks["telegram"].Status != "fail" {
		t.Errorf("telegram check = %+v", status.Checks["telegram"])
	}
}
