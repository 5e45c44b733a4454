package health_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/ErlanBelekov/bloodbank/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func newTestChecker(deps ...health.Dependency) (*health.Checker, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return health.NewChecker(slog.Default(), reg, deps...), reg
}

func TestLiveness_AlwaysUp(t *testing.T) {
	c, _ := newTestChecker(health.Dependency{Name: "postgres", Pinger: &mockPinger{err: errors.New("db down")}})

	result := c.Liveness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	if result.Checks != nil {
		t.Fatalf("expected no checks, got %v", result.Checks)
	}
}

func TestReadiness_NoDependencies(t *testing.T) {
	c, _ := newTestChecker()

	result := c.Readiness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	if len(result.Checks) != 0 {
		t.Fatalf("expected no checks, got %v", result.Checks)
	}
}

func TestReadiness_AllUp(t *testing.T) {
	c, reg := newTestChecker(
		health.Dependency{Name: "postgres", Pinger: &mockPinger{}},
		health.Dependency{Name: "redis", Pinger: health.PingFunc(func(context.Context) error { return nil })},
	)

	result := c.Readiness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	for _, name := range []string{"postgres", "redis"} {
		if result.Checks[name].Status != "up" {
			t.Fatalf("expected %s up, got %+v", name, result.Checks[name])
		}
	}

	if got := testGauge(t, reg, "bloodbank_health_check_up", "postgres"); got != 1 {
		t.Fatalf("expected gauge 1, got %f", got)
	}
}

func TestReadiness_OneDown(t *testing.T) {
	c, reg := newTestChecker(
		health.Dependency{Name: "postgres", Pinger: &mockPinger{}},
		health.Dependency{Name: "redis", Pinger: &mockPinger{err: errors.New("connection refused")}},
	)

	result := c.Readiness(context.Background())
	if result.Status != "down" {
		t.Fatalf("expected status down, got %s", result.Status)
	}
	if result.Checks["postgres"].Status != "up" {
		t.Fatalf("expected postgres up, got %+v", result.Checks["postgres"])
	}
	rd := result.Checks["redis"]
	if rd.Status != "down" || rd.Error == "" {
		t.Fatalf("expected redis down with error, got %+v", rd)
	}

	if got := testGauge(t, reg, "bloodbank_health_check_up", "redis"); got != 0 {
		t.Fatalf("expected gauge 0, got %f", got)
	}
	n, err := testutil.GatherAndCount(reg, "bloodbank_health_check_up")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 gauge series, got %d", n)
	}
}

func testGauge(t *testing.T, reg *prometheus.Registry, name, depLabel string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "dependency" && lp.GetValue() == depLabel {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{dependency=%q} not found", name, depLabel)
	return 0
}
