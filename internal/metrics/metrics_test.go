package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorObservations(t *testing.T) {
	c := NewCollector()
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.ObserveBackup("success", 2*time.Second, 4096)
	c.ObserveRestore("partial", time.Second, 3, 5, 1)
	c.ObserveRestore("failed", time.Second, 0, 0, 0)
	c.RateLimited()

	if got := testutil.ToFloat64(c.operations.WithLabelValues("backup", "success")); got != 1 {
		t.Fatalf("unexpected backup count: %v", got)
	}
	if got := testutil.ToFloat64(c.archiveBytes); got != 4096 {
		t.Fatalf("unexpected archive size: %v", got)
	}
	if got := testutil.ToFloat64(c.restored.WithLabelValues("file")); got != 5 {
		t.Fatalf("unexpected restored files: %v", got)
	}
	if got := testutil.ToFloat64(c.unitErrors.WithLabelValues("restore")); got != 1 {
		t.Fatalf("unexpected unit errors: %v", got)
	}
	if got := testutil.ToFloat64(c.rateLimited); got != 1 {
		t.Fatalf("unexpected rate limited count: %v", got)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Fatalf("gather failed: n=%d err=%v", n, err)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveBackup("success", time.Second, 1)
	c.ObserveRestore("success", time.Second, 1, 1, 0)
	c.RateLimited()
}
