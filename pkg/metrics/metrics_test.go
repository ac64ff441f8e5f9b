package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordJobs(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.JobStarted()
	m.JobStarted()
	if got := testutil.ToFloat64(m.active); got != 2 {
		t.Fatalf("active = %v, want 2", got)
	}

	m.JobFinished("presented")
	m.JobFinished("timeout")
	m.JobRejected("rejected")

	if got := testutil.ToFloat64(m.active); got != 0 {
		t.Fatalf("active = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.jobs.WithLabelValues("presented")); got != 1 {
		t.Fatalf("presented = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.jobs.WithLabelValues("rejected")); got != 1 {
		t.Fatalf("rejected = %v, want 1", got)
	}

	m.ObserveStage("extract", 2*time.Second)
	if got := testutil.CollectAndCount(m.stages); got != 1 {
		t.Fatalf("stage series = %d, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.JobStarted()
	m.JobFinished("presented")
	m.JobRejected("rejected")
	m.ObserveStage("remux", time.Second)
	m.ObserveUpload(1024)
}
