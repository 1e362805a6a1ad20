package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.ObserveProbe(384, 12)
	r.ObserveProbe(384, 3)
	r.ObserveSkippedProbe()
	r.ObserveSession(OutcomePackaged, 1500*time.Millisecond)

	path := filepath.Join(t.TempDir(), "textfile", "npprobes.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(content)
	for _, line := range []string{
		`npprobes_probes_total{outcome="packaged"} 2`,
		`npprobes_probes_total{outcome="skipped"} 1`,
		`npprobes_channels_total 768`,
		`npprobes_units_total 15`,
		`npprobes_sessions_total{outcome="packaged"} 1`,
		`npprobes_run_duration_seconds 1.5`,
	} {
		if !strings.Contains(text, line) {
			t.Fatalf("expected %q in textfile:\n%s", line, text)
		}
	}
	if !strings.Contains(text, "npprobes_last_success_timestamp_seconds") {
		t.Fatal("missing last success gauge")
	}
}

func TestWriteTextfileEmptyPathIsNoop(t *testing.T) {
	if err := New().WriteTextfile(""); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestFailedSessionLeavesLastSuccessUnset(t *testing.T) {
	r := New()
	r.ObserveSession(OutcomeFailed, time.Second)
	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() == "npprobes_last_success_timestamp_seconds" {
			if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 0 {
				t.Fatalf("last success = %v after failed run", v)
			}
		}
	}
}
