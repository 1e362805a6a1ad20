package services_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"npprobes/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "alignment", "run", "failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"alignment", "run", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want services.Outcome
	}{
		{nil, services.OutcomeOK},
		{services.MissingFile(services.ErrOptionalFile, "ccf", "*.csv"), services.OutcomeDefaulted},
		{services.MissingFile(services.ErrRequiredFile, "alignment", "*.h5"), services.OutcomeSkipProbe},
		{services.Wrap(services.ErrValidation, "metadata", "units", "bad peak", nil), services.OutcomeSkipProbe},
		{services.Wrap(services.ErrNotReady, "lfp", "build", "no sync", nil), services.OutcomeNotReady},
		{errors.New("disk on fire"), services.OutcomeFatal},
	}
	for _, tc := range tests {
		if got := services.Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

type failingExecutor struct {
	stderr string
	binary string
	args   []string
}

func (f *failingExecutor) Run(_ context.Context, binary string, args []string, _ io.Writer, stderr io.Writer) error {
	f.binary = binary
	f.args = args
	_, _ = io.WriteString(stderr, f.stderr)
	return errors.New("exit status 1")
}

func TestRunToolWrapsFailures(t *testing.T) {
	exec := &failingExecutor{stderr: "Traceback: KeyError 'probes'"}
	err := services.RunTool(context.Background(), exec, "alignment", []string{"python", "-m", "aligner"}, "--input_json", "in.json")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "KeyError") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
	if exec.binary != "python" {
		t.Fatalf("unexpected binary %q", exec.binary)
	}
	want := []string{"-m", "aligner", "--input_json", "in.json"}
	if strings.Join(exec.args, " ") != strings.Join(want, " ") {
		t.Fatalf("unexpected args %v", exec.args)
	}

	if err := services.RunTool(context.Background(), exec, "nwb", nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for empty command, got %v", err)
	}
}
