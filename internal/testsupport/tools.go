package testsupport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"npprobes/internal/services"
)

// Toolchain routes external commands to fakes by binary name.
type Toolchain map[string]services.Executor

func (tc Toolchain) Run(ctx context.Context, binary string, args []string, stdout, stderr io.Writer) error {
	exec, ok := tc[binary]
	if !ok {
		return fmt.Errorf("unexpected binary %q", binary)
	}
	return exec.Run(ctx, binary, args, stdout, stderr)
}

// FakeNWBWriter writes a placeholder container at --output_path and keeps a
// copy of each manifest it was handed.
type FakeNWBWriter struct {
	mu        sync.Mutex
	Manifests [][]byte
}

func (f *FakeNWBWriter) Run(_ context.Context, _ string, args []string, _, _ io.Writer) error {
	var input, output string
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "--input_json":
			input = args[i+1]
		case "--output_path":
			output = args[i+1]
		}
	}
	if input == "" || output == "" {
		return errors.New("missing --input_json/--output_path")
	}
	manifest, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.Manifests = append(f.Manifests, manifest)
	f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	return os.WriteFile(output, []byte("\x89HDF\r\n\x1a\n"), 0o644)
}

// CallCount returns how many times the writer ran.
func (f *FakeNWBWriter) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Manifests)
}
