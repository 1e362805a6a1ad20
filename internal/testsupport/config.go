package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"npprobes/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SessionRoots = []string{filepath.Join(base, "np-exp")}
	cfgVal.Paths.DatajointRoot = filepath.Join(base, "datajoint")
	cfgVal.Paths.TissuecyteRoot = filepath.Join(base, "tissuecyte")
	cfgVal.Paths.AnnotationVolume = filepath.Join(base, "tissuecyte", "field_reference", "ccf_ano.mhd")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Registry.Path = filepath.Join(base, "registry", "unique_ids.json")
	cfgVal.Registry.SQLitePath = filepath.Join(base, "registry", "registry.db")
	cfgVal.Registry.LockTimeoutSeconds = 1

	for _, dir := range []string{cfgVal.Paths.SessionRoots[0], cfgVal.Paths.TissuecyteRoot, cfgVal.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithRegistryMode selects the identifier registry backend.
func WithRegistryMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Registry.Mode = mode
	}
}

// WithPublishRoot enables the filesystem publisher under the temp dir.
func WithPublishRoot() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Publish.Driver = config.PublishFS
		b.cfg.Publish.Root = filepath.Join(b.baseDir, "published")
	}
}

// WithMetricsTextfile writes run metrics under the temp dir.
func WithMetricsTextfile() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.Textfile = filepath.Join(b.baseDir, "metrics", "npprobes.prom")
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the configured aligner's binary
// is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Alignment.Command[0]}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
