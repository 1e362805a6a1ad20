package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"npprobes/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("NPPROBES_REGISTRY_DSN", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantLogDir := filepath.Join(tempHome, ".local", "share", "npprobes", "logs")
	if cfg.Paths.LogDir != wantLogDir {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLogDir)
	}
	if cfg.Paths.OutputSubdir != "SDK_outputs" {
		t.Fatalf("unexpected output subdir: %q", cfg.Paths.OutputSubdir)
	}
	if cfg.Registry.Mode != config.RegistryFile {
		t.Fatalf("expected file registry by default, got %q", cfg.Registry.Mode)
	}
	if cfg.Alignment.APSamplingRate != 30000 || cfg.Alignment.LFPSamplingRate != 2500 {
		t.Fatalf("unexpected sampling rates: %v / %v", cfg.Alignment.APSamplingRate, cfg.Alignment.LFPSamplingRate)
	}
	if cfg.LFP.TemporalSubsamplingFactor != 2 {
		t.Fatalf("unexpected subsampling factor: %d", cfg.LFP.TemporalSubsamplingFactor)
	}
	if len(cfg.LFP.ReferenceChannels) != 1 || cfg.LFP.ReferenceChannels[0] != 191 {
		t.Fatalf("unexpected reference channels: %v", cfg.LFP.ReferenceChannels)
	}
	if cfg.Publish.Driver != config.PublishNone {
		t.Fatalf("expected publishing disabled by default, got %q", cfg.Publish.Driver)
	}
	if got := cfg.OutputDir("/data/session"); got != filepath.Join("/data/session", "SDK_outputs") {
		t.Fatalf("unexpected output dir: %q", got)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if info, err := os.Stat(cfg.Paths.LogDir); err != nil || !info.IsDir() {
		t.Fatalf("expected log directory to exist: %v", err)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "npprobes.toml")

	type payload struct {
		Paths struct {
			SessionRoots []string `toml:"session_roots"`
		} `toml:"paths"`
		Registry struct {
			Mode       string `toml:"mode"`
			SQLitePath string `toml:"sqlite_path"`
		} `toml:"registry"`
		Alignment struct {
			Sessions []config.SessionLayout `toml:"sessions"`
		} `toml:"alignment"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.SessionRoots = []string{filepath.Join(tempDir, "a"), filepath.Join(tempDir, "a"), " ", filepath.Join(tempDir, "b")}
	custom.Registry.Mode = "SQLite"
	custom.Registry.SQLitePath = filepath.Join(tempDir, "ids.db")
	custom.Alignment.Sessions = []config.SessionLayout{{Match: " ^DRpilot_626791_20220817$ ", Layout: "Pinned"}}
	custom.Logging.Format = "yaml"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if len(cfg.Paths.SessionRoots) != 2 {
		t.Fatalf("expected duplicate and blank roots dropped, got %v", cfg.Paths.SessionRoots)
	}
	if cfg.Registry.Mode != config.RegistrySQLite {
		t.Fatalf("expected registry mode normalized to sqlite, got %q", cfg.Registry.Mode)
	}
	if cfg.Alignment.Sessions[0].Layout != "pinned" || cfg.Alignment.Sessions[0].Match != "^DRpilot_626791_20220817$" {
		t.Fatalf("unexpected session rule: %+v", cfg.Alignment.Sessions[0])
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected unknown log format to fall back to console, got %q", cfg.Logging.Format)
	}
}

func TestEnvSuppliesRegistryDSN(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "npprobes.toml")
	if err := os.WriteFile(configPath, []byte("[registry]\nmode = \"postgres\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("NPPROBES_REGISTRY_DSN", "postgres://ids@db/npprobes")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Registry.DSN != "postgres://ids@db/npprobes" {
		t.Fatalf("expected DSN from env, got %q", cfg.Registry.DSN)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "unknown registry mode",
			body:    "[registry]\nmode = \"redis\"\n",
			wantErr: "registry.mode",
		},
		{
			name:    "postgres without dsn",
			body:    "[registry]\nmode = \"postgres\"\n",
			wantErr: "registry.dsn",
		},
		{
			name:    "bad session pattern",
			body:    "[[alignment.sessions]]\nmatch = \"([\"\nlayout = \"legacy\"\n",
			wantErr: "alignment.sessions[0].match",
		},
		{
			name:    "layout base",
			body:    "[[alignment.layouts]]\nname = \"x\"\nbase = \"probe\"\n",
			wantErr: "alignment.layouts[0].base",
		},
		{
			name:    "offset correction without first sample",
			body:    "[[alignment.layouts]]\nname = \"x\"\noffset_correction = true\n",
			wantErr: "first_sample_glob",
		},
		{
			name:    "reference channel out of range",
			body:    "[lfp]\nreference_channels = [400]\n",
			wantErr: "lfp.reference_channels",
		},
		{
			name:    "container name with directory",
			body:    "[packaging]\ncontainer_name = \"out/{session}.sqlite\"\n",
			wantErr: "packaging.container_name",
		},
		{
			name:    "container name without session",
			body:    "[packaging]\ncontainer_name = \"probes.sqlite\"\n",
			wantErr: "packaging.container_name",
		},
		{
			name:    "s3 without bucket",
			body:    "[publish]\ndriver = \"s3\"\n",
			wantErr: "publish.bucket",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("NPPROBES_REGISTRY_DSN", "")
			path := filepath.Join(t.TempDir(), "npprobes.toml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Registry.Mode != config.RegistryFile {
		t.Fatalf("unexpected registry mode in sample: %q", cfg.Registry.Mode)
	}
	if !cfg.Packaging.IncludeLFP {
		t.Fatal("expected sample to include LFP")
	}
}
