package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the storage roots the pipeline reads from and writes to.
type Paths struct {
	SessionRoots     []string `toml:"session_roots"`
	DatajointRoot    string   `toml:"datajoint_root"`
	TissuecyteRoot   string   `toml:"tissuecyte_root"`
	AnnotationVolume string   `toml:"annotation_volume"`
	OutputSubdir     string   `toml:"output_subdir"`
	LogDir           string   `toml:"log_dir"`
}

// Registry selects the identifier registry backend.
type Registry struct {
	Mode               string `toml:"mode"` // file, sqlite, postgres, random
	Path               string `toml:"path"`
	SQLitePath         string `toml:"sqlite_path"`
	DSN                string `toml:"dsn"`
	LockTimeoutSeconds int    `toml:"lock_timeout_seconds"`
}

// SessionLayout pins sessions whose id matches a regular expression to a named
// alignment layout.
type SessionLayout struct {
	Match  string `toml:"match"`
	Layout string `toml:"layout"`
}

// LayoutDefinition declares (or overrides) an alignment path layout. Glob
// patterns may contain the {probe} placeholder.
type LayoutDefinition struct {
	Name                  string `toml:"name"`
	Base                  string `toml:"base"` // recording or session
	BarcodeStatesGlob     string `toml:"barcode_states_glob"`
	BarcodeTimestampsGlob string `toml:"barcode_timestamps_glob"`
	LFPTimestampsGlob     string `toml:"lfp_timestamps_glob"`
	FirstSampleGlob       string `toml:"first_sample_glob"`
	OffsetCorrection      bool   `toml:"offset_correction"`
	LFPClockDivisor       int    `toml:"lfp_clock_divisor"`
}

// Alignment configures the external barcode timestamp aligner.
type Alignment struct {
	Command         []string           `toml:"command"`
	TimeoutSeconds  int                `toml:"timeout_seconds"`
	APSamplingRate  float64            `toml:"ap_sampling_rate"`
	LFPSamplingRate float64            `toml:"lfp_sampling_rate"`
	Sessions        []SessionLayout    `toml:"sessions"`
	Layouts         []LayoutDefinition `toml:"layouts"`
}

// LFP configures the LFP subsampling request.
type LFP struct {
	TemporalSubsamplingFactor int     `toml:"temporal_subsampling_factor"`
	SurfaceChannel            float64 `toml:"surface_channel"`
	ReferenceChannels         []int   `toml:"reference_channels"`
}

// Packaging configures the session container and the optional external NWB writer.
// In ContainerName, {session} expands to the session id.
type Packaging struct {
	Description    string   `toml:"description"`
	ContainerName  string   `toml:"container_name"`
	NWBCommand     []string `toml:"nwb_command"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	IncludeLFP     bool     `toml:"include_lfp"`
	IncludeCSD     bool     `toml:"include_csd"`
}

// Publish configures where finished artifacts are mirrored.
type Publish struct {
	Driver    string `toml:"driver"` // none, fs, s3
	Root      string `toml:"root"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	Prefix    string `toml:"prefix"`
	PathStyle bool   `toml:"path_style"`
	// Static credentials for S3-compatible stores; the default AWS chain is
	// used when empty.
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

// Metrics configures batch run metrics output.
type Metrics struct {
	Textfile string `toml:"textfile"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for npprobes.
//
// Configuration sections by subsystem:
//   - Paths: session storage roots, CCF inputs, output directory name
//   - Registry: identifier registry backend (file, sqlite, postgres, random)
//   - Alignment: external aligner command, sampling rates, per-session layouts
//   - LFP: subsampling request parameters
//   - Packaging: container description and optional NWB writer command
//   - Publish: artifact mirroring (filesystem or S3)
//   - Metrics: Prometheus textfile output
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Registry  Registry  `toml:"registry"`
	Alignment Alignment `toml:"alignment"`
	LFP       LFP       `toml:"lfp"`
	Packaging Packaging `toml:"packaging"`
	Publish   Publish   `toml:"publish"`
	Metrics   Metrics   `toml:"metrics"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("npprobes.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the CLI writes into. Session
// roots are never created; they belong to the acquisition rigs.
func (c *Config) EnsureDirectories() error {
	if strings.TrimSpace(c.Paths.LogDir) != "" {
		if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
		}
	}
	if c.Registry.Mode == RegistrySQLite && strings.TrimSpace(c.Registry.SQLitePath) != "" {
		if err := os.MkdirAll(filepath.Dir(c.Registry.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("create registry directory: %w", err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// OutputDir returns the directory under a session root that receives
// generated requests and aligned arrays.
func (c *Config) OutputDir(sessionRoot string) string {
	return filepath.Join(sessionRoot, c.Paths.OutputSubdir)
}
