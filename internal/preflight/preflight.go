package preflight

import (
	"context"
	"path/filepath"

	"npprobes/internal/config"
	"npprobes/internal/deps"
	"npprobes/internal/session"
)

// DefaultMinFreeBytes is the free space required under the session root.
const DefaultMinFreeBytes uint64 = 1 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail"`
}

// RunAll executes every check applicable to the session and configuration.
func RunAll(_ context.Context, cfg *config.Config, s *session.Session) []Result {
	if cfg == nil || s == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckSyncFile(s))

	outputDir := cfg.OutputDir(s.Root)
	target := s.Root
	if dirExists(outputDir) {
		target = outputDir
	}
	results = append(results, CheckDirectoryAccess("Output directory", target))
	results = append(results, CheckFreeSpace("Free space", s.Root, DefaultMinFreeBytes))

	switch cfg.Registry.Mode {
	case config.RegistryFile:
		results = append(results, CheckDirectoryAccess("Registry directory", nearestDir(filepath.Dir(cfg.Registry.Path))))
	case config.RegistrySQLite:
		results = append(results, CheckDirectoryAccess("Registry directory", nearestDir(filepath.Dir(cfg.Registry.SQLitePath))))
	}

	annotation := CheckFileReadable("Annotation volume", cfg.Paths.AnnotationVolume)
	annotation.Optional = true
	results = append(results, annotation)

	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		detail := status.Detail
		if status.Available {
			detail = status.Path
		}
		results = append(results, Result{
			Name:     status.Name,
			Passed:   status.Available,
			Optional: status.Optional,
			Detail:   detail,
		})
	}
	return results
}

// Failed returns the results of required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
