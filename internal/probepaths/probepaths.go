// Package probepaths maps probe letters to the spike-sorting output of each
// probe in a session.
package probepaths

import (
	"path/filepath"
	"sort"
	"strings"

	"npprobes/internal/fileutil"
)

const (
	MetricsFile     = "metrics.csv"
	TestMetricsFile = "metrics_test.csv"
)

// lastLetter returns the letter after the last "Probe" in s that has at least
// one character before it and is followed by A-F. Occurrences may overlap, so
// "xProbeAProbeB" yields B.
func lastLetter(s string) (string, bool) {
	const marker = "Probe"
	for i := len(s) - len(marker) - 1; i >= 1; i-- {
		if s[i:i+len(marker)] != marker {
			continue
		}
		if c := s[i+len(marker)]; c >= 'A' && c <= 'F' {
			return string(c), true
		}
	}
	return "", false
}

// Probe is one probe's spike-sorting output directory, identified by the
// metrics table found inside it.
type Probe struct {
	Letter      string
	MetricsPath string
}

// Name returns the probe name used by downstream tooling (probeA..probeF).
func (p Probe) Name() string { return "probe" + p.Letter }

// SortingDir is the directory holding the metrics table and the sorter's
// .npy arrays.
func (p Probe) SortingDir() string { return filepath.Dir(p.MetricsPath) }

// ContinuousDir is the parent of the per-band (AP/LFP) directories.
func (p Probe) ContinuousDir() string { return filepath.Dir(p.SortingDir()) }

// RecordingDir holds both the continuous/ and events/ trees.
func (p Probe) RecordingDir() string { return filepath.Dir(p.ContinuousDir()) }

// IsTestMetrics reports whether the metrics table is an alternate test export
// that needs merging with waveform_metrics.csv.
func (p Probe) IsTestMetrics() bool {
	return strings.Contains(filepath.Base(p.MetricsPath), "_test")
}

// MetricsPaths finds every metrics.csv under root, falling back to
// metrics_test.csv when there are none.
func MetricsPaths(root string) ([]string, error) {
	paths, err := fileutil.FindFiles(root, MetricsFile)
	if err != nil {
		return nil, err
	}
	if len(paths) > 0 {
		return paths, nil
	}
	return fileutil.FindFiles(root, TestMetricsFile)
}

// ProbesFromMetrics extracts the probe letter from each path. The last
// letter match in a path wins, paths without a letter are ignored, and a
// later path with the same letter replaces an earlier one. The result is
// empty (not an error) when no letter parses; callers decide what that means.
func ProbesFromMetrics(paths []string) map[string]string {
	probes := make(map[string]string)
	for _, path := range paths {
		letter, ok := lastLetter(filepath.ToSlash(path))
		if !ok {
			continue
		}
		probes[letter] = path
	}
	return probes
}

// ProbeMetricsPaths combines MetricsPaths and ProbesFromMetrics.
func ProbeMetricsPaths(root string) (map[string]string, error) {
	paths, err := MetricsPaths(root)
	if err != nil {
		return nil, err
	}
	return ProbesFromMetrics(paths), nil
}

// Ordered returns the probes sorted by letter.
func Ordered(byLetter map[string]string) []Probe {
	probes := make([]Probe, 0, len(byLetter))
	for letter, path := range byLetter {
		probes = append(probes, Probe{Letter: letter, MetricsPath: path})
	}
	sort.Slice(probes, func(i, j int) bool { return probes[i].Letter < probes[j].Letter })
	return probes
}

// Discover returns the session's probes in letter order.
func Discover(root string) ([]Probe, error) {
	byLetter, err := ProbeMetricsPaths(root)
	if err != nil {
		return nil, err
	}
	return Ordered(byLetter), nil
}

// Filter keeps the probes whose letters are listed. An empty list keeps all.
func Filter(probes []Probe, letters []string) []Probe {
	if len(letters) == 0 {
		return probes
	}
	want := make(map[string]struct{}, len(letters))
	for _, l := range letters {
		want[l] = struct{}{}
	}
	kept := probes[:0:0]
	for _, p := range probes {
		if _, ok := want[p.Letter]; ok {
			kept = append(kept, p)
		}
	}
	return kept
}
