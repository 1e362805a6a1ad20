package packager

import (
	"fmt"
	"path/filepath"
	"time"

	"npprobes/internal/alignment"
	"npprobes/internal/metadata"
	"npprobes/internal/probepaths"
)

// ManifestFile is the probes document handed to the external NWB writer.
const ManifestFile = "probes_input.json"

// Sorter output files referenced from the manifest.
const (
	WhiteningMatrixFile = "whitening_mat_inv.npy"
	MeanWaveformsFile   = "mean_waveforms.npy"
	AmplitudesFile      = "amplitudes.npy"
	SpikeClustersFile   = "spike_clusters.npy"
	SpikeTemplatesFile  = "spike_templates.npy"
	TemplatesFile       = "templates.npy"
)

// LFPEntry points the NWB writer at a probe's subsampled LFP.
type LFPEntry struct {
	InputDataPath       string `json:"input_data_path"`
	InputTimestampsPath string `json:"input_timestamps_path"`
	InputChannelsPath   string `json:"input_channels_path"`
	OutputPath          string `json:"output_path"`
}

// ProbeEntry is one probe in the shape the NWB writer's probe reader expects.
type ProbeEntry struct {
	ID                         int64              `json:"id"`
	Name                       string             `json:"name"`
	SamplingRate               float64            `json:"sampling_rate"`
	LFPSamplingRate            float64            `json:"lfp_sampling_rate"`
	TemporalSubsamplingFactor  int                `json:"temporal_subsampling_factor"`
	CSDPath                    *string            `json:"csd_path"`
	LFP                        *LFPEntry          `json:"lfp"`
	InverseWhiteningMatrixPath string             `json:"inverse_whitening_matrix_path"`
	MeanWaveformsPath          string             `json:"mean_waveforms_path"`
	SpikeAmplitudesPath        string             `json:"spike_amplitudes_path"`
	SpikeClustersFile          string             `json:"spike_clusters_file"`
	SpikeTemplatesPath         string             `json:"spike_templates_path"`
	TemplatesPath              string             `json:"templates_path"`
	SpikeTimesPath             string             `json:"spike_times_path"`
	Channels                   []metadata.Channel `json:"channels"`
	Units                      []metadata.Unit    `json:"units"`
}

// Manifest is the session-level probes document.
type Manifest struct {
	SessionID        string       `json:"session_id"`
	Identifier       string       `json:"identifier"`
	SessionStartTime time.Time    `json:"session_start_time"`
	Description      string       `json:"description"`
	Probes           []ProbeEntry `json:"probes"`
}

// ChannelCount sums channels across all probes.
func (m *Manifest) ChannelCount() int {
	n := 0
	for _, p := range m.Probes {
		n += len(p.Channels)
	}
	return n
}

// UnitCount sums units across all probes.
func (m *Manifest) UnitCount() int {
	n := 0
	for _, p := range m.Probes {
		n += len(p.Units)
	}
	return n
}

func sorterPath(probe probepaths.Probe, name string) string {
	return filepath.ToSlash(filepath.Join(probe.SortingDir(), name))
}

// newProbeEntry fills the file references for a probe; ids, metadata and
// LFP are attached by the caller.
func newProbeEntry(probe probepaths.Probe, out alignment.ProbeOutput, outputDir string, subsampling int) ProbeEntry {
	return ProbeEntry{
		Name:                       probe.Name(),
		SamplingRate:               float64(out.GlobalProbeSamplingRate),
		LFPSamplingRate:            float64(out.GlobalProbeLFPSamplingRate),
		TemporalSubsamplingFactor:  subsampling,
		InverseWhiteningMatrixPath: sorterPath(probe, WhiteningMatrixFile),
		MeanWaveformsPath:          sorterPath(probe, MeanWaveformsFile),
		SpikeAmplitudesPath:        sorterPath(probe, AmplitudesFile),
		SpikeClustersFile:          sorterPath(probe, SpikeClustersFile),
		SpikeTemplatesPath:         sorterPath(probe, SpikeTemplatesFile),
		TemplatesPath:              sorterPath(probe, TemplatesFile),
		SpikeTimesPath:             filepath.ToSlash(alignment.SpikeTimesPath(outputDir, probe.Letter)),
	}
}

// CSDPath is where a probe's current source density export is looked for.
func CSDPath(outputDir, letter string) string {
	return filepath.Join(outputDir, fmt.Sprintf("probe%s_csd.npz", letter))
}

// LFPOutputPath is the per-probe LFP container the NWB writer produces.
func LFPOutputPath(outputDir, letter string) string {
	return filepath.Join(outputDir, fmt.Sprintf("probe%s_lfp.nwb", letter))
}
