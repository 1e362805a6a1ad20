package packager

import (
	"fmt"
	"path/filepath"

	"npprobes/internal/arrays"
	"npprobes/internal/fileutil"
	"npprobes/internal/metadata"
	"npprobes/internal/services"
)

// unitSeries holds one probe's per-unit variable-length series, indexed
// like the probe's unit list.
type unitSeries struct {
	SpikeTimes      [][]float64
	SpikeAmplitudes [][]float64
	WaveformMeans   [][]float64
	HasWaveforms    bool
}

// loadSeries groups spikes by cluster using spike_clusters.npy and attaches
// the aligned spike times and amplitudes of each unit. Mean waveforms are
// read from mean_waveforms.npy when present, indexed by cluster id.
func loadSeries(sortingDir, alignedTimesPath string, units []metadata.Unit) (unitSeries, error) {
	clustersPath := filepath.Join(sortingDir, SpikeClustersFile)
	amplitudesPath := filepath.Join(sortingDir, AmplitudesFile)
	for _, path := range []string{clustersPath, amplitudesPath, alignedTimesPath} {
		if !fileutil.Exists(path) {
			return unitSeries{}, services.Wrap(services.ErrRequiredFile, "packager", "series", path, nil)
		}
	}

	clusters, err := arrays.ReadInt64(clustersPath)
	if err != nil {
		return unitSeries{}, services.Wrap(services.ErrValidation, "packager", "series", "spike clusters", err)
	}
	times, err := arrays.ReadFloat64(alignedTimesPath)
	if err != nil {
		return unitSeries{}, services.Wrap(services.ErrValidation, "packager", "series", "aligned spike times", err)
	}
	amplitudes, err := arrays.ReadFloat64(amplitudesPath)
	if err != nil {
		return unitSeries{}, services.Wrap(services.ErrValidation, "packager", "series", "spike amplitudes", err)
	}
	if len(times.Data) != len(clusters) || len(amplitudes.Data) != len(clusters) {
		return unitSeries{}, services.Wrap(services.ErrValidation, "packager", "series",
			fmt.Sprintf("spike arrays disagree: %d clusters, %d times, %d amplitudes",
				len(clusters), len(times.Data), len(amplitudes.Data)), nil)
	}

	byCluster := make(map[int64][]int, len(units))
	for i, c := range clusters {
		byCluster[c] = append(byCluster[c], i)
	}

	out := unitSeries{
		SpikeTimes:      make([][]float64, len(units)),
		SpikeAmplitudes: make([][]float64, len(units)),
		WaveformMeans:   make([][]float64, len(units)),
	}
	for u, unit := range units {
		spikes := byCluster[int64(unit.ClusterID)]
		st := make([]float64, len(spikes))
		sa := make([]float64, len(spikes))
		for k, idx := range spikes {
			st[k] = times.Data[idx]
			sa[k] = amplitudes.Data[idx]
		}
		out.SpikeTimes[u] = st
		out.SpikeAmplitudes[u] = sa
	}

	waveformsPath := filepath.Join(sortingDir, MeanWaveformsFile)
	if !fileutil.Exists(waveformsPath) {
		return out, nil
	}
	waveforms, err := arrays.ReadFloat64(waveformsPath)
	if err != nil {
		return unitSeries{}, services.Wrap(services.ErrValidation, "packager", "series", "mean waveforms", err)
	}
	for u, unit := range units {
		if unit.ClusterID < 0 || unit.ClusterID >= waveforms.Rows() {
			return unitSeries{}, services.Wrap(services.ErrValidation, "packager", "series",
				fmt.Sprintf("cluster %d has no mean waveform (%d rows)", unit.ClusterID, waveforms.Rows()), nil)
		}
		out.WaveformMeans[u] = append([]float64(nil), waveforms.Row(unit.ClusterID)...)
	}
	out.HasWaveforms = true
	return out, nil
}
