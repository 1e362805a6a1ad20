package testsupport

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"npprobes/internal/arrays"
	"npprobes/internal/config"
)

// RecordingRel is the recording directory of fixture sessions, relative to
// the session root. It sits four levels deep like real Open Ephys output.
const RecordingRel = "ephys/Record Node 101/experiment1/recording1"

// MetricColumns is the metrics.csv header written by fixtures.
var MetricColumns = []string{
	"snr", "firing_rate", "isi_viol", "presence_ratio", "amplitude_cutoff",
	"isolation_distance", "l_ratio", "d_prime", "nn_hit_rate", "nn_miss_rate",
	"silhouette_score", "max_drift", "cumulative_drift",
}

// WaveformColumns live in waveform_metrics.csv for test exports.
var WaveformColumns = []string{
	"duration", "halfwidth", "PT_ratio", "repolarization_slope", "recovery_slope",
	"amplitude", "spread", "velocity_above", "velocity_below",
}

// ProbeFixture describes the sorting output generated for one probe.
type ProbeFixture struct {
	Letter        string
	Units         int
	TestMetrics   bool
	OmitQuality   bool
	OmitBarcodes  bool
	MeanWaveforms bool
	LFPChannels   []int64
	// PeakChannelOverride sets every unit's peak channel when positive.
	PeakChannelOverride int
}

// NewSessionDir creates an empty session directory under the first session
// root and returns its path.
func NewSessionDir(t testing.TB, cfg *config.Config, id string) string {
	t.Helper()
	root := filepath.Join(cfg.Paths.SessionRoots[0], id)
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir session: %v", err)
	}
	return root
}

// WriteSync drops a placeholder sync file into the session root.
func WriteSync(t testing.TB, sessionRoot string) string {
	t.Helper()
	path := filepath.Join(sessionRoot, filepath.Base(sessionRoot)+".sync.h5")
	WriteFile(t, path, 16)
	return path
}

// SortingDir returns the fixture AP sorting directory for a probe.
func SortingDir(sessionRoot, letter string) string {
	return filepath.Join(sessionRoot, RecordingRel, "continuous", fmt.Sprintf("Neuropix-PXI-100.Probe%s-AP", letter))
}

// SpikeCount is the number of spikes fixtures generate for a unit.
func SpikeCount(unit int) int { return unit + 2 }

// AddProbe writes a probe's sorting output, events and LFP timestamps in the
// current layout and returns the metrics table path.
func AddProbe(t testing.TB, sessionRoot string, fx ProbeFixture) string {
	t.Helper()
	if fx.Units == 0 {
		fx.Units = 3
	}
	recording := filepath.Join(sessionRoot, RecordingRel)
	sorting := SortingDir(sessionRoot, fx.Letter)
	lfpDir := filepath.Join(recording, "continuous", fmt.Sprintf("Neuropix-PXI-100.Probe%s-LFP", fx.Letter))
	eventsDir := filepath.Join(recording, "events", fmt.Sprintf("Neuropix-PXI-100.Probe%s-AP", fx.Letter), "TTL")

	metricsPath := writeMetrics(t, sorting, fx)

	var spikeTimes, clusters []int64
	var amplitudes []float64
	for unit := 0; unit < fx.Units; unit++ {
		for k := 0; k < SpikeCount(unit); k++ {
			spikeTimes = append(spikeTimes, int64(1000*(k+1)+unit))
			clusters = append(clusters, int64(unit))
			amplitudes = append(amplitudes, float64(unit)+0.5)
		}
	}
	mustWriteInt64(t, filepath.Join(sorting, "spike_times.npy"), spikeTimes)
	mustWriteInt64(t, filepath.Join(sorting, "spike_clusters.npy"), clusters)
	if err := arrays.WriteFloat64(filepath.Join(sorting, "amplitudes.npy"), amplitudes); err != nil {
		t.Fatalf("write amplitudes: %v", err)
	}
	if fx.MeanWaveforms {
		const width = 4
		data := make([]float64, fx.Units*width)
		for i := range data {
			data[i] = float64(i)
		}
		if err := arrays.WriteMatrix(filepath.Join(sorting, "mean_waveforms.npy"), fx.Units, width, data); err != nil {
			t.Fatalf("write mean waveforms: %v", err)
		}
	}

	mustWriteInt64(t, filepath.Join(lfpDir, "timestamps.npy"), []int64{12, 24, 36, 48})
	WriteFile(t, filepath.Join(lfpDir, "continuous.dat"), 64)

	if !fx.OmitBarcodes {
		mustWriteInt64(t, filepath.Join(eventsDir, "states.npy"), []int64{1, -1, 1, -1})
		mustWriteInt64(t, filepath.Join(eventsDir, "sample_numbers.npy"), []int64{100, 200, 300, 400})
	}
	return metricsPath
}

func writeMetrics(t testing.TB, dir string, fx ProbeFixture) string {
	t.Helper()
	columns := append([]string{"cluster_id", "peak_channel"}, MetricColumns...)
	if !fx.OmitQuality {
		columns = append(columns, "quality")
	}
	if !fx.TestMetrics {
		columns = append(columns, WaveformColumns...)
	}

	var b strings.Builder
	b.WriteString(strings.Join(columns, ",") + "\n")
	for unit := 0; unit < fx.Units; unit++ {
		peak := 10 * unit
		if fx.PeakChannelOverride > 0 {
			peak = fx.PeakChannelOverride
		}
		row := []string{fmt.Sprint(unit), fmt.Sprint(peak)}
		for _, col := range MetricColumns {
			row = append(row, metricValue(col, unit))
		}
		if !fx.OmitQuality {
			row = append(row, "good")
		}
		if !fx.TestMetrics {
			for _, col := range WaveformColumns {
				row = append(row, metricValue(col, unit))
			}
		}
		b.WriteString(strings.Join(row, ",") + "\n")
	}

	name := "metrics.csv"
	if fx.TestMetrics {
		name = "metrics_test.csv"
		var wf strings.Builder
		wf.WriteString("cluster_id," + strings.Join(WaveformColumns, ",") + "\n")
		for unit := fx.Units - 1; unit >= 0; unit-- {
			row := []string{fmt.Sprint(unit)}
			for _, col := range WaveformColumns {
				row = append(row, metricValue(col, unit))
			}
			wf.WriteString(strings.Join(row, ",") + "\n")
		}
		WriteText(t, filepath.Join(dir, "waveform_metrics.csv"), wf.String())
	}
	path := filepath.Join(dir, name)
	WriteText(t, path, b.String())
	return path
}

// metricValue produces deterministic metric cells including the blanks and
// non-finite spellings sorters emit: unit 1 has an infinite snr, unit 2 a
// blank firing rate, every unit a NaN isolation distance.
func metricValue(column string, unit int) string {
	switch {
	case column == "snr" && unit == 1:
		return "inf"
	case column == "firing_rate" && unit == 2:
		return ""
	case column == "isolation_distance":
		return "nan"
	}
	return fmt.Sprintf("%d.25", unit+1)
}

// WriteCCFTable writes a CCF alignment table with rows channels for the
// probe and returns its path.
func WriteCCFTable(t testing.TB, cfg *config.Config, mouse, letter string, day, rows int) string {
	t.Helper()
	path := filepath.Join(cfg.Paths.TissuecyteRoot, mouse,
		fmt.Sprintf("Probe_%s%d_channels_%s_warped.csv", letter, day, mouse))
	var b strings.Builder
	b.WriteString("channel,AP,DV,ML,region\n")
	for i := 0; i < rows; i++ {
		region := "CA1"
		if i%5 == 4 {
			region = ""
		}
		fmt.Fprintf(&b, "%d,%d,%d,%d,%s\n", i, i%4, (i/4)%3, i%2, region)
	}
	WriteText(t, path, b.String())
	return path
}

// AnnotationDims are the (ML, DV, AP) sizes of the fixture annotation volume.
var AnnotationDims = [3]int{2, 3, 4}

// AnnotationValue is the structure id the fixture volume stores at a voxel.
func AnnotationValue(ap, dv, ml int) uint32 {
	return uint32(1000 + 100*ap + 10*dv + ml)
}

// WriteAnnotationVolume writes an uncompressed MetaImage volume sized
// AnnotationDims at the configured annotation path.
func WriteAnnotationVolume(t testing.TB, cfg *config.Config) string {
	t.Helper()
	nx, ny, nz := AnnotationDims[0], AnnotationDims[1], AnnotationDims[2]
	raw := make([]byte, 0, nx*ny*nz*4)
	for ap := 0; ap < nz; ap++ {
		for dv := 0; dv < ny; dv++ {
			for ml := 0; ml < nx; ml++ {
				raw = binary.LittleEndian.AppendUint32(raw, AnnotationValue(ap, dv, ml))
			}
		}
	}
	header := fmt.Sprintf(`ObjectType = Image
NDims = 3
BinaryData = True
BinaryDataByteOrderMSB = False
CompressedData = False
ElementSpacing = 25 25 25
DimSize = %d %d %d
ElementType = MET_UINT
ElementDataFile = ccf_ano.raw
`, nx, ny, nz)
	WriteText(t, cfg.Paths.AnnotationVolume, header)
	if err := os.WriteFile(filepath.Join(filepath.Dir(cfg.Paths.AnnotationVolume), "ccf_ano.raw"), raw, 0o644); err != nil {
		t.Fatalf("write annotation raw: %v", err)
	}
	return cfg.Paths.AnnotationVolume
}

func mustWriteInt64(t testing.TB, path string, data []int64) {
	t.Helper()
	if err := arrays.WriteInt64(path, data); err != nil {
		t.Fatalf("write %s: %v", filepath.Base(path), err)
	}
}
