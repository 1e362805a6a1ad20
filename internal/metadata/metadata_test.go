package metadata_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"npprobes/internal/ccf"
	"npprobes/internal/metadata"
	"npprobes/internal/registry"
	"npprobes/internal/services"
	"npprobes/internal/testsupport"
)

func newAllocation(t *testing.T) registry.Allocation {
	t.Helper()
	reg := registry.NewFile(filepath.Join(t.TempDir(), "unique_ids.json"), 0, nil)
	alloc, err := reg.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(alloc.Release)
	return alloc
}

func fixtureVolume() ccf.MemoryVolume {
	nx, ny, nz := testsupport.AnnotationDims[0], testsupport.AnnotationDims[1], testsupport.AnnotationDims[2]
	vol := make(ccf.MemoryVolume, nz)
	for ap := range vol {
		vol[ap] = make([][]int, ny)
		for dv := range vol[ap] {
			vol[ap][dv] = make([]int, nx)
			for ml := range vol[ap][dv] {
				vol[ap][dv][ml] = int(testsupport.AnnotationValue(ap, dv, ml))
			}
		}
	}
	return vol
}

func TestAssembleChannelsWithoutTableEmitsSentinels(t *testing.T) {
	alloc := newAllocation(t)

	first, err := metadata.AssembleChannels(0, nil, nil, alloc, nil)
	if err != nil {
		t.Fatalf("AssembleChannels: %v", err)
	}
	second, err := metadata.AssembleChannels(1, nil, nil, alloc, nil)
	if err != nil {
		t.Fatalf("AssembleChannels second probe: %v", err)
	}
	if len(first) != metadata.ChannelsPerProbe || len(second) != metadata.ChannelsPerProbe {
		t.Fatalf("channel counts = %d, %d", len(first), len(second))
	}

	for i, ch := range first {
		if ch.StructureID != -1 || ch.StructureAcronym != "No Area" || !ch.ValidData {
			t.Fatalf("channel %d not a valid sentinel: %+v", i, ch)
		}
		if ch.AnteriorPosterior != -1 || ch.HorizontalPosition != -1 || ch.VerticalPosition != -1 {
			t.Fatalf("channel %d has non-sentinel position: %+v", i, ch)
		}
		if ch.ProbeChannelNumber != i {
			t.Fatalf("channel %d numbered %d", i, ch.ProbeChannelNumber)
		}
	}

	all := append(append([]metadata.Channel{}, first...), second...)
	for i, ch := range all {
		if ch.ID != int64(i) {
			t.Fatalf("channel %d has id %d, want %d", i, ch.ID, i)
		}
	}
	issued := alloc.Issued(registry.Channel)
	if len(issued) != 2*metadata.ChannelsPerProbe || issued[len(issued)-1] != second[len(second)-1].ID {
		t.Fatalf("registry order does not match channel order")
	}
}

func TestAssembleChannelsFromAlignmentTable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := testsupport.WriteCCFTable(t, cfg, "626791", "A", 1, metadata.ChannelsPerProbe)
	rows, err := ccf.ReadAlignmentTable(path)
	if err != nil {
		t.Fatalf("ReadAlignmentTable: %v", err)
	}

	channels, err := metadata.AssembleChannels(5, rows, fixtureVolume(), newAllocation(t), nil)
	if err != nil {
		t.Fatalf("AssembleChannels: %v", err)
	}
	if len(channels) != metadata.ChannelsPerProbe {
		t.Fatalf("got %d channels", len(channels))
	}

	var horizontal, vertical []int
	for _, ch := range channels[:6] {
		horizontal = append(horizontal, ch.HorizontalPosition)
		vertical = append(vertical, ch.VerticalPosition)
	}
	if diff := cmp.Diff([]int{43, 11, 59, 27, 43, 11}, horizontal); diff != "" {
		t.Fatalf("horizontal positions (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{20, 20, 40, 40, 60, 60}, vertical); diff != "" {
		t.Fatalf("vertical positions (-want +got):\n%s", diff)
	}
	for i, ch := range channels {
		want := 20 * (i/2 + 1)
		if ch.VerticalPosition != want {
			t.Fatalf("channel %d vertical = %d, want %d", i, ch.VerticalPosition, want)
		}
	}

	ch := channels[5]
	ap, dv, ml := 5%4, (5/4)%3, 5%2
	if ch.StructureID != int(testsupport.AnnotationValue(ap, dv, ml)) {
		t.Fatalf("structure id = %d", ch.StructureID)
	}
	if ch.AnteriorPosterior != float64(ap*25) || ch.DorsalVentral != float64(dv*25) || ch.LeftRight != float64(ml*25) {
		t.Fatalf("coordinates not scaled to microns: %+v", ch)
	}
	if ch.ProbeID != 5 || ch.StructureAcronym != "CA1" {
		t.Fatalf("unexpected channel: %+v", ch)
	}
	if channels[4].StructureAcronym != ccf.NoArea {
		t.Fatalf("blank region should map to No Area, got %q", channels[4].StructureAcronym)
	}
}

func TestAssembleChannelsShortTableFallsBackToSentinels(t *testing.T) {
	rows := []ccf.Row{{Channel: 0, AP: 1, DV: 1, ML: 1, Region: "CA1"}}
	channels, err := metadata.AssembleChannels(0, rows, fixtureVolume(), newAllocation(t), nil)
	if err != nil {
		t.Fatalf("AssembleChannels: %v", err)
	}
	if len(channels) != metadata.ChannelsPerProbe || channels[0].StructureID != -1 {
		t.Fatalf("expected sentinel channels, got %d (first %+v)", len(channels), channels[0])
	}
}

func TestAssembleChannelsRejectsVoxelOutsideVolume(t *testing.T) {
	rows := make([]ccf.Row, metadata.ChannelsPerProbe)
	for i := range rows {
		rows[i] = ccf.Row{Channel: i, Region: "CA1"}
	}
	rows[200].AP = 99

	alloc := newAllocation(t)
	_, err := metadata.AssembleChannels(0, rows, fixtureVolume(), alloc, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := alloc.Issued(registry.Channel); len(got) != 0 {
		t.Fatalf("rejected probe consumed %d channel ids", len(got))
	}
}

func TestReadUnitTableMergesTestWaveforms(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	root := testsupport.NewSessionDir(t, cfg, "1234567890_626791_20220817")
	metricsPath := testsupport.AddProbe(t, root, testsupport.ProbeFixture{Letter: "B", Units: 4, TestMetrics: true})

	table, err := metadata.ReadUnitTable(metricsPath)
	if err != nil {
		t.Fatalf("ReadUnitTable: %v", err)
	}
	if table.Len() != 4 {
		t.Fatalf("merged rows = %d", table.Len())
	}
	for i := 0; i < table.Len(); i++ {
		if got := table.String(i, "cluster_id"); got != []string{"0", "1", "2", "3"}[i] {
			t.Fatalf("row %d cluster_id = %s; left order not kept", i, got)
		}
	}
	if got := table.Float(2, "duration"); got != 3.25 {
		t.Fatalf("duration for cluster 2 = %v", got)
	}
}

func TestReadUnitTableMissingWaveformsIsRequired(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics_test.csv")
	testsupport.WriteText(t, path, "cluster_id,peak_channel\n0,1\n")
	if _, err := metadata.ReadUnitTable(path); !errors.Is(err, services.ErrRequiredFile) {
		t.Fatalf("expected required-file error, got %v", err)
	}
}

func TestAssembleUnitsNormalizesMetrics(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	root := testsupport.NewSessionDir(t, cfg, "1234567890_626791_20220817")
	metricsPath := testsupport.AddProbe(t, root, testsupport.ProbeFixture{Letter: "A", Units: 3, OmitQuality: true})

	table, err := metadata.ReadUnitTable(metricsPath)
	if err != nil {
		t.Fatalf("ReadUnitTable: %v", err)
	}
	alloc := newAllocation(t)
	channels, err := metadata.AssembleChannels(0, nil, nil, alloc, nil)
	if err != nil {
		t.Fatal(err)
	}
	units, err := metadata.AssembleUnits(table, channels, alloc)
	if err != nil {
		t.Fatalf("AssembleUnits: %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("got %d units", len(units))
	}

	for i, u := range units {
		for j, v := range u.MetricValues() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("unit %d metric %s not finite: %v", i, metadata.Metrics[j].Name, v)
			}
		}
		if u.Quality != metadata.DefaultQuality {
			t.Fatalf("unit %d quality = %q", i, u.Quality)
		}
		if u.LocalIndex != i || u.ClusterID != i {
			t.Fatalf("unit %d indices = %d/%d", i, u.LocalIndex, u.ClusterID)
		}
		if u.PeakChannelID != channels[10*i].ID {
			t.Fatalf("unit %d peak channel id = %d, want %d", i, u.PeakChannelID, channels[10*i].ID)
		}
		if u.ID != int64(i) {
			t.Fatalf("unit %d id = %d", i, u.ID)
		}
		if u.IsolationDistance != 0 {
			t.Fatalf("NaN isolation distance not zeroed: %v", u.IsolationDistance)
		}
	}
	if units[1].SNR != 0 {
		t.Fatalf("infinite snr not zeroed: %v", units[1].SNR)
	}
	if units[2].FiringRate != 0 {
		t.Fatalf("blank firing rate not zeroed: %v", units[2].FiringRate)
	}
	if units[0].ISIViolations != 1.25 || units[0].WaveformHalfwidth != 1.25 {
		t.Fatalf("renamed metrics not mapped: %+v", units[0])
	}
}

func TestAssembleUnitsRejectsOutOfRangePeakChannel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	root := testsupport.NewSessionDir(t, cfg, "1234567890_626791_20220817")
	metricsPath := testsupport.AddProbe(t, root, testsupport.ProbeFixture{Letter: "C", PeakChannelOverride: 400})

	table, err := metadata.ReadUnitTable(metricsPath)
	if err != nil {
		t.Fatal(err)
	}
	alloc := newAllocation(t)
	channels, err := metadata.AssembleChannels(0, nil, nil, alloc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := metadata.AssembleUnits(table, channels, alloc); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := alloc.Issued(registry.Unit); len(got) != 0 {
		t.Fatalf("rejected units consumed %d ids", len(got))
	}
}

func TestBuildThenAssignDrawsIDsOnlyOnAssign(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	root := testsupport.NewSessionDir(t, cfg, "1234567890_626791_20220817")
	metricsPath := testsupport.AddProbe(t, root, testsupport.ProbeFixture{Letter: "B", Units: 2})
	table, err := metadata.ReadUnitTable(metricsPath)
	if err != nil {
		t.Fatal(err)
	}

	channels, err := metadata.BuildChannels(nil, nil, nil)
	if err != nil {
		t.Fatalf("BuildChannels: %v", err)
	}
	units, err := metadata.BuildUnits(table, len(channels))
	if err != nil {
		t.Fatalf("BuildUnits: %v", err)
	}
	alloc := newAllocation(t)
	if len(alloc.Issued(registry.Channel)) != 0 || len(alloc.Issued(registry.Unit)) != 0 {
		t.Fatal("build drew identifiers")
	}

	// Draw a probe id first so channel ids are offset from unit ids.
	if _, err := alloc.Next(registry.Probe); err != nil {
		t.Fatal(err)
	}
	if err := metadata.AssignChannelIDs(channels, 7, alloc); err != nil {
		t.Fatalf("AssignChannelIDs: %v", err)
	}
	if err := metadata.AssignUnitIDs(units, channels, alloc); err != nil {
		t.Fatalf("AssignUnitIDs: %v", err)
	}
	if channels[0].ID != 0 || channels[383].ID != 383 || channels[383].ProbeID != 7 {
		t.Fatalf("last channel = %+v", channels[383])
	}
	if diff := cmp.Diff([]int64{0, 1}, alloc.Issued(registry.Unit)); diff != "" {
		t.Fatalf("unit ids (-want +got):\n%s", diff)
	}
	if units[1].PeakChannelID != channels[10].ID {
		t.Fatalf("peak channel id = %d", units[1].PeakChannelID)
	}
}

func TestAssignUnitIDsRejectsShortChannelList(t *testing.T) {
	units := []metadata.Unit{{PeakChannel: 2}}
	channels := []metadata.Channel{{ID: 0}, {ID: 1}}
	alloc := newAllocation(t)
	if err := metadata.AssignUnitIDs(units, channels, alloc); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(alloc.Issued(registry.Unit)) != 0 {
		t.Fatal("rejected units consumed ids")
	}
}
