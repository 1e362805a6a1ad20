package packager

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"npprobes/internal/metadata"
)

func containerFixture(units int, series unitSeries) (*Manifest, []probeRecord) {
	entry := ProbeEntry{
		ID:                        0,
		Name:                      "probeA",
		SamplingRate:              30000,
		LFPSamplingRate:           2500,
		TemporalSubsamplingFactor: 2,
		SpikeTimesPath:            "/tmp/probeA/spike_times.npy",
		Channels: []metadata.Channel{
			{ID: 0, ProbeID: 0, StructureAcronym: "No Area", ValidData: true},
			{ID: 1, ProbeID: 0, ProbeChannelNumber: 1, StructureAcronym: "No Area", ValidData: true},
		},
	}
	for i := 0; i < units; i++ {
		entry.Units = append(entry.Units, metadata.Unit{
			ID:            int64(i),
			PeakChannelID: int64(i % 2),
			ClusterID:     i,
			Quality:       "good",
			LocalIndex:    i,
		})
	}
	m := &Manifest{
		SessionID:        "DRpilot_644866_20230207",
		Identifier:       "3f2c7d1e-0000-4000-8000-000000000000",
		SessionStartTime: time.Date(2023, 2, 7, 0, 0, 0, 0, time.UTC),
		Description:      "DRpilot_644866_20230207",
		Probes:           []ProbeEntry{entry},
	}
	return m, []probeRecord{{Entry: entry, Series: series}}
}

func TestWriteContainerUnitsWithoutSpikes(t *testing.T) {
	tests := []struct {
		name   string
		units  int
		series unitSeries
		want   [][]float64
	}{
		{
			name:  "silent units",
			units: 2,
			series: unitSeries{
				SpikeTimes:      [][]float64{{}, {}},
				SpikeAmplitudes: [][]float64{{}, {}},
				WaveformMeans:   make([][]float64, 2),
			},
			want: [][]float64{{}, {}},
		},
		{
			name:  "no units",
			units: 0,
			want:  [][]float64{},
		},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, records := containerFixture(tt.units, tt.series)
			path := filepath.Join(t.TempDir(), "units.sqlite")
			if err := writeContainer(ctx, path, m, records, time.Now()); err != nil {
				t.Fatalf("writeContainer: %v", err)
			}

			for _, column := range []string{ColumnSpikeTimes, ColumnSpikeAmplitudes} {
				got, err := ReadRaggedColumn(ctx, path, column)
				if err != nil {
					t.Fatalf("ReadRaggedColumn(%s): %v", column, err)
				}
				if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
					t.Fatalf("%s mismatch (-want +got):\n%s", column, diff)
				}
				if len(got) != tt.units {
					t.Fatalf("%s has %d series, want %d", column, len(got), tt.units)
				}
			}

			_, err := ReadRaggedColumn(ctx, path, ColumnWaveformMean)
			if !errors.Is(err, sql.ErrNoRows) {
				t.Fatalf("expected no waveform column, got %v", err)
			}
		})
	}
}

func TestWriteContainerWaveformsOrderedByUnitID(t *testing.T) {
	series := unitSeries{
		SpikeTimes:      [][]float64{{0.1, 0.2}, {}},
		SpikeAmplitudes: [][]float64{{5, 6}, {}},
		WaveformMeans:   [][]float64{{1, 2}, {3, 4}},
		HasWaveforms:    true,
	}
	m, records := containerFixture(2, series)
	// Reverse the unit ids so storage order differs from input order.
	records[0].Entry.Units[0].ID, records[0].Entry.Units[1].ID = 1, 0
	m.Probes[0] = records[0].Entry

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "units.sqlite")
	if err := writeContainer(ctx, path, m, records, time.Now()); err != nil {
		t.Fatalf("writeContainer: %v", err)
	}

	times, err := ReadRaggedColumn(ctx, path, ColumnSpikeTimes)
	if err != nil {
		t.Fatalf("ReadRaggedColumn: %v", err)
	}
	if diff := cmp.Diff([][]float64{{}, {0.1, 0.2}}, times, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("spike times mismatch (-want +got):\n%s", diff)
	}
	waveforms, err := ReadRaggedColumn(ctx, path, ColumnWaveformMean)
	if err != nil {
		t.Fatalf("ReadRaggedColumn: %v", err)
	}
	if diff := cmp.Diff([][]float64{{3, 4}, {1, 2}}, waveforms); diff != "" {
		t.Fatalf("waveforms mismatch (-want +got):\n%s", diff)
	}
}
