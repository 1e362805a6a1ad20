package packager

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"npprobes/internal/arrays"
	"npprobes/internal/metadata"
	"npprobes/internal/ragged"
)

//go:embed schema.sql
var schemaSQL string

// Ragged unit columns stored in the container.
const (
	ColumnSpikeTimes      = "unit_spike_times"
	ColumnSpikeAmplitudes = "unit_spike_amplitudes"
	ColumnWaveformMean    = "unit_waveform_mean"
)

// ContainerPath expands the {session} placeholder of name and joins it to dir.
func ContainerPath(dir, name, sessionID string) string {
	return filepath.Join(dir, strings.ReplaceAll(name, "{session}", sessionID))
}

// probeRecord is everything the container needs for one packaged probe.
type probeRecord struct {
	Entry  ProbeEntry
	Series unitSeries
	LFP    *lfpRecord
}

// lfpRecord is a probe's LFP sub-container.
type lfpRecord struct {
	DataPath       string
	TimestampsPath string
	CSDPath        *string
	ElectrodeIDs   []int64
}

func openContainerDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	return db, nil
}

// writeContainer builds the container next to path and renames it into
// place, replacing any previous container for the session.
func writeContainer(ctx context.Context, path string, m *Manifest, records []probeRecord, createdAt time.Time) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create container directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale container: %w", err)
	}

	db, err := openContainerDB(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close container: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(tmp)
			return
		}
		if renameErr := os.Rename(tmp, path); renameErr != nil {
			err = fmt.Errorf("rename container: %w", renameErr)
		}
	}()

	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply container schema: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin container tx: %w", err)
	}
	if err := fillContainer(ctx, tx, m, records, createdAt); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit container: %w", err)
	}
	return nil
}

func fillContainer(ctx context.Context, tx *sql.Tx, m *Manifest, records []probeRecord, createdAt time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session (identifier, session_id, description, session_start_time, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.Identifier, m.SessionID, m.Description,
		m.SessionStartTime.Format(time.RFC3339), createdAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	unitInsert := unitInsertSQL()
	for _, rec := range records {
		p := rec.Entry
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO probes (id, name, sampling_rate, lfp_sampling_rate, temporal_subsampling_factor, spike_times_path) VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.SamplingRate, p.LFPSamplingRate, p.TemporalSubsamplingFactor, p.SpikeTimesPath,
		); err != nil {
			return fmt.Errorf("insert probe %s: %w", p.Name, err)
		}
		for _, c := range p.Channels {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO electrodes (id, probe_id, probe_channel_number, structure_id, structure_acronym,
					anterior_posterior_ccf_coordinate, dorsal_ventral_ccf_coordinate, left_right_ccf_coordinate,
					probe_horizontal_position, probe_vertical_position, valid_data)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				c.ID, c.ProbeID, c.ProbeChannelNumber, c.StructureID, c.StructureAcronym,
				c.AnteriorPosterior, c.DorsalVentral, c.LeftRight,
				c.HorizontalPosition, c.VerticalPosition, c.ValidData,
			); err != nil {
				return fmt.Errorf("insert electrode %d: %w", c.ID, err)
			}
		}
		for _, u := range p.Units {
			args := []any{u.ID, p.ID, u.PeakChannelID, u.ClusterID, u.Quality, u.LocalIndex}
			for _, v := range u.MetricValues() {
				args = append(args, v)
			}
			if _, err := tx.ExecContext(ctx, unitInsert, args...); err != nil {
				return fmt.Errorf("insert unit %d: %w", u.ID, err)
			}
		}
		if rec.LFP != nil {
			if err := insertLFP(ctx, tx, p, rec.LFP); err != nil {
				return err
			}
		}
	}
	return insertRagged(ctx, tx, records)
}

func unitInsertSQL() string {
	columns := []string{"id", "probe_id", "peak_channel_id", "cluster_id", "quality", "local_index"}
	for _, metric := range metadata.Metrics {
		columns = append(columns, metric.Name)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO units (%s) VALUES (%s)", strings.Join(columns, ", "), placeholders)
}

func insertLFP(ctx context.Context, tx *sql.Tx, p ProbeEntry, lfp *lfpRecord) error {
	var csd any
	if lfp.CSDPath != nil {
		csd = *lfp.CSDPath
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lfp_probes (probe_id, name, sampling_rate, data_path, timestamps_path, csd_path) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name+"_lfp", p.LFPSamplingRate, lfp.DataPath, lfp.TimestampsPath, csd,
	); err != nil {
		return fmt.Errorf("insert lfp probe %s: %w", p.Name, err)
	}
	for _, id := range lfp.ElectrodeIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lfp_electrodes (probe_id, electrode_id) VALUES (?, ?)`, p.ID, id,
		); err != nil {
			return fmt.Errorf("insert lfp electrode %d: %w", id, err)
		}
	}
	return nil
}

// insertRagged stores the per-unit series ordered by unit id. Spike times and
// amplitudes are always written, even when no unit has a spike. The waveform
// column is only written when at least one probe had mean_waveforms.npy.
func insertRagged(ctx context.Context, tx *sql.Tx, records []probeRecord) error {
	type row struct {
		id                     int64
		times, amps, waveforms []float64
	}
	var rows []row
	withWaveforms := false
	for _, rec := range records {
		withWaveforms = withWaveforms || rec.Series.HasWaveforms
		for i, u := range rec.Entry.Units {
			rows = append(rows, row{
				id:        u.ID,
				times:     rec.Series.SpikeTimes[i],
				amps:      rec.Series.SpikeAmplitudes[i],
				waveforms: rec.Series.WaveformMeans[i],
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	columns := map[string][][]float64{}
	for _, r := range rows {
		columns[ColumnSpikeTimes] = append(columns[ColumnSpikeTimes], r.times)
		columns[ColumnSpikeAmplitudes] = append(columns[ColumnSpikeAmplitudes], r.amps)
		columns[ColumnWaveformMean] = append(columns[ColumnWaveformMean], r.waveforms)
	}
	names := []string{ColumnSpikeTimes, ColumnSpikeAmplitudes}
	if withWaveforms {
		names = append(names, ColumnWaveformMean)
	}
	for _, name := range names {
		data, index := ragged.Encode(columns[name])
		dataBlob, err := arrays.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		indexBlob, err := arrays.Marshal(index)
		if err != nil {
			return fmt.Errorf("encode %s index: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ragged_columns (table_name, column_name, data, idx) VALUES ('units', ?, ?, ?)`,
			name, dataBlob, indexBlob,
		); err != nil {
			return fmt.Errorf("insert %s: %w", name, err)
		}
	}
	return nil
}

// ReadRaggedColumn decodes a ragged units column from a container. The
// series are ordered by unit id.
func ReadRaggedColumn(ctx context.Context, path, column string) ([][]float64, error) {
	db, err := openContainerDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var dataBlob, indexBlob []byte
	err = db.QueryRowContext(ctx,
		`SELECT data, idx FROM ragged_columns WHERE table_name = 'units' AND column_name = ?`, column,
	).Scan(&dataBlob, &indexBlob)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", column, err)
	}
	data, err := arrays.Unmarshal(dataBlob)
	if err != nil {
		return nil, err
	}
	idx, err := arrays.Unmarshal(indexBlob)
	if err != nil {
		return nil, err
	}
	index := make([]int64, len(idx.Data))
	for i, v := range idx.Data {
		index[i] = int64(v)
	}
	return ragged.Decode(data.Data, index)
}
