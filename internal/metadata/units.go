package metadata

import (
	"fmt"
	"path/filepath"
	"strings"

	"npprobes/internal/fileutil"
	"npprobes/internal/registry"
	"npprobes/internal/services"
	"npprobes/internal/tabular"
)

// WaveformMetricsFile is merged into test metrics tables on cluster_id.
const WaveformMetricsFile = "waveform_metrics.csv"

// DefaultQuality labels units when the metrics table has no quality column.
const DefaultQuality = "good"

// Metric names a unit quality metric and the metrics column it is read from.
type Metric struct {
	Name   string
	Column string
}

// Metrics lists unit metrics in output order.
var Metrics = []Metric{
	{"snr", "snr"},
	{"firing_rate", "firing_rate"},
	{"isi_violations", "isi_viol"},
	{"presence_ratio", "presence_ratio"},
	{"amplitude_cutoff", "amplitude_cutoff"},
	{"isolation_distance", "isolation_distance"},
	{"l_ratio", "l_ratio"},
	{"d_prime", "d_prime"},
	{"nn_hit_rate", "nn_hit_rate"},
	{"nn_miss_rate", "nn_miss_rate"},
	{"silhouette_score", "silhouette_score"},
	{"max_drift", "max_drift"},
	{"cumulative_drift", "cumulative_drift"},
	{"waveform_duration", "duration"},
	{"waveform_halfwidth", "halfwidth"},
	{"PT_ratio", "PT_ratio"},
	{"repolarization_slope", "repolarization_slope"},
	{"recovery_slope", "recovery_slope"},
	{"amplitude", "amplitude"},
	{"spread", "spread"},
	{"velocity_above", "velocity_above"},
	{"velocity_below", "velocity_below"},
}

// Unit is one sorted spike cluster.
type Unit struct {
	ID            int64  `json:"id"`
	PeakChannelID int64  `json:"peak_channel_id"`
	ClusterID     int    `json:"cluster_id"`
	Quality       string `json:"quality"`
	LocalIndex    int    `json:"local_index"`
	// PeakChannel is the probe-local channel index.
	PeakChannel int `json:"-"`

	SNR                 float64 `json:"snr"`
	FiringRate          float64 `json:"firing_rate"`
	ISIViolations       float64 `json:"isi_violations"`
	PresenceRatio       float64 `json:"presence_ratio"`
	AmplitudeCutoff     float64 `json:"amplitude_cutoff"`
	IsolationDistance   float64 `json:"isolation_distance"`
	LRatio              float64 `json:"l_ratio"`
	DPrime              float64 `json:"d_prime"`
	NNHitRate           float64 `json:"nn_hit_rate"`
	NNMissRate          float64 `json:"nn_miss_rate"`
	SilhouetteScore     float64 `json:"silhouette_score"`
	MaxDrift            float64 `json:"max_drift"`
	CumulativeDrift     float64 `json:"cumulative_drift"`
	WaveformDuration    float64 `json:"waveform_duration"`
	WaveformHalfwidth   float64 `json:"waveform_halfwidth"`
	PTRatio             float64 `json:"PT_ratio"`
	RepolarizationSlope float64 `json:"repolarization_slope"`
	RecoverySlope       float64 `json:"recovery_slope"`
	Amplitude           float64 `json:"amplitude"`
	Spread              float64 `json:"spread"`
	VelocityAbove       float64 `json:"velocity_above"`
	VelocityBelow       float64 `json:"velocity_below"`
}

// metricFields returns pointers to u's metric fields in Metrics order.
func (u *Unit) metricFields() []*float64 {
	return []*float64{
		&u.SNR, &u.FiringRate, &u.ISIViolations, &u.PresenceRatio,
		&u.AmplitudeCutoff, &u.IsolationDistance, &u.LRatio, &u.DPrime,
		&u.NNHitRate, &u.NNMissRate, &u.SilhouetteScore, &u.MaxDrift,
		&u.CumulativeDrift, &u.WaveformDuration, &u.WaveformHalfwidth, &u.PTRatio,
		&u.RepolarizationSlope, &u.RecoverySlope, &u.Amplitude, &u.Spread,
		&u.VelocityAbove, &u.VelocityBelow,
	}
}

// MetricValues returns u's metrics in Metrics order.
func (u Unit) MetricValues() []float64 {
	fields := u.metricFields()
	values := make([]float64, len(fields))
	for i, f := range fields {
		values[i] = *f
	}
	return values
}

// ReadUnitTable loads a cluster metrics table. Test tables (file name
// containing "_test") are inner-joined with the neighbouring waveform
// metrics table on cluster_id.
func ReadUnitTable(metricsPath string) (*tabular.Table, error) {
	table, err := tabular.ReadFile(metricsPath)
	if err != nil {
		return nil, services.Wrap(services.ErrRequiredFile, "metadata", "read metrics", metricsPath, err)
	}
	if strings.Contains(filepath.Base(metricsPath), "_test") {
		wfPath := filepath.Join(filepath.Dir(metricsPath), WaveformMetricsFile)
		if !fileutil.Exists(wfPath) {
			return nil, services.MissingFile(services.ErrRequiredFile, "metadata", wfPath)
		}
		waveforms, err := tabular.ReadFile(wfPath)
		if err != nil {
			return nil, services.Wrap(services.ErrRequiredFile, "metadata", "read waveform metrics", wfPath, err)
		}
		table, err = table.InnerJoin(waveforms, "cluster_id")
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "metadata", "merge waveform metrics", metricsPath, err)
		}
	}
	if err := table.Require("cluster_id", "peak_channel"); err != nil {
		return nil, services.Wrap(services.ErrValidation, "metadata", "read metrics", filepath.Base(metricsPath), err)
	}
	return table, nil
}

// CheckUnitTable verifies that every row has an integral cluster id and a
// peak channel within channelCount.
func CheckUnitTable(table *tabular.Table, channelCount int) error {
	for i := 0; i < table.Len(); i++ {
		if _, err := table.Int(i, "cluster_id"); err != nil {
			return services.Wrap(services.ErrValidation, "metadata", "units", "", err)
		}
		peak, err := table.Int(i, "peak_channel")
		if err != nil {
			return services.Wrap(services.ErrValidation, "metadata", "units", "", err)
		}
		if peak < 0 || peak >= channelCount {
			return services.Wrap(services.ErrValidation, "metadata", "units",
				fmt.Sprintf("row %d: peak channel %d outside %d channels", i, peak, channelCount), nil)
		}
	}
	return nil
}

// AssembleUnits builds one unit per metrics row, in row order, with ids
// drawn from alloc after every row has been validated.
func AssembleUnits(table *tabular.Table, channels []Channel, alloc registry.Allocation) ([]Unit, error) {
	units, err := BuildUnits(table, len(channels))
	if err != nil {
		return nil, err
	}
	if err := AssignUnitIDs(units, channels, alloc); err != nil {
		return nil, err
	}
	return units, nil
}

// BuildUnits validates the table and normalizes its rows without drawing ids.
func BuildUnits(table *tabular.Table, channelCount int) ([]Unit, error) {
	if err := CheckUnitTable(table, channelCount); err != nil {
		return nil, err
	}
	hasQuality := table.Has("quality")
	units := make([]Unit, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		peak, _ := table.Int(i, "peak_channel")
		cluster, _ := table.Int(i, "cluster_id")
		u := Unit{
			PeakChannel: peak,
			ClusterID:   cluster,
			Quality:     DefaultQuality,
			LocalIndex:  i,
		}
		if hasQuality {
			if q := table.String(i, "quality"); q != "" {
				u.Quality = q
			}
		}
		for j, field := range u.metricFields() {
			*field = table.Float(i, Metrics[j].Column)
		}
		units = append(units, u)
	}
	return units, nil
}

// AssignUnitIDs resolves peak channel ids through channels and draws a unit
// id for each unit in order.
func AssignUnitIDs(units []Unit, channels []Channel, alloc registry.Allocation) error {
	for i := range units {
		if units[i].PeakChannel < 0 || units[i].PeakChannel >= len(channels) {
			return services.Wrap(services.ErrValidation, "metadata", "units",
				fmt.Sprintf("peak channel %d outside %d channels", units[i].PeakChannel, len(channels)), nil)
		}
	}
	for i := range units {
		id, err := alloc.Next(registry.Unit)
		if err != nil {
			return err
		}
		units[i].ID = id
		units[i].PeakChannelID = channels[units[i].PeakChannel].ID
	}
	return nil
}
