package alignment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"npprobes/internal/config"
	"npprobes/internal/fileutil"
	"npprobes/internal/layout"
	"npprobes/internal/logging"
	"npprobes/internal/probepaths"
	"npprobes/internal/services"
	"npprobes/internal/session"
)

// Mappable timestamp file names understood by the aligner.
const (
	SpikeTimestamps = "spike_timestamps"
	LFPTimestamps   = "lfp_timestamps"
)

// MappableFile is one sample-number array to translate to master clock time.
type MappableFile struct {
	Name       string `json:"name"`
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path"`
}

// ProbeRequest describes one probe's alignment inputs.
type ProbeRequest struct {
	Name                     string         `json:"name"`
	SamplingRate             float64        `json:"sampling_rate"`
	LFPSamplingRate          float64        `json:"lfp_sampling_rate"`
	BarcodeChannelStatesPath string         `json:"barcode_channel_states_path"`
	BarcodeTimestampsPath    string         `json:"barcode_timestamps_path"`
	MappableTimestampFiles   []MappableFile `json:"mappable_timestamp_files"`
	StartIndex               int            `json:"start_index"`
}

// Request is the aligner's input document.
type Request struct {
	Probes     []ProbeRequest `json:"probes"`
	SyncH5Path string         `json:"sync_h5_path"`
}

// SpikeTimesPath is where the aligner writes a probe's aligned spike times.
func SpikeTimesPath(outputDir, letter string) string {
	return filepath.Join(outputDir, fmt.Sprintf("spike_times_%s_aligned.npy", letter))
}

// LFPTimesPath is where the aligner writes a probe's aligned LFP timestamps.
func LFPTimesPath(outputDir, letter string) string {
	return filepath.Join(outputDir, fmt.Sprintf("lfp_times_%s_aligned.npy", letter))
}

// Builder assembles alignment requests.
type Builder struct {
	cfg      *config.Config
	resolver *layout.Resolver
	logger   *slog.Logger

	// DryRun computes paths without creating the output directory or
	// writing corrected arrays.
	DryRun bool
}

// NewBuilder constructs a builder.
func NewBuilder(cfg *config.Config, resolver *layout.Resolver, logger *slog.Logger) *Builder {
	return &Builder{cfg: cfg, resolver: resolver, logger: logging.NewComponentLogger(logger, "alignment")}
}

// Build assembles the request for the given probes. Probes whose inputs are
// missing are left out and reported in the returned map keyed by letter; the
// request itself fails only when the session has no sync file or no probe
// survives.
func (b *Builder) Build(ctx context.Context, s *session.Session, probes []probepaths.Probe) (*Request, map[string]error, error) {
	logger := logging.WithContext(services.WithSessionID(ctx, s.ID), b.logger)

	syncPath, err := s.SyncFile()
	if err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "alignment", "locate sync", "Invalid sync glob", err)
	}
	if syncPath == "" {
		return nil, nil, services.Wrap(services.ErrNotReady, "alignment", "locate sync",
			fmt.Sprintf("No *.h5 sync file in %s", s.Root), nil)
	}

	lay, err := b.resolver.Resolve(s.ID)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("alignment layout selected", logging.String("layout", lay.Name))

	outputDir := b.cfg.OutputDir(s.Root)
	if !b.DryRun {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	req := &Request{SyncH5Path: syncPath}
	skipped := make(map[string]error)
	for _, probe := range probes {
		pr, err := b.buildProbe(s, lay, probe, outputDir)
		if err != nil {
			skipped[probe.Letter] = err
			logging.WarnWithContext(logger, "probe left out of alignment request", "alignment_probe_skipped",
				logging.String(logging.FieldProbe, probe.Name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the probe's events/ and continuous/ directories"),
				logging.String(logging.FieldImpact, "probe will not be packaged"),
			)
			continue
		}
		req.Probes = append(req.Probes, pr)
	}
	if len(req.Probes) == 0 {
		return nil, skipped, services.Wrap(services.ErrRequiredFile, "alignment", "build",
			"No probe has complete alignment inputs", nil)
	}
	logger.Info("alignment request built",
		logging.Int("probes", len(req.Probes)),
		logging.Int("skipped", len(skipped)),
		logging.String("layout", lay.Name),
	)
	return req, skipped, nil
}

func (b *Builder) buildProbe(s *session.Session, lay layout.Layout, probe probepaths.Probe, outputDir string) (ProbeRequest, error) {
	base := lay.BaseDir(s.Root, probe.RecordingDir())

	states, err := requireMatch(lay.Pattern(lay.BarcodeStatesGlob, base, probe.Letter))
	if err != nil {
		return ProbeRequest{}, err
	}
	barcodeTimes, err := requireMatch(lay.Pattern(lay.BarcodeTimestampsGlob, base, probe.Letter))
	if err != nil {
		return ProbeRequest{}, err
	}
	lfpTimes, err := requireMatch(lay.Pattern(lay.LFPTimestampsGlob, base, probe.Letter))
	if err != nil {
		return ProbeRequest{}, err
	}
	spikeTimes := filepath.Join(probe.SortingDir(), "spike_times.npy")
	if !fileutil.Exists(spikeTimes) {
		return ProbeRequest{}, services.MissingFile(services.ErrRequiredFile, "alignment", spikeTimes)
	}

	if lay.OffsetCorrection {
		firstSample, err := requireMatch(lay.Pattern(lay.FirstSampleGlob, base, probe.Letter))
		if err != nil {
			return ProbeRequest{}, err
		}
		corrected, err := correctOffsets(firstSample, barcodeTimes, lfpTimes, lay.LFPClockDivisor, outputDir, probe.Letter, b.DryRun)
		if err != nil {
			return ProbeRequest{}, err
		}
		barcodeTimes, lfpTimes = corrected.barcodeTimestamps, corrected.lfpTimestamps
	}

	return ProbeRequest{
		Name:                     probe.Name(),
		SamplingRate:             b.cfg.Alignment.APSamplingRate,
		LFPSamplingRate:          b.cfg.Alignment.LFPSamplingRate,
		BarcodeChannelStatesPath: filepath.ToSlash(states),
		BarcodeTimestampsPath:    filepath.ToSlash(barcodeTimes),
		MappableTimestampFiles: []MappableFile{
			{
				Name:       SpikeTimestamps,
				InputPath:  filepath.ToSlash(spikeTimes),
				OutputPath: filepath.ToSlash(SpikeTimesPath(outputDir, probe.Letter)),
			},
			{
				Name:       LFPTimestamps,
				InputPath:  filepath.ToSlash(lfpTimes),
				OutputPath: filepath.ToSlash(LFPTimesPath(outputDir, probe.Letter)),
			},
		},
		StartIndex: 0,
	}, nil
}

func requireMatch(pattern string) (string, error) {
	match, err := fileutil.FirstMatch(pattern)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "alignment", "glob", "Malformed layout glob", err)
	}
	if match == "" {
		return "", services.MissingFile(services.ErrRequiredFile, "alignment", pattern)
	}
	return match, nil
}
