// Package lfp builds the request document for the external LFP subsampling
// step.
package lfp

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"npprobes/internal/alignment"
	"npprobes/internal/config"
	"npprobes/internal/fileutil"
	"npprobes/internal/logging"
	"npprobes/internal/probepaths"
	"npprobes/internal/services"
	"npprobes/internal/session"
)

// RequestFile is the request's file name inside the output directory.
const RequestFile = "lfp_subsampling_input.json"

// ProbeRequest describes one probe's LFP inputs and outputs.
type ProbeRequest struct {
	Name                   string  `json:"name"`
	LFPSamplingRate        float64 `json:"lfp_sampling_rate"`
	LFPInputFilePath       string  `json:"lfp_input_file_path"`
	LFPTimestampsInputPath string  `json:"lfp_timestamps_input_path"`
	LFPDataPath            string  `json:"lfp_data_path"`
	LFPTimestampsPath      string  `json:"lfp_timestamps_path"`
	LFPChannelInfoPath     string  `json:"lfp_channel_info_path"`
	SurfaceChannel         float64 `json:"surface_channel"`
	ReferenceChannels      []int   `json:"reference_channels"`
}

// Subsampling holds the request-wide parameters.
type Subsampling struct {
	TemporalSubsamplingFactor int `json:"temporal_subsampling_factor"`
}

// Request is the subsampling tool's input document.
type Request struct {
	LFPSubsampling Subsampling    `json:"lfp_subsampling"`
	Probes         []ProbeRequest `json:"probes"`
}

// DataPath is the subsampled LFP data written for a probe.
func DataPath(outputDir, letter string) string {
	return filepath.Join(outputDir, fmt.Sprintf("probe%s_lfp.dat", letter))
}

// TimestampsPath is the subsampled LFP timestamps written for a probe.
func TimestampsPath(outputDir, letter string) string {
	return filepath.Join(outputDir, fmt.Sprintf("probe%s_lfp_timestamps.npy", letter))
}

// ChannelsPath lists the channels kept after subsampling.
func ChannelsPath(outputDir, letter string) string {
	return filepath.Join(outputDir, fmt.Sprintf("probe%s_lfp_channels.npy", letter))
}

// Builder assembles LFP subsampling requests.
type Builder struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewBuilder constructs a builder.
func NewBuilder(cfg *config.Config, logger *slog.Logger) *Builder {
	return &Builder{cfg: cfg, logger: logging.NewComponentLogger(logger, "lfp")}
}

// Build returns the request for the given probes. A session without a sync
// file is not ready: Build returns a nil request and an ErrNotReady error.
// Probes without raw LFP data are left out and reported by letter.
func (b *Builder) Build(ctx context.Context, s *session.Session, probes []probepaths.Probe) (*Request, map[string]error, error) {
	logger := logging.WithContext(services.WithSessionID(ctx, s.ID), b.logger)

	syncPath, err := s.SyncFile()
	if err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "lfp", "locate sync", "Invalid sync glob", err)
	}
	if syncPath == "" {
		return nil, nil, services.Wrap(services.ErrNotReady, "lfp", "locate sync",
			fmt.Sprintf("No *.h5 sync file in %s", s.Root), nil)
	}

	outputDir := b.cfg.OutputDir(s.Root)
	req := &Request{
		LFPSubsampling: Subsampling{TemporalSubsamplingFactor: b.cfg.LFP.TemporalSubsamplingFactor},
		Probes:         []ProbeRequest{},
	}
	skipped := make(map[string]error)
	for _, probe := range probes {
		pattern := filepath.Join(probe.ContinuousDir(), fmt.Sprintf("*%s-LFP", probe.Letter), "continuous.dat")
		input, err := fileutil.FirstMatch(pattern)
		if err == nil && input == "" {
			err = services.MissingFile(services.ErrRequiredFile, "lfp", pattern)
		}
		if err != nil {
			skipped[probe.Letter] = err
			logging.WarnWithContext(logger, "probe left out of lfp request", "lfp_probe_skipped",
				logging.String(logging.FieldProbe, probe.Name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the probe's LFP continuous.dat"),
				logging.String(logging.FieldImpact, "no subsampled LFP for this probe"),
			)
			continue
		}
		req.Probes = append(req.Probes, ProbeRequest{
			Name:                   probe.Name(),
			LFPSamplingRate:        b.cfg.Alignment.LFPSamplingRate,
			LFPInputFilePath:       filepath.ToSlash(input),
			LFPTimestampsInputPath: filepath.ToSlash(alignment.LFPTimesPath(outputDir, probe.Letter)),
			LFPDataPath:            filepath.ToSlash(DataPath(outputDir, probe.Letter)),
			LFPTimestampsPath:      filepath.ToSlash(TimestampsPath(outputDir, probe.Letter)),
			LFPChannelInfoPath:     filepath.ToSlash(ChannelsPath(outputDir, probe.Letter)),
			SurfaceChannel:         b.cfg.LFP.SurfaceChannel,
			ReferenceChannels:      append([]int(nil), b.cfg.LFP.ReferenceChannels...),
		})
	}
	logger.Info("lfp request built", logging.Int("probes", len(req.Probes)), logging.Int("skipped", len(skipped)))
	return req, skipped, nil
}

// Write persists the request as indented JSON in dir and returns its path.
func Write(req *Request, dir string) (string, error) {
	if req == nil {
		return "", services.Wrap(services.ErrValidation, "lfp", "write", "No request to write", nil)
	}
	path := filepath.Join(dir, RequestFile)
	if err := fileutil.WriteJSONAtomic(path, req); err != nil {
		return "", err
	}
	return path, nil
}
