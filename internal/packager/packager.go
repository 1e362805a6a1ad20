package packager

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"npprobes/internal/alignment"
	"npprobes/internal/ccf"
	"npprobes/internal/config"
	"npprobes/internal/fileutil"
	"npprobes/internal/layout"
	"npprobes/internal/lfp"
	"npprobes/internal/logging"
	"npprobes/internal/metadata"
	"npprobes/internal/metrics"
	"npprobes/internal/probepaths"
	"npprobes/internal/publish"
	"npprobes/internal/registry"
	"npprobes/internal/services"
	"npprobes/internal/session"
)

// Options adjusts a single Package run.
type Options struct {
	// Probes limits packaging to these letters; empty means all.
	Probes []string
	// Realign runs the aligner even when an aligner output already exists.
	Realign bool
	// OutputDir overrides where the manifest and container are written.
	OutputDir string
	// SkipPublish leaves artifacts local even when a publisher is configured.
	SkipPublish bool
}

// ProbeSummary reports one packaged probe.
type ProbeSummary struct {
	Name     string `json:"name"`
	ID       int64  `json:"id"`
	Channels int    `json:"channels"`
	Units    int    `json:"units"`
	CCF      bool   `json:"ccf"`
	LFP      bool   `json:"lfp"`
}

// SkippedProbe reports a probe left out of the package.
type SkippedProbe struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Result summarizes a Package run.
type Result struct {
	SessionID     string         `json:"session_id"`
	ManifestPath  string         `json:"manifest_path"`
	ContainerPath string         `json:"container_path"`
	NWBPath       string         `json:"nwb_path,omitempty"`
	Probes        []ProbeSummary `json:"probes"`
	Skipped       []SkippedProbe `json:"skipped,omitempty"`
	Published     []publish.Info `json:"published,omitempty"`
	Elapsed       time.Duration  `json:"elapsed_ns"`
}

// Dependencies are the packager's collaborators. Registry is required; a nil
// Publisher or Metrics disables that step.
type Dependencies struct {
	Registry  registry.Registry
	Publisher *publish.Publisher
	Metrics   *metrics.Recorder
	Executor  services.Executor
	Now       func() time.Time
	NewID     func() string
}

// Packager packages sessions.
type Packager struct {
	cfg    *config.Config
	deps   Dependencies
	logger *slog.Logger
}

// New constructs a packager. Missing optional dependencies get defaults.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Packager {
	if deps.Executor == nil {
		deps.Executor = services.CommandExecutor{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Packager{cfg: cfg, deps: deps, logger: logging.NewComponentLogger(logger, "packager")}
}

// preparedProbe is a probe whose inputs have all been read and validated.
type preparedProbe struct {
	probe    probepaths.Probe
	entry    ProbeEntry
	channels []metadata.Channel
	units    []metadata.Unit
	series   unitSeries
	lfp      *lfpPlan
	ccf      bool
}

type lfpPlan struct {
	entry LFPEntry
	// channels holds indices into the probe's channel list.
	channels []int
	csd      *string
}

// Package builds the manifest and container for s.
func (p *Packager) Package(ctx context.Context, s *session.Session, opts Options) (result *Result, err error) {
	if p.deps.Registry == nil {
		return nil, services.Wrap(services.ErrConfiguration, "packager", "package", "no identifier registry", nil)
	}
	started := p.deps.Now()
	ctx = services.WithSessionID(ctx, s.ID)
	logger := logging.WithContext(ctx, p.logger)

	result = &Result{SessionID: s.ID}
	defer func() {
		result.Elapsed = p.deps.Now().Sub(started)
		p.observeSession(logger, err, result.Elapsed)
	}()

	probes, err := probepaths.Discover(s.Root)
	if err != nil {
		return result, fmt.Errorf("discover probes: %w", err)
	}
	probes = probepaths.Filter(probes, opts.Probes)
	if len(probes) == 0 {
		return result, services.Wrap(services.ErrRequiredFile, "packager", "discover",
			fmt.Sprintf("No metrics tables under %s", s.Root), nil)
	}

	outputDir := p.cfg.OutputDir(s.Root)
	dest := outputDir
	if opts.OutputDir != "" {
		dest = opts.OutputDir
	}

	aligned, alignSkipped, err := p.align(ctx, s, probes, outputDir, opts.Realign)
	if err != nil {
		return result, err
	}

	volumes := &volumeCache{path: p.cfg.Paths.AnnotationVolume}
	defer volumes.Close()
	day, dayErr := s.Day()

	var prepared []preparedProbe
	for _, probe := range probes {
		probeCtx := services.WithProbe(ctx, probe.Name())
		pp, err := p.prepare(probeCtx, s, probe, aligned, alignSkipped, outputDir, day, dayErr, volumes)
		if err != nil {
			if services.Classify(err) != services.OutcomeSkipProbe {
				return result, err
			}
			p.skip(probeCtx, result, probe, err)
			continue
		}
		prepared = append(prepared, pp)
	}
	if len(prepared) == 0 {
		return result, services.Wrap(services.ErrRequiredFile, "packager", "prepare", "No probe could be packaged", nil)
	}

	manifest, records, err := p.allocate(ctx, s, prepared)
	if err != nil {
		return result, err
	}
	for i, rec := range records {
		result.Probes = append(result.Probes, ProbeSummary{
			Name:     rec.Entry.Name,
			ID:       rec.Entry.ID,
			Channels: len(rec.Entry.Channels),
			Units:    len(rec.Entry.Units),
			CCF:      prepared[i].ccf,
			LFP:      rec.LFP != nil,
		})
	}

	result.ManifestPath = filepath.Join(dest, ManifestFile)
	if err := fileutil.WriteJSONAtomic(result.ManifestPath, manifest); err != nil {
		return result, fmt.Errorf("write manifest: %w", err)
	}
	result.ContainerPath = ContainerPath(dest, p.cfg.Packaging.ContainerName, s.ID)
	if err := writeContainer(ctx, result.ContainerPath, manifest, records, p.deps.Now()); err != nil {
		return result, err
	}
	logger.Info("session container written",
		logging.String("container", result.ContainerPath),
		logging.Int("probes", len(manifest.Probes)),
		logging.Int("channels", manifest.ChannelCount()),
		logging.Int("units", manifest.UnitCount()),
	)

	artifacts := []string{result.ManifestPath, result.ContainerPath}
	if len(p.cfg.Packaging.NWBCommand) > 0 {
		nwbPath, err := p.writeNWB(ctx, s, result.ManifestPath, dest)
		if err != nil {
			return result, err
		}
		result.NWBPath = nwbPath
		artifacts = append(artifacts, nwbPath)
	}

	if p.deps.Publisher != nil && !opts.SkipPublish {
		infos, err := p.deps.Publisher.Publish(ctx, s.ID, artifacts)
		result.Published = infos
		if err != nil {
			return result, services.Wrap(services.ErrExternalTool, "packager", "publish", "", err)
		}
	}

	if p.deps.Metrics != nil {
		for _, rec := range records {
			p.deps.Metrics.ObserveProbe(len(rec.Entry.Channels), len(rec.Entry.Units))
		}
	}
	logger.Info("session packaged",
		logging.Int("probes", len(result.Probes)),
		logging.Int("skipped", len(result.Skipped)),
		logging.Bool("published", len(result.Published) > 0),
		logging.Duration("elapsed", p.deps.Now().Sub(started)),
	)
	return result, nil
}

// align reuses an existing aligner output unless realign is set. The
// returned map holds probes the request builder left out.
func (p *Packager) align(ctx context.Context, s *session.Session, probes []probepaths.Probe, outputDir string, realign bool) (*alignment.Output, map[string]error, error) {
	logger := logging.WithContext(ctx, p.logger)
	outputPath := filepath.Join(outputDir, alignment.OutputFile)
	if !realign && fileutil.Exists(outputPath) {
		out, err := alignment.ReadOutput(outputPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("reusing aligner output", logging.String("path", outputPath))
		return out, nil, nil
	}

	resolver, err := layout.NewResolver(p.cfg.Alignment)
	if err != nil {
		return nil, nil, err
	}
	req, skipped, err := alignment.NewBuilder(p.cfg, resolver, p.logger).Build(ctx, s, probes)
	if err != nil {
		return nil, skipped, err
	}
	runner := &alignment.Runner{
		Command:  p.cfg.Alignment.Command,
		Timeout:  time.Duration(p.cfg.Alignment.TimeoutSeconds) * time.Second,
		Executor: p.deps.Executor,
		Logger:   p.logger,
	}
	out, err := runner.Run(ctx, req, outputDir)
	return out, skipped, err
}

func (p *Packager) prepare(
	ctx context.Context,
	s *session.Session,
	probe probepaths.Probe,
	aligned *alignment.Output,
	alignSkipped map[string]error,
	outputDir string,
	day int,
	dayErr error,
	volumes *volumeCache,
) (preparedProbe, error) {
	if err, ok := alignSkipped[probe.Letter]; ok {
		return preparedProbe{}, err
	}
	out, ok := aligned.Probe(probe.Name())
	if !ok {
		return preparedProbe{}, services.Wrap(services.ErrRequiredFile, "packager", "alignment",
			fmt.Sprintf("aligner output has no entry for %s", probe.Name()), nil)
	}

	table, err := metadata.ReadUnitTable(probe.MetricsPath)
	if err != nil {
		return preparedProbe{}, err
	}
	units, err := metadata.BuildUnits(table, metadata.ChannelsPerProbe)
	if err != nil {
		return preparedProbe{}, err
	}

	rows, volume := p.loadCCF(ctx, s, probe, day, dayErr, volumes)
	channels, err := metadata.BuildChannels(rows, volume, logging.WithContext(ctx, p.logger))
	if err != nil {
		return preparedProbe{}, err
	}
	series, err := loadSeries(probe.SortingDir(), alignment.SpikeTimesPath(outputDir, probe.Letter), units)
	if err != nil {
		return preparedProbe{}, err
	}

	return preparedProbe{
		probe:    probe,
		entry:    newProbeEntry(probe, out, outputDir, p.cfg.LFP.TemporalSubsamplingFactor),
		channels: channels,
		units:    units,
		series:   series,
		lfp:      p.planLFP(ctx, probe, outputDir, channels),
		ccf:      len(rows) == metadata.ChannelsPerProbe,
	}, nil
}

// loadCCF returns the probe's warped channel table and the annotation
// volume. Missing or unreadable anatomy yields nil rows so the probe falls
// back to sentinel channels.
func (p *Packager) loadCCF(ctx context.Context, s *session.Session, probe probepaths.Probe, day int, dayErr error, volumes *volumeCache) ([]ccf.Row, ccf.Volume) {
	logger := logging.WithContext(ctx, p.logger)
	if dayErr != nil {
		logging.WarnWithContext(logger, "cannot determine recording day", "ccf_day_unknown",
			logging.Error(dayErr),
			logging.String(logging.FieldImpact, "channels use sentinel anatomy"),
		)
		return nil, nil
	}
	path := ccf.AlignmentPath(p.cfg.Paths.TissuecyteRoot, s.Mouse, probe.Letter, day)
	if !fileutil.Exists(path) {
		logger.Info("no ccf alignment table", logging.String("path", path))
		return nil, nil
	}
	rows, err := ccf.ReadAlignmentTable(path)
	if err != nil {
		logging.WarnWithContext(logger, "ccf alignment table unreadable", "ccf_table_invalid",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "re-export the warped channel table"),
			logging.String(logging.FieldImpact, "channels use sentinel anatomy"),
		)
		return nil, nil
	}
	volume, err := volumes.Get()
	if err != nil {
		logging.WarnWithContext(logger, "annotation volume unavailable", "ccf_volume_unavailable",
			logging.String("path", p.cfg.Paths.AnnotationVolume),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.annotation_volume"),
			logging.String(logging.FieldImpact, "channels use sentinel anatomy"),
		)
		return nil, nil
	}
	return rows, volume
}

// planLFP locates the probe's subsampled LFP. LFP is optional: missing
// outputs leave the probe without an LFP sub-container.
func (p *Packager) planLFP(ctx context.Context, probe probepaths.Probe, outputDir string, channels []metadata.Channel) *lfpPlan {
	if !p.cfg.Packaging.IncludeLFP {
		return nil
	}
	logger := logging.WithContext(ctx, p.logger)
	dataPath := lfp.DataPath(outputDir, probe.Letter)
	timestampsPath := lfp.TimestampsPath(outputDir, probe.Letter)
	if !fileutil.Exists(dataPath) || !fileutil.Exists(timestampsPath) {
		logger.Debug("no subsampled lfp", logging.String("data_path", dataPath))
		return nil
	}

	plan := &lfpPlan{entry: LFPEntry{
		InputDataPath:       filepath.ToSlash(dataPath),
		InputTimestampsPath: filepath.ToSlash(timestampsPath),
		InputChannelsPath:   filepath.ToSlash(lfp.ChannelsPath(outputDir, probe.Letter)),
		OutputPath:          filepath.ToSlash(LFPOutputPath(outputDir, probe.Letter)),
	}}
	selected, err := lfpChannels(lfp.ChannelsPath(outputDir, probe.Letter), channels)
	if err != nil {
		logging.WarnWithContext(logger, "lfp channel list unusable", "lfp_channels_invalid",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "rerun lfp subsampling for this probe"),
			logging.String(logging.FieldImpact, "probe packaged without lfp"),
		)
		return nil
	}
	plan.channels = selected

	if p.cfg.Packaging.IncludeCSD {
		if csd := CSDPath(outputDir, probe.Letter); fileutil.Exists(csd) {
			slashed := filepath.ToSlash(csd)
			plan.csd = &slashed
		}
	}
	return plan
}

// allocate draws ids for every prepared probe and commits them.
func (p *Packager) allocate(ctx context.Context, s *session.Session, prepared []preparedProbe) (*Manifest, []probeRecord, error) {
	logger := logging.WithContext(ctx, p.logger)
	alloc, err := p.deps.Registry.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer alloc.Release()

	manifest := &Manifest{
		SessionID:        s.ID,
		Identifier:       p.deps.NewID(),
		SessionStartTime: s.Start,
		Description:      p.cfg.Packaging.Description,
		Probes:           make([]ProbeEntry, 0, len(prepared)),
	}
	records := make([]probeRecord, 0, len(prepared))
	for _, pp := range prepared {
		probeID, err := alloc.Next(registry.Probe)
		if err != nil {
			return nil, nil, err
		}
		if err := metadata.AssignChannelIDs(pp.channels, probeID, alloc); err != nil {
			return nil, nil, err
		}
		if err := metadata.AssignUnitIDs(pp.units, pp.channels, alloc); err != nil {
			return nil, nil, err
		}

		entry := pp.entry
		entry.ID = probeID
		entry.Channels = pp.channels
		entry.Units = pp.units
		rec := probeRecord{Entry: entry, Series: pp.series}
		if pp.lfp != nil {
			lfpEntry := pp.lfp.entry
			entry.LFP = &lfpEntry
			entry.CSDPath = pp.lfp.csd
			ids := make([]int64, len(pp.lfp.channels))
			for i, idx := range pp.lfp.channels {
				ids[i] = pp.channels[idx].ID
			}
			rec.LFP = &lfpRecord{
				DataPath:       lfpEntry.InputDataPath,
				TimestampsPath: lfpEntry.InputTimestampsPath,
				CSDPath:        pp.lfp.csd,
				ElectrodeIDs:   ids,
			}
		}
		rec.Entry = entry
		manifest.Probes = append(manifest.Probes, entry)
		records = append(records, rec)
	}

	if err := alloc.Commit(ctx); err != nil {
		return nil, nil, err
	}
	logger.Info("identifiers committed",
		logging.Int("probes", len(alloc.Issued(registry.Probe))),
		logging.Int("channels", len(alloc.Issued(registry.Channel))),
		logging.Int("units", len(alloc.Issued(registry.Unit))),
	)
	return manifest, records, nil
}

// writeNWB runs the configured external writer on the manifest.
func (p *Packager) writeNWB(ctx context.Context, s *session.Session, manifestPath, dest string) (string, error) {
	nwbPath := filepath.Join(dest, s.ID+".probes.nwb")
	if p.cfg.Packaging.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.Packaging.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	logging.WithContext(ctx, p.logger).Info("running nwb writer", logging.String("output_path", nwbPath))
	if err := services.RunTool(ctx, p.deps.Executor, "packager", p.cfg.Packaging.NWBCommand,
		"--input_json", manifestPath, "--output_path", nwbPath); err != nil {
		return "", err
	}
	if !fileutil.Exists(nwbPath) {
		return "", services.Wrap(services.ErrExternalTool, "packager", "nwb", "writer produced no output", nil)
	}
	return nwbPath, nil
}

func (p *Packager) skip(ctx context.Context, result *Result, probe probepaths.Probe, err error) {
	logging.WarnWithContext(logging.WithContext(ctx, p.logger), "probe skipped", "probe_skipped",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the probe's sorting output and aligner inputs"),
		logging.String(logging.FieldImpact, "probe left out of the session container"),
	)
	result.Skipped = append(result.Skipped, SkippedProbe{Name: probe.Name(), Reason: err.Error()})
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveSkippedProbe()
	}
}

func (p *Packager) observeSession(logger *slog.Logger, err error, elapsed time.Duration) {
	if p.deps.Metrics == nil {
		return
	}
	outcome := metrics.OutcomePackaged
	switch services.Classify(err) {
	case services.OutcomeOK:
	case services.OutcomeNotReady:
		outcome = metrics.OutcomeNotReady
	default:
		outcome = metrics.OutcomeFailed
	}
	p.deps.Metrics.ObserveSession(outcome, elapsed)
	if writeErr := p.deps.Metrics.WriteTextfile(p.cfg.Metrics.Textfile); writeErr != nil {
		logging.WarnWithContext(logger, "metrics textfile not written", "metrics_write_failed",
			logging.Error(writeErr),
			logging.String(logging.FieldImpact, "run metrics unavailable to node exporter"),
		)
	}
}

// volumeCache opens the annotation volume on first use.
type volumeCache struct {
	path   string
	volume ccf.Volume
	err    error
	opened bool
}

func (c *volumeCache) Get() (ccf.Volume, error) {
	if !c.opened {
		c.opened = true
		var image *ccf.MetaImage
		image, c.err = ccf.OpenMetaImage(c.path)
		if c.err == nil {
			c.volume = image
		}
	}
	return c.volume, c.err
}

func (c *volumeCache) Close() {
	if c.volume != nil {
		_ = c.volume.Close()
	}
}
