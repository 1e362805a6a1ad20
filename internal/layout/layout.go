package layout

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"npprobes/internal/config"
	"npprobes/internal/services"
)

// Layout names.
const (
	Current = "current"
	Legacy  = "legacy"
	Pinned  = "pinned"
)

// Glob roots.
const (
	BaseRecording = "recording"
	BaseSession   = "session"
)

// DefaultLFPClockDivisor converts legacy LFP sample numbers into the AP
// clock domain.
const DefaultLFPClockDivisor = 12

// Layout locates the per-probe alignment inputs. Glob patterns are relative
// to Base and may contain a {probe} placeholder for the probe letter.
type Layout struct {
	Name                  string
	Base                  string
	BarcodeStatesGlob     string
	BarcodeTimestampsGlob string
	LFPTimestampsGlob     string
	FirstSampleGlob       string
	OffsetCorrection      bool
	LFPClockDivisor       int
}

// Pattern expands a glob for one probe.
func (l Layout) Pattern(glob, baseDir, letter string) string {
	return filepath.Join(baseDir, strings.ReplaceAll(glob, "{probe}", letter))
}

// BaseDir picks the directory the layout's globs are relative to.
func (l Layout) BaseDir(sessionRoot, recordingDir string) string {
	if l.Base == BaseSession {
		return sessionRoot
	}
	return recordingDir
}

func builtins() map[string]Layout {
	return map[string]Layout{
		Current: {
			Name:                  Current,
			Base:                  BaseRecording,
			BarcodeStatesGlob:     "events/*{probe}-AP/*/states.npy",
			BarcodeTimestampsGlob: "events/*{probe}-AP/*/sample_numbers.npy",
			LFPTimestampsGlob:     "continuous/*{probe}-LFP/timestamps.npy",
		},
		Legacy: {
			Name:                  Legacy,
			Base:                  BaseRecording,
			BarcodeStatesGlob:     "events/Neuropix-PXI-*.{probe}-AP/TTL_1/channel_states.npy",
			BarcodeTimestampsGlob: "events/Neuropix-PXI-*.{probe}-AP/TTL_1/timestamps.npy",
			LFPTimestampsGlob:     "continuous/*{probe}-LFP/timestamps.npy",
			FirstSampleGlob:       "continuous/*{probe}-AP/timestamps.npy",
			OffsetCorrection:      true,
			LFPClockDivisor:       DefaultLFPClockDivisor,
		},
		Pinned: {
			Name:                  Pinned,
			Base:                  BaseSession,
			BarcodeStatesGlob:     "*/*/*/*/events/Neuropix-PXI-100.Probe{probe}-AP/TTL/states.npy",
			BarcodeTimestampsGlob: "*/*/*/*/events/Neuropix-PXI-100.Probe{probe}-AP/TTL/sample_numbers.npy",
			LFPTimestampsGlob:     "*/*/*/*/continuous/Neuropix-PXI-100.Probe{probe}-LFP/timestamps.npy",
		},
	}
}

type rule struct {
	match  *regexp.Regexp
	layout string
}

func builtinRules() []rule {
	return []rule{
		{match: regexp.MustCompile(`^DRpilot_626791_20220817$`), layout: Pinned},
		{match: regexp.MustCompile(`_20(1\d|2[01])\d{4}(_\d{6})?$`), layout: Legacy},
	}
}

// Resolver maps session ids to layouts.
type Resolver struct {
	layouts map[string]Layout
	rules   []rule
}

// NewResolver builds a resolver from the alignment config. Configured layouts
// replace built-ins of the same name and configured session rules are
// consulted before the built-in rules.
func NewResolver(cfg config.Alignment) (*Resolver, error) {
	r := &Resolver{layouts: builtins()}
	for _, def := range cfg.Layouts {
		r.layouts[def.Name] = Layout{
			Name:                  def.Name,
			Base:                  def.Base,
			BarcodeStatesGlob:     def.BarcodeStatesGlob,
			BarcodeTimestampsGlob: def.BarcodeTimestampsGlob,
			LFPTimestampsGlob:     def.LFPTimestampsGlob,
			FirstSampleGlob:       def.FirstSampleGlob,
			OffsetCorrection:      def.OffsetCorrection,
			LFPClockDivisor:       def.LFPClockDivisor,
		}
	}
	for name, l := range r.layouts {
		if l.BarcodeStatesGlob == "" || l.BarcodeTimestampsGlob == "" || l.LFPTimestampsGlob == "" {
			return nil, services.Wrap(services.ErrConfiguration, "layout", "load",
				fmt.Sprintf("layout %q must define barcode states, barcode timestamps and lfp timestamps globs", name), nil)
		}
	}
	for i, s := range cfg.Sessions {
		re, err := regexp.Compile(s.Match)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "layout", "load",
				fmt.Sprintf("alignment.sessions[%d].match", i), err)
		}
		if _, ok := r.layouts[s.Layout]; !ok {
			return nil, services.Wrap(services.ErrConfiguration, "layout", "load",
				fmt.Sprintf("alignment.sessions[%d] references unknown layout %q", i, s.Layout), nil)
		}
		r.rules = append(r.rules, rule{match: re, layout: s.Layout})
	}
	r.rules = append(r.rules, builtinRules()...)
	return r, nil
}

// Resolve returns the layout for a session id.
func (r *Resolver) Resolve(sessionID string) (Layout, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Layout{}, services.Wrap(services.ErrValidation, "layout", "resolve", "Session id is empty", nil)
	}
	for _, rl := range r.rules {
		if rl.match.MatchString(sessionID) {
			return r.layouts[rl.layout], nil
		}
	}
	return r.layouts[Current], nil
}

// Names lists the known layouts.
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.layouts))
	for name := range r.layouts {
		names = append(names, name)
	}
	return names
}
