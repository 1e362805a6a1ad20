package layout

import (
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"npprobes/internal/config"
	"npprobes/internal/services"
)

func TestResolveBuiltins(t *testing.T) {
	r, err := NewResolver(config.Default().Alignment)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		id   string
		want string
	}{
		{"DRpilot_626791_20220817", Pinned},
		{"1098765432_500001_20210412", Legacy},
		{"1098765432_500001_20191130_101500", Legacy},
		{"DRpilot_644866_20230207", Current},
		{"DRpilot_626791_20220818", Current},
	}
	for _, tc := range tests {
		got, err := r.Resolve(tc.id)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tc.id, err)
		}
		if got.Name != tc.want {
			t.Fatalf("Resolve(%q) = %s, want %s", tc.id, got.Name, tc.want)
		}
	}
	if _, err := r.Resolve(" "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConfiguredRulesTakePrecedence(t *testing.T) {
	cfg := config.Default().Alignment
	cfg.Layouts = []config.LayoutDefinition{{
		Name:                  "rig3",
		Base:                  BaseRecording,
		BarcodeStatesGlob:     "events/*{probe}-AP/TTL/states.npy",
		BarcodeTimestampsGlob: "events/*{probe}-AP/TTL/sample_numbers.npy",
		LFPTimestampsGlob:     "continuous/*{probe}-LFP/timestamps.npy",
	}}
	cfg.Sessions = []config.SessionLayout{
		{Match: `^DRpilot_626791_`, Layout: "rig3"},
		{Match: `_20210412$`, Layout: Current},
	}
	r, err := NewResolver(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Resolve("DRpilot_626791_20220817"); got.Name != "rig3" {
		t.Fatalf("configured rule ignored, got %s", got.Name)
	}
	if got, _ := r.Resolve("1098765432_500001_20210412"); got.Name != Current {
		t.Fatalf("configured rule ignored, got %s", got.Name)
	}
	names := r.Names()
	sort.Strings(names)
	if len(names) != 4 {
		t.Fatalf("Names = %v", names)
	}
}

func TestNewResolverRejectsUnknownLayout(t *testing.T) {
	cfg := config.Default().Alignment
	cfg.Sessions = []config.SessionLayout{{Match: ".*", Layout: "nope"}}
	if _, err := NewResolver(cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewResolverRejectsIncompleteLayout(t *testing.T) {
	cfg := config.Default().Alignment
	cfg.Layouts = []config.LayoutDefinition{{Name: Current, Base: BaseRecording}}
	if _, err := NewResolver(cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPatternAndBaseDir(t *testing.T) {
	l := builtins()[Legacy]
	got := l.Pattern(l.BarcodeStatesGlob, "/rec", "C")
	want := filepath.Join("/rec", "events/Neuropix-PXI-*.C-AP/TTL_1/channel_states.npy")
	if got != want {
		t.Fatalf("Pattern = %s, want %s", got, want)
	}
	if builtins()[Pinned].BaseDir("/session", "/rec") != "/session" {
		t.Fatal("pinned layout should glob from the session root")
	}
	if l.BaseDir("/session", "/rec") != "/rec" {
		t.Fatal("legacy layout should glob from the recording dir")
	}
}
