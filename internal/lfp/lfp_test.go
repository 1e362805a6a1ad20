package lfp_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"npprobes/internal/fileutil"
	"npprobes/internal/lfp"
	"npprobes/internal/logging"
	"npprobes/internal/probepaths"
	"npprobes/internal/services"
	"npprobes/internal/session"
	"npprobes/internal/testsupport"

	"github.com/google/go-cmp/cmp"
)

func TestBuildAndWrite(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	root := testsupport.NewSessionDir(t, cfg, "DRpilot_644866_20230207")
	testsupport.WriteSync(t, root)
	testsupport.AddProbe(t, root, testsupport.ProbeFixture{Letter: "A"})
	testsupport.AddProbe(t, root, testsupport.ProbeFixture{Letter: "B"})
	if err := os.Remove(filepath.Join(root, testsupport.RecordingRel, "continuous/Neuropix-PXI-100.ProbeB-LFP/continuous.dat")); err != nil {
		t.Fatal(err)
	}

	s, _ := session.FromDir(cfg, root)
	probes, _ := probepaths.Discover(root)
	req, skipped, err := lfp.NewBuilder(cfg, logging.NewNop()).Build(context.Background(), s, probes)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !errors.Is(skipped["B"], services.ErrRequiredFile) {
		t.Fatalf("expected probe B skipped, got %v", skipped)
	}

	out := cfg.OutputDir(root)
	want := &lfp.Request{
		LFPSubsampling: lfp.Subsampling{TemporalSubsamplingFactor: 2},
		Probes: []lfp.ProbeRequest{{
			Name:                   "probeA",
			LFPSamplingRate:        2500,
			LFPInputFilePath:       filepath.Join(root, testsupport.RecordingRel, "continuous/Neuropix-PXI-100.ProbeA-LFP/continuous.dat"),
			LFPTimestampsInputPath: filepath.Join(out, "lfp_times_A_aligned.npy"),
			LFPDataPath:            filepath.Join(out, "probeA_lfp.dat"),
			LFPTimestampsPath:      filepath.Join(out, "probeA_lfp_timestamps.npy"),
			LFPChannelInfoPath:     filepath.Join(out, "probeA_lfp_channels.npy"),
			SurfaceChannel:         384,
			ReferenceChannels:      []int{191},
		}},
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}

	path, err := lfp.Write(req, out)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	sub, _ := decoded["lfp_subsampling"].(map[string]any)
	if sub["temporal_subsampling_factor"] != float64(2) {
		t.Fatalf("unexpected document %s", data)
	}
}

func TestBuildWithoutSyncWritesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	root := testsupport.NewSessionDir(t, cfg, "DRpilot_644866_20230207")
	testsupport.AddProbe(t, root, testsupport.ProbeFixture{Letter: "A"})
	s, _ := session.FromDir(cfg, root)
	probes, _ := probepaths.Discover(root)

	req, _, err := lfp.NewBuilder(cfg, nil).Build(context.Background(), s, probes)
	if req != nil {
		t.Fatalf("expected nil request, got %+v", req)
	}
	if services.Classify(err) != services.OutcomeNotReady {
		t.Fatalf("expected not-ready, got %v", err)
	}
	if fileutil.Exists(filepath.Join(cfg.OutputDir(root), lfp.RequestFile)) {
		t.Fatal("request file written for an unsynced session")
	}
	if _, err := lfp.Write(nil, cfg.OutputDir(root)); err == nil {
		t.Fatal("expected error writing nil request")
	}
}
