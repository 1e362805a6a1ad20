package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"npprobes/internal/config"
	"npprobes/internal/services"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		id    string
		mouse string
		start time.Time
		ok    bool
	}{
		{"DRpilot_626791_20220817", "626791", time.Date(2022, 8, 17, 0, 0, 0, 0, time.Local), true},
		{"1234567890_626791_20220817", "626791", time.Date(2022, 8, 17, 0, 0, 0, 0, time.Local), true},
		{"DRpilot_644866_20230207_131522", "644866", time.Date(2023, 2, 7, 13, 15, 22, 0, time.Local), true},
		{"notasession", "", time.Time{}, false},
	}
	for _, tc := range tests {
		mouse, start, err := ParseID(tc.id)
		if (err == nil) != tc.ok {
			t.Fatalf("ParseID(%q) err = %v", tc.id, err)
		}
		if !tc.ok {
			continue
		}
		if mouse != tc.mouse || !start.Equal(tc.start) {
			t.Fatalf("ParseID(%q) = %s %v", tc.id, mouse, start)
		}
	}
}

func newRoots(t *testing.T, names ...string) (*config.Config, string) {
	t.Helper()
	root := t.TempDir()
	for _, name := range names {
		if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	cfg := config.Default()
	cfg.Paths.SessionRoots = []string{root}
	cfg.Paths.DatajointRoot = filepath.Join(root, "datajoint")
	return &cfg, root
}

func TestResolveByIDAndPath(t *testing.T) {
	cfg, root := newRoots(t, "DRpilot_626791_20220817", "DRpilot_626791_20220818")

	s, err := Resolve(cfg, "DRpilot_626791_20220817")
	if err != nil {
		t.Fatalf("Resolve id: %v", err)
	}
	if s.Root != filepath.Join(root, "DRpilot_626791_20220817") || s.Mouse != "626791" {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.DatajointDir != filepath.Join(root, "datajoint", "DRpilot_626791_20220817") {
		t.Fatalf("DatajointDir = %s", s.DatajointDir)
	}

	byPath, err := Resolve(cfg, filepath.Join(root, "DRpilot_626791_20220818"))
	if err != nil {
		t.Fatalf("Resolve path: %v", err)
	}
	if byPath.ID != "DRpilot_626791_20220818" {
		t.Fatalf("ID = %s", byPath.ID)
	}

	partial, err := Resolve(cfg, "626791_20220818")
	if err != nil || partial.ID != "DRpilot_626791_20220818" {
		t.Fatalf("partial resolve = %+v, %v", partial, err)
	}
}

func TestResolveMissing(t *testing.T) {
	cfg, _ := newRoots(t)
	_, err := Resolve(cfg, "DRpilot_000000_20200101")
	if !errors.Is(err, services.ErrRequiredFile) {
		t.Fatalf("expected ErrRequiredFile, got %v", err)
	}
}

func TestDay(t *testing.T) {
	cfg, root := newRoots(t,
		"DRpilot_626791_20220815",
		"DRpilot_626791_20220817",
		"DRpilot_111111_20220816",
		"DRpilot_626791_20220819",
	)
	s, err := FromDir(cfg, filepath.Join(root, "DRpilot_626791_20220817"))
	if err != nil {
		t.Fatal(err)
	}
	day, err := s.Day()
	if err != nil {
		t.Fatal(err)
	}
	if day != 2 {
		t.Fatalf("Day = %d, want 2", day)
	}
}

func TestSyncFile(t *testing.T) {
	cfg, root := newRoots(t, "DRpilot_626791_20220817")
	s, err := FromDir(cfg, filepath.Join(root, "DRpilot_626791_20220817"))
	if err != nil {
		t.Fatal(err)
	}
	if sync, err := s.SyncFile(); err != nil || sync != "" {
		t.Fatalf("SyncFile before sync = %q, %v", sync, err)
	}
	want := filepath.Join(s.Root, "20220817T120000.h5")
	if err := os.WriteFile(want, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if sync, err := s.SyncFile(); err != nil || sync != want {
		t.Fatalf("SyncFile = %q, %v", sync, err)
	}
}
