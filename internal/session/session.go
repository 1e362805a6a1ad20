package session

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"npprobes/internal/config"
	"npprobes/internal/services"
)

var idPattern = regexp.MustCompile(`(?:^|_)([A-Za-z]+|\d{10})_(\d{6})_(\d{8})(?:_(\d{6}))?$`)

// Session describes one recording session.
type Session struct {
	ID           string
	Mouse        string
	Date         time.Time
	Start        time.Time
	Root         string
	DatajointDir string
}

// ParseID extracts the mouse id and start time from a session id.
func ParseID(id string) (mouse string, start time.Time, err error) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return "", time.Time{}, fmt.Errorf("session id %q does not match <prefix>_<mouse>_<YYYYMMDD>", id)
	}
	mouse = m[2]
	layout, value := "20060102", m[3]
	if m[4] != "" {
		layout, value = "20060102150405", m[3]+m[4]
	}
	start, err = time.ParseInLocation(layout, value, time.Local)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session id %q: %w", id, err)
	}
	return mouse, start, nil
}

// FromDir builds a session from a session directory.
func FromDir(cfg *config.Config, dir string) (*Session, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, services.Wrap(services.ErrRequiredFile, "session", "stat", "Session directory unavailable", err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "session", "stat", fmt.Sprintf("%s is not a directory", abs), nil)
	}
	id := filepath.Base(abs)
	mouse, start, err := ParseID(id)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "session", "parse id", "Unrecognized session directory name", err)
	}
	s := &Session{
		ID:    id,
		Mouse: mouse,
		Date:  time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location()),
		Start: start,
		Root:  abs,
	}
	if cfg != nil && cfg.Paths.DatajointRoot != "" {
		s.DatajointDir = filepath.Join(cfg.Paths.DatajointRoot, id)
	}
	return s, nil
}

// Resolve accepts a session directory path or a session id. Ids are searched
// for in each configured session root; an exact directory name wins over a
// directory that merely contains the id.
func Resolve(cfg *config.Config, idOrPath string) (*Session, error) {
	idOrPath = strings.TrimSpace(idOrPath)
	if idOrPath == "" {
		return nil, services.Wrap(services.ErrValidation, "session", "resolve", "Session id is empty", nil)
	}
	if info, err := os.Stat(idOrPath); err == nil && info.IsDir() {
		return FromDir(cfg, idOrPath)
	}
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "session", "resolve", "No session roots configured", nil)
	}

	var partial string
	for _, root := range cfg.Paths.SessionRoots {
		exact := filepath.Join(root, idOrPath)
		if info, err := os.Stat(exact); err == nil && info.IsDir() {
			return FromDir(cfg, exact)
		}
		if partial != "" {
			continue
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() && strings.Contains(entry.Name(), idOrPath) {
				partial = filepath.Join(root, entry.Name())
				break
			}
		}
	}
	if partial != "" {
		return FromDir(cfg, partial)
	}
	return nil, services.Wrap(
		services.ErrRequiredFile,
		"session",
		"resolve",
		fmt.Sprintf("Session %q not found under %s", idOrPath, strings.Join(cfg.Paths.SessionRoots, ", ")),
		nil,
	)
}

// Day returns the 1-based position of the session among the sibling
// directories recorded from the same mouse, sorted by name.
func (s *Session) Day() (int, error) {
	entries, err := os.ReadDir(filepath.Dir(s.Root))
	if err != nil {
		return 0, fmt.Errorf("list sibling sessions: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if strings.Contains(entry.Name(), s.Mouse) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for i, name := range names {
		if strings.Contains(name, s.ID) {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("session %s not among sibling directories", s.ID)
}

// SyncFile returns the first *.h5 synchronization file in the session root,
// or "" when the session has not been synced yet.
func (s *Session) SyncFile() (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Root, "*.h5"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[0], nil
}
