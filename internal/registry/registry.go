package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"npprobes/internal/config"
	"npprobes/internal/services"
)

// Kind names an identifier sequence.
type Kind string

const (
	Probe   Kind = "probe"
	Channel Kind = "channel"
	Unit    Kind = "unit"
)

// Kinds lists every sequence in registry order.
var Kinds = []Kind{Probe, Channel, Unit}

var (
	// ErrBusy reports that another process holds the registry.
	ErrBusy = errors.New("registry busy")
	// ErrConflict reports that the stored sequences moved between Acquire
	// and Commit.
	ErrConflict = errors.New("registry changed during allocation")
	// ErrClosed reports use of an allocation after Commit or Release.
	ErrClosed = errors.New("allocation closed")
)

// Registry opens identifier allocations.
type Registry interface {
	Acquire(ctx context.Context) (Allocation, error)
	Describe(ctx context.Context) (State, error)
	Close() error
}

// Allocation draws identifiers. It is not safe for concurrent use.
type Allocation interface {
	// Next appends and returns the next identifier of kind.
	Next(kind Kind) (int64, error)
	// Issued returns the identifiers drawn so far for kind, in order.
	Issued(kind Kind) []int64
	Commit(ctx context.Context) error
	// Release discards uncommitted identifiers. It is a no-op after Commit.
	Release()
}

// State summarizes a registry for display.
type State struct {
	Mode     string `json:"mode"`
	Location string `json:"location,omitempty"`
	// Last holds the last issued identifier per kind, -1 when none.
	Last map[Kind]int64 `json:"last"`
}

// Open builds the registry selected by cfg.Registry.Mode.
func Open(cfg *config.Config, logger *slog.Logger) (Registry, error) {
	timeout := time.Duration(cfg.Registry.LockTimeoutSeconds) * time.Second
	switch cfg.Registry.Mode {
	case config.RegistryFile:
		return NewFile(cfg.Registry.Path, timeout, logger), nil
	case config.RegistrySQLite:
		return OpenSQLite(context.Background(), cfg.Registry.SQLitePath, logger)
	case config.RegistryPostgres:
		return OpenPostgres(context.Background(), cfg.Registry.DSN, logger)
	case config.RegistryRandom:
		return NewRandom(), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "registry", "open",
			fmt.Sprintf("unsupported mode %q", cfg.Registry.Mode), nil)
	}
}

// sequences is the in-memory view shared by the persistent backends.
type sequences struct {
	last   map[Kind]int64
	issued map[Kind][]int64
	closed bool
}

func newSequences(last map[Kind]int64) *sequences {
	s := &sequences{last: make(map[Kind]int64, len(Kinds)), issued: make(map[Kind][]int64, len(Kinds))}
	for _, k := range Kinds {
		s.last[k] = -1
		if v, ok := last[k]; ok {
			s.last[k] = v
		}
	}
	return s
}

func (s *sequences) next(kind Kind) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if _, ok := s.last[kind]; !ok {
		return 0, fmt.Errorf("unknown identifier kind %q", kind)
	}
	id := s.last[kind] + 1
	s.last[kind] = id
	s.issued[kind] = append(s.issued[kind], id)
	return id, nil
}

func (s *sequences) issuedCopy(kind Kind) []int64 {
	return append([]int64(nil), s.issued[kind]...)
}
