package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"npprobes/internal/config"
	"npprobes/internal/fileutil"
	"npprobes/internal/logging"
)

const lockRetryDelay = 100 * time.Millisecond

// document is the on-disk format of the shared identifier file.
type document struct {
	ProbeIDs   []int64 `json:"probe_ids"`
	ChannelIDs []int64 `json:"channel_ids"`
	UnitIDs    []int64 `json:"unit_ids"`
}

func (d *document) list(kind Kind) *[]int64 {
	switch kind {
	case Probe:
		return &d.ProbeIDs
	case Channel:
		return &d.ChannelIDs
	default:
		return &d.UnitIDs
	}
}

func (d *document) last() map[Kind]int64 {
	last := make(map[Kind]int64, len(Kinds))
	for _, k := range Kinds {
		if ids := *d.list(k); len(ids) > 0 {
			last[k] = ids[len(ids)-1]
		}
	}
	return last
}

// FileRegistry stores sequences in a JSON document next to a lock file.
type FileRegistry struct {
	path     string
	lockPath string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewFile returns a registry backed by the JSON document at path. Acquire
// waits up to timeout for the lock (zero tries once).
func NewFile(path string, timeout time.Duration, logger *slog.Logger) *FileRegistry {
	return &FileRegistry{
		path:     path,
		lockPath: path + ".lock",
		timeout:  timeout,
		logger:   logging.NewComponentLogger(logger, "registry"),
	}
}

func (r *FileRegistry) load() (*document, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &document{ProbeIDs: []int64{}, ChannelIDs: []int64{}, UnitIDs: []int64{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", r.path, err)
	}
	for _, k := range Kinds {
		if *doc.list(k) == nil {
			*doc.list(k) = []int64{}
		}
	}
	return &doc, nil
}

// Acquire takes the lock file and loads the current document.
func (r *FileRegistry) Acquire(ctx context.Context) (Allocation, error) {
	if err := os.MkdirAll(filepath.Dir(r.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}
	lock := flock.New(r.lockPath)

	var (
		locked bool
		err    error
	)
	if r.timeout > 0 {
		lockCtx, cancel := context.WithTimeout(ctx, r.timeout)
		locked, err = lock.TryLockContext(lockCtx, lockRetryDelay)
		cancel()
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	} else {
		locked, err = lock.TryLock()
	}
	if err != nil {
		return nil, fmt.Errorf("acquire registry lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s is held by another process", ErrBusy, r.lockPath)
	}

	doc, err := r.load()
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	r.logger.Debug("registry acquired", logging.String("path", r.path))
	return &fileAllocation{registry: r, lock: lock, doc: doc, seq: newSequences(doc.last())}, nil
}

// Describe reads the document without locking.
func (r *FileRegistry) Describe(context.Context) (State, error) {
	doc, err := r.load()
	if err != nil {
		return State{}, err
	}
	return State{Mode: config.RegistryFile, Location: r.path, Last: newSequences(doc.last()).last}, nil
}

func (r *FileRegistry) Close() error { return nil }

type fileAllocation struct {
	registry *FileRegistry
	lock     *flock.Flock
	doc      *document
	seq      *sequences
}

func (a *fileAllocation) Next(kind Kind) (int64, error) {
	id, err := a.seq.next(kind)
	if err != nil {
		return 0, err
	}
	list := a.doc.list(kind)
	*list = append(*list, id)
	return id, nil
}

func (a *fileAllocation) Issued(kind Kind) []int64 { return a.seq.issuedCopy(kind) }

func (a *fileAllocation) Commit(context.Context) error {
	if a.seq.closed {
		return ErrClosed
	}
	defer a.Release()
	if err := fileutil.WriteJSONAtomic(a.registry.path, a.doc); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	a.registry.logger.Info("registry committed",
		logging.String("path", a.registry.path),
		logging.Int("probes", len(a.seq.issued[Probe])),
		logging.Int("channels", len(a.seq.issued[Channel])),
		logging.Int("units", len(a.seq.issued[Unit])),
	)
	return nil
}

func (a *fileAllocation) Release() {
	if a.seq.closed {
		return
	}
	a.seq.closed = true
	if err := a.lock.Unlock(); err != nil {
		a.registry.logger.Warn("failed to release registry lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "registry_unlock_failed"),
			logging.String(logging.FieldErrorHint, "remove the stale lock file if no npprobes process is running"),
			logging.String(logging.FieldImpact, "later runs may block on the registry"),
		)
	}
}
