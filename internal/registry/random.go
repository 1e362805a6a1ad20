package registry

import (
	"context"
	"encoding/binary"

	"github.com/google/uuid"

	"npprobes/internal/config"
)

// RandomRegistry issues random 53-bit identifiers that survive a round trip
// through JSON numbers. Nothing is persisted.
type RandomRegistry struct {
	newUUID func() uuid.UUID
}

// NewRandom returns a random-identifier registry.
func NewRandom() *RandomRegistry {
	return &RandomRegistry{newUUID: uuid.New}
}

func (r *RandomRegistry) Acquire(context.Context) (Allocation, error) {
	return &randomAllocation{
		newUUID: r.newUUID,
		seen:    make(map[int64]struct{}),
		issued:  make(map[Kind][]int64),
	}, nil
}

func (r *RandomRegistry) Describe(context.Context) (State, error) {
	return State{Mode: config.RegistryRandom, Location: "(not persisted)", Last: map[Kind]int64{}}, nil
}

func (r *RandomRegistry) Close() error { return nil }

type randomAllocation struct {
	newUUID func() uuid.UUID
	seen    map[int64]struct{}
	issued  map[Kind][]int64
	closed  bool
}

func (a *randomAllocation) Next(kind Kind) (int64, error) {
	if a.closed {
		return 0, ErrClosed
	}
	for {
		u := a.newUUID()
		id := int64(binary.BigEndian.Uint64(u[:8]) >> 11)
		if _, dup := a.seen[id]; dup {
			continue
		}
		a.seen[id] = struct{}{}
		a.issued[kind] = append(a.issued[kind], id)
		return id, nil
	}
}

func (a *randomAllocation) Issued(kind Kind) []int64 {
	return append([]int64(nil), a.issued[kind]...)
}

func (a *randomAllocation) Commit(context.Context) error {
	if a.closed {
		return ErrClosed
	}
	a.closed = true
	return nil
}

func (a *randomAllocation) Release() { a.closed = true }
