// Package mem implements an in-memory persist.Checkpointer, used by
// tests and by hosts that don't need checkpoints to survive a restart.
package mem

import (
	"context"
	"sync"

	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/persist"
	"github.com/opencollab/corefs/wire"
)

var _ persist.Checkpointer = (*Store)(nil)

// Store is a memory-based persist.Checkpointer.
type Store struct {
	mu    sync.Mutex
	saved map[ids.SessionId]wire.OpBatch
}

// New produces a new, empty Store.
func New() *Store {
	return &Store{saved: make(map[ids.SessionId]wire.OpBatch)}
}

// Latest implements persist.Checkpointer.
func (s *Store) Latest(_ context.Context, session ids.SessionId) (wire.OpBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.saved[session]
	if !ok {
		return wire.OpBatch{}, persist.ErrNoCheckpoint
	}
	return batch, nil
}

// Update implements persist.Checkpointer. Like store/mem.Store's
// UpdateAnchorMap, f runs without s's lock held, since it typically
// calls Latest (or a Replica method) to build the new checkpoint; the
// lock is only taken to snapshot the starting value and to commit the
// result, which is where a conflicting concurrent Update is detected.
func (s *Store) Update(_ context.Context, session ids.SessionId, f persist.UpdateFunc) error {
	s.mu.Lock()
	before, ok := s.saved[session]
	s.mu.Unlock()
	if !ok {
		before = wire.OpBatch{}
	}

	next, err := f(before)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, stillOk := s.saved[session]
	if stillOk != ok || (ok && len(cur.Messages) != len(before.Messages)) {
		return persist.ErrUpdateConflict
	}
	s.saved[session] = next
	return nil
}

func init() {
	persist.Register("mem", func(context.Context, map[string]interface{}) (persist.Checkpointer, error) {
		return New(), nil
	})
}
