// Package lru implements a persist.Checkpointer that caches the latest
// checkpoint for each session in memory, passing reads and writes
// through to a nested Checkpointer on a cache miss or an Update.
package lru

import (
	"context"
	"encoding/json"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/persist"
	"github.com/opencollab/corefs/wire"
)

var _ persist.Checkpointer = (*Store)(nil)

// Store is a least-recently-used cache of the latest checkpoint for up
// to size sessions, backed by a nested Checkpointer.
type Store struct {
	c *lru.Cache // ids.SessionId -> wire.OpBatch
	s persist.Checkpointer
}

// New produces a new Store backed by s and caching up to size sessions'
// latest checkpoints.
func New(s persist.Checkpointer, size int) (*Store, error) {
	c, err := lru.New(size)
	return &Store{s: s, c: c}, err
}

// Latest implements persist.Checkpointer.
func (s *Store) Latest(ctx context.Context, session ids.SessionId) (wire.OpBatch, error) {
	if cached, ok := s.c.Get(session); ok {
		return cached.(wire.OpBatch), nil
	}
	batch, err := s.s.Latest(ctx, session)
	if err != nil {
		return wire.OpBatch{}, err
	}
	s.c.Add(session, batch)
	return batch, nil
}

// Update implements persist.Checkpointer, delegating to the nested
// Checkpointer and refreshing (or, on failure, evicting) the cache
// entry so a subsequent Latest never serves a stale checkpoint.
func (s *Store) Update(ctx context.Context, session ids.SessionId, f persist.UpdateFunc) error {
	var saved wire.OpBatch
	wrapped := func(before wire.OpBatch) (wire.OpBatch, error) {
		next, err := f(before)
		saved = next
		return next, err
	}
	if err := s.s.Update(ctx, session, wrapped); err != nil {
		s.c.Remove(session)
		return err
	}
	s.c.Add(session, saved)
	return nil
}

func init() {
	persist.Register("lru", func(ctx context.Context, conf map[string]interface{}) (persist.Checkpointer, error) {
		sizeNum, ok := conf["size"].(json.Number)
		if !ok {
			return nil, errors.New(`missing "size" parameter`)
		}
		size, err := sizeNum.Int64()
		if err != nil {
			return nil, errors.Wrapf(err, "parsing size %d", size)
		}

		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.New(`"nested" parameter missing "type"`)
		}
		nestedCheckpointer, err := persist.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested checkpointer")
		}
		return New(nestedCheckpointer, int(size))
	})
}
