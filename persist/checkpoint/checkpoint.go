// Package checkpoint adapts any anchor.Store into a persist.Checkpointer,
// the same way anchor.go itself tracks its own anchor map: a session's
// checkpoint is stored as a content-addressed blob, and a timestamped
// anchor named for the session points at whichever blob is current.
// Checkpoints that happen to produce identical data (an idle session
// checkpointed twice) are stored once.
package checkpoint

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/opencollab/corefs"
	"github.com/opencollab/corefs/anchor"
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/persist"
	"github.com/opencollab/corefs/store"
	"github.com/opencollab/corefs/wire"
)

var _ persist.Checkpointer = (*Store)(nil)

// Store is a persist.Checkpointer built on an anchor.Store, letting any
// of this module's existing blob-store backends (store/mem, store/file,
// store/pg, store/sqlite3, store/gcs) double as checkpoint storage
// instead of needing a dedicated schema of their own.
type Store struct {
	blobs anchor.Store
}

// New produces a new Store backed by blobs.
func New(blobs anchor.Store) *Store {
	return &Store{blobs: blobs}
}

func anchorName(session ids.SessionId) string {
	return "checkpoint/" + session.String()
}

// Latest implements persist.Checkpointer.
func (s *Store) Latest(ctx context.Context, session ids.SessionId) (wire.OpBatch, error) {
	ref, err := anchor.Get(ctx, s.blobs, anchorName(session), time.Now())
	if errors.Is(err, corefs.ErrNotFound) {
		return wire.OpBatch{}, persist.ErrNoCheckpoint
	}
	if err != nil {
		return wire.OpBatch{}, errors.Wrap(err, "resolving checkpoint anchor")
	}

	blob, err := s.blobs.Get(ctx, ref)
	if err != nil {
		return wire.OpBatch{}, errors.Wrap(err, "fetching checkpoint blob")
	}

	var batch wire.OpBatch
	return batch, errors.Wrap(batch.UnmarshalBinary(blob), "decoding checkpoint")
}

// Update implements persist.Checkpointer on top of anchor.Store's own
// UpdateAnchorMap, which already does the optimistic locking this needs:
// f runs against the checkpoint the anchor map resolves to right now,
// and the new blob is anchored only if no other Update has moved the
// anchor map in the meantime.
func (s *Store) Update(ctx context.Context, session ids.SessionId, f persist.UpdateFunc) error {
	name := anchorName(session)

	before, err := s.Latest(ctx, session)
	if err != nil && !errors.Is(err, persist.ErrNoCheckpoint) {
		return err
	}

	next, err := f(before)
	if err != nil {
		return err
	}

	data, err := next.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "encoding checkpoint")
	}

	ref, _, err := s.blobs.Put(ctx, corefs.Blob(data))
	if err != nil {
		return errors.Wrap(err, "storing checkpoint blob")
	}

	return errors.Wrap(anchor.Put(ctx, s.blobs, name, ref, time.Now()), "updating checkpoint anchor")
}

func init() {
	persist.Register("checkpoint", func(ctx context.Context, conf map[string]interface{}) (persist.Checkpointer, error) {
		nested, ok := conf["store"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "store" parameter`)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.New(`"store" parameter missing "type"`)
		}
		nestedStore, err := store.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		blobs, ok := nestedStore.(anchor.Store)
		if !ok {
			return nil, errors.Errorf("nested store of type %q is not an anchor.Store", nestedType)
		}
		return New(blobs), nil
	})
}
