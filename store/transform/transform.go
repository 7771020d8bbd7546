// Package transform implements a blob store that transforms blobs into and
// out of a nested store, e.g. for compressing checkpoint snapshots before
// they hit durable storage.
package transform

import (
	"compress/lzw"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/opencollab/corefs"
	"github.com/opencollab/corefs/anchor"
	"github.com/opencollab/corefs/schema"
	"github.com/opencollab/corefs/store"
)

var _ corefs.Store = (*Store)(nil)

// Store is a blob store wrapping a nested anchor.Store and a Transformer.
// Blobs are transformed according to the Transformer on their way in and
// out of the nested store; untransformed refs are mapped to transformed
// refs in a schema.Map anchored in the nested store, so Get can still be
// addressed by the caller's original ref.
type Store struct {
	s anchor.Store
	x Transformer
	a corefs.Anchor // anchor name at which the ref map lives in the nested store

	mu sync.Mutex  // protects m
	m  *schema.Map // maps untransformed-blob refs to transformed-blob refs
}

// Transformer tells how to transform a blob on its way into and out of a Store.
// Out should be the inverse of In.
type Transformer interface {
	// In transforms a blob on its way into the store.
	In(context.Context, []byte) ([]byte, error)

	// Out transforms a blob on its way out of the store.
	Out(context.Context, []byte) ([]byte, error)
}

// New creates a Store wrapping nested store s, transforming blobs with x,
// keeping its ref map anchored at a.
func New(ctx context.Context, s anchor.Store, x Transformer, a string) (*Store, error) {
	anc := corefs.Anchor(a)

	var m *schema.Map
	ref, err := s.GetAnchor(ctx, anc, time.Now())
	if errors.Is(err, corefs.ErrNotFound) {
		m = schema.NewMap()
	} else if err != nil {
		return nil, errors.Wrap(err, "getting ref map anchor")
	} else {
		m, err = schema.LoadMap(ctx, s, ref)
		if err != nil {
			return nil, errors.Wrap(err, "loading ref map")
		}
	}

	return &Store{s: s, x: x, a: anc, m: m}, nil
}

// Get looks up ref in the nested ref map, then fetches and untransforms
// the blob stored under the transformed ref.
func (s *Store) Get(ctx context.Context, ref corefs.Ref) (corefs.Blob, error) {
	cref, err := s.transformedRef(ctx, ref)
	if err != nil {
		return nil, errors.Wrap(err, "getting transformed-blob ref")
	}

	blob, err := s.s.Get(ctx, cref)
	if err != nil {
		return nil, errors.Wrap(err, "getting transformed blob")
	}
	if ref == cref {
		return blob, nil
	}

	out, err := s.x.Out(ctx, blob)
	if err != nil {
		return nil, errors.Wrap(err, "untransforming blob")
	}
	return corefs.Blob(out), nil
}

func (s *Store) transformedRef(ctx context.Context, ref corefs.Ref) (corefs.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	got, ok, err := s.m.Lookup(ctx, s.s, ref[:])
	if err != nil {
		return corefs.Ref{}, err
	}
	if !ok {
		return corefs.Ref{}, corefs.ErrNotFound
	}
	return corefs.RefFromBytes(got), nil
}

// GetMulti gets multiple blobs in one call.
func (s *Store) GetMulti(ctx context.Context, refs []corefs.Ref) (corefs.GetMultiResult, error) {
	result := make(corefs.GetMultiResult, len(refs))
	for _, ref := range refs {
		ref := ref
		result[ref] = func(ctx context.Context) (corefs.Blob, error) { return s.Get(ctx, ref) }
	}
	return result, nil
}

// Put transforms blob and stores the transformed bytes in the nested
// store, recording a ref-map entry from blob's untransformed ref to the
// transformed ref.
func (s *Store) Put(ctx context.Context, blob corefs.Blob) (corefs.Ref, bool, error) {
	ref := blob.Ref()

	cbytes, err := s.x.In(ctx, blob)
	if err != nil {
		return corefs.Ref{}, false, errors.Wrap(err, "transforming blob")
	}
	cblob := corefs.Blob(cbytes)
	cref := cblob.Ref()

	_, added, err := s.s.Put(ctx, cblob)
	if err != nil {
		return corefs.Ref{}, false, errors.Wrap(err, "storing transformed blob")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mref, outcome, err := s.m.Set(ctx, s.s, ref[:], cref[:])
	if err != nil {
		return corefs.Ref{}, false, errors.Wrap(err, "updating ref map")
	}
	if outcome == schema.ONone {
		return ref, added, nil
	}

	err = anchor.Put(ctx, s.s, string(s.a), mref, time.Now())
	return ref, added, errors.Wrap(err, "updating ref map anchor")
}

// PutMulti adds multiple blobs to the store in one call.
func (s *Store) PutMulti(ctx context.Context, blobs []corefs.Blob) (corefs.PutMultiResult, error) {
	result := make(corefs.PutMultiResult, len(blobs))
	for i, b := range blobs {
		i, b := i, b
		result[i] = func(ctx context.Context) (corefs.Ref, bool, error) { return s.Put(ctx, b) }
	}
	return result, nil
}

// ListRefs produces every untransformed ref known to the ref map, in
// lexical order.
func (s *Store) ListRefs(ctx context.Context, start corefs.Ref, f func(corefs.Ref) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Each(ctx, s.s, func(pair *schema.MapPair) error {
		ref := corefs.RefFromBytes(pair.Key)
		if !ref.Less(start) && ref != start {
			return f(ref)
		}
		return nil
	})
}

// GetAnchor, PutAnchor, ListAnchors, and ListAnchorRefs delegate to the
// nested store: anchors aren't transformed, only blob content is.
func (s *Store) GetAnchor(ctx context.Context, a corefs.Anchor, at time.Time) (corefs.Ref, error) {
	return s.s.GetAnchor(ctx, a, at)
}

func (s *Store) PutAnchor(ctx context.Context, ref corefs.Ref, a corefs.Anchor, at time.Time) error {
	return s.s.PutAnchor(ctx, ref, a, at)
}

func (s *Store) ListAnchors(ctx context.Context, start corefs.Anchor, f func(corefs.Anchor) error) error {
	return s.s.ListAnchors(ctx, start, f)
}

func (s *Store) ListAnchorRefs(ctx context.Context, a corefs.Anchor, f func(corefs.TimeRef) error) error {
	return s.s.ListAnchorRefs(ctx, a, f)
}

func init() {
	store.Register("transform", func(ctx context.Context, conf map[string]interface{}) (corefs.Store, error) {
		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.New(`"nested" parameter missing "type"`)
		}
		nestedStore, err := store.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		s, ok := nestedStore.(anchor.Store)
		if !ok {
			return nil, fmt.Errorf(`nested "%s" store is not an anchor.Store`, nestedType)
		}
		anchorName, ok := conf["anchor"].(string)
		if !ok {
			return nil, errors.New(`missing "anchor" parameter`)
		}
		transformer, ok := conf["transformer"].(string)
		if !ok {
			return nil, errors.New(`missing "transformer" parameter`)
		}
		switch transformer {
		case "lzw":
			order := lzw.LSB
			if o, ok := conf["order"].(int); ok && lzw.Order(o) == lzw.MSB {
				order = lzw.MSB
			}
			return New(ctx, s, LZW{Order: order}, anchorName)

		case "flate":
			level := -1
			if l, ok := conf["level"].(int); ok {
				level = l
			}
			return New(ctx, s, Flate{Level: level}, anchorName)

		default:
			return nil, fmt.Errorf(`unknown transformer "%s"`, transformer)
		}
	})
}
