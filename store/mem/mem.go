// Package mem implements an in-memory blob store.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opencollab/corefs"
	"github.com/opencollab/corefs/anchor"
	"github.com/opencollab/corefs/store"
)

var (
	_ corefs.Store = (*Store)(nil)
	_ anchor.Store = (*Store)(nil)
)

// Store is a memory-based implementation of a blob store,
// and of anchor.Store.
type Store struct {
	mu      sync.Mutex
	blobs   map[corefs.Ref]corefs.Blob
	anchors map[corefs.Anchor][]corefs.TimeRef
	mapRef  corefs.Ref
}

// New produces a new, empty Store.
func New() *Store {
	return &Store{
		blobs:   make(map[corefs.Ref]corefs.Blob),
		anchors: make(map[corefs.Anchor][]corefs.TimeRef),
	}
}

// Get gets the blob with hash ref.
func (s *Store) Get(_ context.Context, ref corefs.Ref) (corefs.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.blobs[ref]; ok {
		return b, nil
	}
	return nil, corefs.ErrNotFound
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

// GetAnchor gets the latest ref for an anchor as of a given time, using the simple built-in anchor mechanism.
func (s *Store) GetAnchor(_ context.Context, a corefs.Anchor, at time.Time) (corefs.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trs := s.anchors[a]
	index := sort.Search(len(trs), func(n int) bool { return trs[n].T.After(at) })
	if index == 0 {
		return corefs.Zero, corefs.ErrNotFound
	}
	return trs[index-1].R, nil
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, b corefs.Blob) (corefs.Ref, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := b.Ref()
	if _, ok := s.blobs[ref]; ok {
		return ref, false, nil
	}
	s.blobs[ref] = b
	return ref, true, nil
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

// PutAnchor associates an anchor and a timestamp with a ref, using the simple built-in anchor mechanism.
func (s *Store) PutAnchor(_ context.Context, ref corefs.Ref, a corefs.Anchor, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	trs := append(s.anchors[a], corefs.TimeRef{T: at, R: ref})
	sort.Slice(trs, func(i, j int) bool { return trs[i].T.Before(trs[j].T) })
	s.anchors[a] = trs
	return nil
}

// ListRefs produces all blob refs in the store, in lexical order after start.
func (s *Store) ListRefs(ctx context.Context, start corefs.Ref, f func(corefs.Ref) error) error {
	s.mu.Lock()
	refs := make([]corefs.Ref, 0, len(s.blobs))
	for ref := range s.blobs {
		if start.IsZero() || start.Less(ref) {
			refs = append(refs, ref)
		}
	}
	s.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	for _, ref := range refs {
		if err := f(ref); err != nil {
			return err
		}
	}
	return nil
}

// ListAnchors lists all anchors in the store, in lexical order after start.
func (s *Store) ListAnchors(ctx context.Context, start corefs.Anchor, f func(corefs.Anchor) error) error {
	s.mu.Lock()
	var names []corefs.Anchor
	for name := range s.anchors {
		if name > start {
			names = append(names, name)
		}
	}
	s.mu.Unlock()

	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	for _, name := range names {
		if err := f(name); err != nil {
			return err
		}
	}
	return nil
}

// ListAnchorRefs lists all refs for a given anchor, in chronological order.
func (s *Store) ListAnchorRefs(ctx context.Context, a corefs.Anchor, f func(corefs.TimeRef) error) error {
	s.mu.Lock()
	trs := append([]corefs.TimeRef(nil), s.anchors[a]...)
	s.mu.Unlock()

	for _, tr := range trs {
		if err := f(tr); err != nil {
			return err
		}
	}
	return nil
}

// AnchorMapRef implements anchor.Getter.
func (s *Store) AnchorMapRef(context.Context) (corefs.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapRef.IsZero() {
		return corefs.Zero, anchor.ErrNoAnchorMap
	}
	return s.mapRef, nil
}

// UpdateAnchorMap implements anchor.Store.
// The callback runs without s's lock held, since it typically calls back
// into s to read blobs; the lock is only taken to snapshot the starting ref
// and to commit the result, which is where optimistic-lock conflicts are
// detected.
func (s *Store) UpdateAnchorMap(ctx context.Context, f anchor.UpdateFunc) error {
	s.mu.Lock()
	before := s.mapRef
	s.mu.Unlock()

	newRef, err := f(before)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapRef != before {
		return anchor.ErrUpdateConflict
	}
	s.mapRef = newRef
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (corefs.Store, error) {
		return New(), nil
	})
}
