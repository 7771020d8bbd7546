// Package content holds the per-file payload a tree.File node points at:
// a text CRDT document, a chunked binary blob, or a symlink target. A
// file's variant is fixed at creation (tree.ContentKind); content just
// keeps the live state for whichever variant the file was created with.
package content

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/opencollab/corefs/errs"
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/tree"
)

// ErrNotBound is returned when integrating a content op for a file whose
// CreateOp has not yet been integrated on this replica. The driver
// package backlogs such ops by the file's NodeGID and retries them once
// the file is created.
var ErrNotBound = errors.New("file content not bound")

// Store holds the content of every file node known to one replica,
// keyed by the file's NodeGID. It does not itself talk to a corefs.Store;
// Binary and Symlink do, since their payloads are LWW-replicated via
// anchors rather than kept fully in memory like a text.Document.
type Store struct {
	peer  ids.PeerId
	texts map[tree.NodeGID]*Text
	bins  map[tree.NodeGID]*Binary
	links map[tree.NodeGID]*Symlink
}

// New creates an empty content Store for peer, whose id is stamped onto
// every text.Document this Store creates.
func New(peer ids.PeerId) *Store {
	return &Store{
		peer:  peer,
		texts: make(map[tree.NodeGID]*Text),
		bins:  make(map[tree.NodeGID]*Binary),
		links: make(map[tree.NodeGID]*Symlink),
	}
}

// anchorName derives the stable anchor.Store key under which a file's
// binary or symlink payload is tracked.
func anchorName(node tree.NodeGID, suffix string) string {
	return fmt.Sprintf("content/%d/%d/%s", node.Creator, node.Sequence, suffix)
}

// Text returns the text document bound to node, or nil if node has no
// text content bound yet (it may still be backlogged; see BindText).
func (s *Store) Text(node tree.NodeGID) *Text { return s.texts[node] }

// Binary returns the binary content bound to node, or nil.
func (s *Store) Binary(node tree.NodeGID) *Binary { return s.bins[node] }

// Symlink returns the symlink content bound to node, or nil.
func (s *Store) Symlink(node tree.NodeGID) *Symlink { return s.links[node] }

// Forget drops the content state for node, once it (and any ancestor
// directory) has been tombstoned and is no longer of interest to this
// replica's live view. Tombstoned nodes remain addressable in tree, so
// Forget is an optional cleanup, not something IntegrateDelete calls
// automatically.
func (s *Store) Forget(node tree.NodeGID) {
	delete(s.texts, node)
	delete(s.bins, node)
	delete(s.links, node)
}

func variantMismatch(got, want tree.ContentKind) error {
	if got != want {
		return errs.VariantMismatch
	}
	return nil
}
