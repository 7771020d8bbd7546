// Package tree implements the replicated filesystem tree: directories and
// files, organized by Create/Move/Delete operations that converge
// identically on every replica that has integrated the same ops.
//
// A directory's children are a name-keyed set (I2: names are unique among
// visible children) plus a per-parent insertion-position tie-break that
// gives every replica the same iteration order, the same idea as this
// module's text package uses to order concurrently inserted bytes.
package tree

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/opencollab/corefs/errs"
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/text"
)

// ErrMissingDependency is returned by the Integrate* methods when an op's
// target or destination parent has not yet been observed by this replica.
// It is not a failure of the op: the caller (normally the driver package)
// is expected to hold the op in the backlog and retry it once the
// dependency arrives.
var ErrMissingDependency = errors.New("missing dependency")

// NodeKind distinguishes directories from files in a NodeGID.
type NodeKind uint8

const (
	// KindDirectory marks a NodeGID as naming a directory.
	KindDirectory NodeKind = iota
	// KindFile marks a NodeGID as naming a file.
	KindFile
)

// NodeGID is a cluster-wide identifier for either a directory or a file.
type NodeGID struct {
	Kind     NodeKind
	Creator  ids.PeerId
	Sequence uint64
}

// String renders g as a stable, human-readable key, used to namespace
// per-node resources such as content anchors and backlogs.
func (g NodeGID) String() string {
	kind := "dir"
	if g.Kind == KindFile {
		kind = "file"
	}
	return fmt.Sprintf("%s:%d:%d", kind, g.Creator, g.Sequence)
}

// DirMark and FileMark distinguish directory and file LocalIds at the type
// level; they carry no data.
type (
	DirMark  struct{}
	FileMark struct{}
)

// DirID and FileID are this replica's dense local indices for directories
// and files.
type (
	DirID  = ids.LocalId[DirMark]
	FileID = ids.LocalId[FileMark]
)

// ContentKind names the content variant a file was created with. A file's
// variant never changes after creation.
type ContentKind uint8

const (
	// ContentText marks a file whose contents are a text CRDT document.
	ContentText ContentKind = iota
	// ContentBinary marks a file whose contents are an opaque LWW byte stream.
	ContentBinary
	// ContentSymlink marks a file whose contents are an LWW target path.
	ContentSymlink
)

// DeletionCause records why a tombstoned node was deleted.
type DeletionCause uint8

const (
	// UserDeleted means an explicit Delete op targeted this node.
	UserDeleted DeletionCause = iota
	// AncestorDeleted means deletion propagated from a deleted ancestor.
	AncestorDeleted
	// ConflictLoser means the node was removed while resolving a name conflict.
	ConflictLoser
)

type childEntry struct {
	name      ids.NodeName
	isDir     bool
	dir       DirID
	file      FileID
	position  text.ID
	tombstone bool
}

// Directory is one directory node.
type Directory struct {
	global        NodeGID
	local         DirID
	creator       ids.PeerId
	parent        DirID
	hasParent     bool
	children      []*childEntry
	tombstone     bool
	deletionCause DeletionCause
	movePosition  text.ID
	gen           uint64
}

// Global returns the directory's cluster-wide identifier.
func (d *Directory) Global() NodeGID { return d.global }

// Tombstoned reports whether the directory has been deleted.
func (d *Directory) Tombstoned() bool { return d.tombstone }

// DeletionCause reports why the directory was tombstoned. It is only
// meaningful when Tombstoned reports true.
func (d *Directory) DeletionCause() DeletionCause { return d.deletionCause }

// File is one file node. Its content payload lives in the content package,
// keyed by the file's NodeGID; tree only tracks structural state and the
// content variant tag.
type File struct {
	global        NodeGID
	local         FileID
	creator       ids.PeerId
	parent        DirID
	variant       ContentKind
	tombstone     bool
	deletionCause DeletionCause
	movePosition  text.ID
	gen           uint64
}

// Global returns the file's cluster-wide identifier.
func (f *File) Global() NodeGID { return f.global }

// Variant returns the file's content kind, fixed at creation.
func (f *File) Variant() ContentKind { return f.variant }

// Tombstoned reports whether the file has been deleted.
func (f *File) Tombstoned() bool { return f.tombstone }

// DeletionCause reports why the file was tombstoned. It is only meaningful
// when Tombstoned reports true.
func (f *File) DeletionCause() DeletionCause { return f.deletionCause }

// Tree is one replica's view of the replicated filesystem.
type Tree struct {
	peer       ids.PeerId
	clock      uint64
	root       DirID
	dirs       []*Directory
	files      []*File
	dirByGID   map[NodeGID]DirID
	fileByGID  map[NodeGID]FileID
	conflicts  map[uint64]*Conflict
	nextConfID uint64
}

// rootPeer is the fixed, reserved creator identity every replica's root
// directory is stamped with, regardless of which peer calls New. Every
// replica of the same session must start from the identical root NodeGID
// for a Move or Create targeting the root to integrate on another peer;
// tying the root to whichever peer happened to call New would give each
// replica a different, unreconcilable root.
const rootPeer ids.PeerId = 0

// New creates a Tree for peer with a freshly created, empty root directory.
func New(peer ids.PeerId) *Tree {
	t := &Tree{
		peer:      peer,
		dirByGID:  make(map[NodeGID]DirID),
		fileByGID: make(map[NodeGID]FileID),
		conflicts: make(map[uint64]*Conflict),
	}
	root := &Directory{global: NodeGID{Kind: KindDirectory, Creator: rootPeer, Sequence: 0}}
	t.dirs = append(t.dirs, nil) // LocalId 0 is reserved/invalid
	t.dirs = append(t.dirs, root)
	root.local = DirID(1)
	t.root = root.local
	t.dirByGID[root.global] = root.local
	return t
}

// Root returns the local id of the project root directory.
func (t *Tree) Root() DirID { return t.root }

func (t *Tree) dir(id DirID) *Directory {
	if int(id) <= 0 || int(id) >= len(t.dirs) {
		return nil
	}
	return t.dirs[id]
}

func (t *Tree) file(id FileID) *File {
	if int(id) <= 0 || int(id) >= len(t.files) {
		return nil
	}
	return t.files[id]
}

func (t *Tree) nextClock() uint64 {
	t.clock++
	return t.clock
}

// --- name-collision checking ---

func visibleChild(d *Directory, name ids.NodeName) *childEntry {
	for _, c := range d.children {
		if !c.tombstone && c.name == name {
			return c
		}
	}
	return nil
}

// SortedChildren returns d's visible children in the deterministic,
// replica-independent order produced by their insertion-position ids.
func (t *Tree) SortedChildren(d *Directory) []ids.NodeName {
	var visible []*childEntry
	for _, c := range d.children {
		if !c.tombstone {
			visible = append(visible, c)
		}
	}
	sort.Slice(visible, func(i, j int) bool { return visible[j].position.Greater(visible[i].position) })
	names := make([]ids.NodeName, len(visible))
	for i, c := range visible {
		names[i] = c.name
	}
	return names
}

// Lookup finds the visible child of d named name.
func (t *Tree) Lookup(d *Directory, name ids.NodeName) (NodeGID, bool) {
	c := visibleChild(d, name)
	if c == nil {
		return NodeGID{}, false
	}
	if c.isDir {
		return t.dirs[c.dir].global, true
	}
	return t.files[c.file].global, true
}

// Path reconstructs node's absolute path by walking parent links.
func (t *Tree) Path(node NodeGID) (ids.AbsolutePath, error) {
	var names []ids.NodeName
	switch node.Kind {
	case KindDirectory:
		d := t.dirByGlobal(node)
		if d == nil {
			return nil, errors.Wrap(errs.NotFound, "directory")
		}
		for d.local != t.root {
			p := t.dir(d.parent)
			if p == nil {
				return nil, errors.Wrap(errs.NotFound, "parent")
			}
			c := childOf(p, d.local)
			if c == nil {
				return nil, errors.Wrap(errs.NotFound, "child entry")
			}
			names = append([]ids.NodeName{c.name}, names...)
			d = p
		}
	case KindFile:
		f := t.fileByGlobal(node)
		if f == nil {
			return nil, errors.Wrap(errs.NotFound, "file")
		}
		p := t.dir(f.parent)
		if p == nil {
			return nil, errors.Wrap(errs.NotFound, "parent")
		}
		c := childOfFile(p, f.local)
		if c == nil {
			return nil, errors.Wrap(errs.NotFound, "child entry")
		}
		names = append(names, c.name)
		for p.local != t.root {
			gp := t.dir(p.parent)
			if gp == nil {
				return nil, errors.Wrap(errs.NotFound, "parent")
			}
			c := childOf(gp, p.local)
			if c == nil {
				return nil, errors.Wrap(errs.NotFound, "child entry")
			}
			names = append([]ids.NodeName{c.name}, names...)
			p = gp
		}
	}
	return ids.AbsolutePath(names), nil
}

func childOf(d *Directory, id DirID) *childEntry {
	for _, c := range d.children {
		if c.isDir && c.dir == id {
			return c
		}
	}
	return nil
}

func childOfFile(d *Directory, id FileID) *childEntry {
	for _, c := range d.children {
		if !c.isDir && c.file == id {
			return c
		}
	}
	return nil
}

// ParentGID returns the NodeGID of node's current parent directory. It
// returns false for the root directory, which has no parent.
func (t *Tree) ParentGID(node NodeGID) (NodeGID, bool) {
	switch node.Kind {
	case KindDirectory:
		d := t.dirByGlobal(node)
		if d == nil || d.local == t.root {
			return NodeGID{}, false
		}
		return t.dir(d.parent).global, true
	case KindFile:
		f := t.fileByGlobal(node)
		if f == nil {
			return NodeGID{}, false
		}
		return t.dir(f.parent).global, true
	}
	return NodeGID{}, false
}

// NodeDeletionCause reports why node was tombstoned. The second result is
// false if node is unknown or still visible, in which case the cause is
// meaningless.
func (t *Tree) NodeDeletionCause(node NodeGID) (DeletionCause, bool) {
	switch node.Kind {
	case KindDirectory:
		d := t.dirByGlobal(node)
		if d == nil || !d.tombstone {
			return 0, false
		}
		return d.deletionCause, true
	case KindFile:
		f := t.fileByGlobal(node)
		if f == nil || !f.tombstone {
			return 0, false
		}
		return f.deletionCause, true
	}
	return 0, false
}

func (t *Tree) dirByGlobal(g NodeGID) *Directory {
	id, ok := t.dirByGID[g]
	if !ok {
		return nil
	}
	return t.dir(id)
}

func (t *Tree) fileByGlobal(g NodeGID) *File {
	id, ok := t.fileByGID[g]
	if !ok {
		return nil
	}
	return t.file(id)
}

// isDescendant reports whether candidate is node or a descendant of node.
func (t *Tree) isDescendant(ancestor, candidate DirID) bool {
	for {
		if candidate == ancestor {
			return true
		}
		d := t.dir(candidate)
		if d == nil || candidate == t.root {
			return false
		}
		candidate = d.parent
	}
}
