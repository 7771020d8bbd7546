// Package driver turns the stream of incoming ops for one replica into an
// ordered stream of SyncActions: the concrete filesystem-level effects
// (create this node, delete that one, resolve this name conflict) a host
// applies to its local view.
//
// Ops can arrive before their dependencies (a Move before the Create of
// its destination parent, a text edit before its file's Create). Feed
// backlogs such ops by the NodeGID they're waiting on and replays them,
// in causal order, once that dependency's own SyncAction has been
// produced, the same drain-then-yield structure
// original_source/crates/collab-project/src/fs/sync.rs uses.
package driver

import (
	"context"

	"github.com/pkg/errors"

	"github.com/opencollab/corefs/anchor"
	"github.com/opencollab/corefs/annotate"
	"github.com/opencollab/corefs/backlog"
	"github.com/opencollab/corefs/content"
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/tree"
)

// ActionKind identifies the shape of a SyncAction.
type ActionKind uint8

const (
	// Create is a plain create with no name conflict.
	Create ActionKind = iota
	// CreateAndResolve is a create whose destination name collided with an
	// existing visible node; Conflict is non-nil.
	CreateAndResolve
	// Delete tombstones a node (and, implicitly, its descendants).
	Delete
	// Move relocates a node to a new parent, keeping its name.
	Move
	// MoveAndResolve is a Move whose destination collided; Conflict is
	// non-nil.
	MoveAndResolve
	// Rename is a Move within the same parent.
	Rename
	// RenameAndResolve is a Rename whose destination collided; Conflict is
	// non-nil.
	RenameAndResolve
)

// SyncAction is one concrete effect for the host to apply.
type SyncAction struct {
	Kind     ActionKind
	Node     tree.NodeGID
	Path     ids.AbsolutePath
	Conflict *tree.Conflict
	// Cause explains why Node disappeared, for Delete and MoveAndResolve
	// actions; it is meaningless (and left zero) for every other Kind, and
	// for a MoveAndResolve whose existing side hasn't since been removed.
	Cause tree.DeletionCause
}

// Driver integrates incoming ops for one replica's tree, content, and
// annotate state, and produces the resulting SyncActions in causal order.
type Driver struct {
	tree     *tree.Tree
	content  *content.Store
	annotate *annotate.Store

	pending []SyncAction
	waiting *backlog.Backlog[tree.NodeGID]
}

// New creates a Driver over the given per-replica state.
func New(t *tree.Tree, c *content.Store, a *annotate.Store) *Driver {
	return &Driver{
		tree:     t,
		content:  c,
		annotate: a,
		waiting:  backlog.New[tree.NodeGID]("driver"),
	}
}

// Next returns the next SyncAction produced since the last call to Next,
// or ok=false if none is currently available. It never blocks; a host
// polling for catch-up actions after a Feed call should loop on Next
// until it returns false.
func (d *Driver) Next(_ context.Context) (SyncAction, bool) {
	if len(d.pending) == 0 {
		return SyncAction{}, false
	}
	a := d.pending[0]
	d.pending = d.pending[1:]
	return a, true
}

func (d *Driver) emit(kind ActionKind, node tree.NodeGID, conflict *tree.Conflict) {
	path, _ := d.tree.Path(node) // best-effort; a node deleted before Next is drained keeps its last-known path
	var cause tree.DeletionCause
	if kind == Delete || kind == MoveAndResolve {
		cause, _ = d.tree.NodeDeletionCause(node)
	}
	d.pending = append(d.pending, SyncAction{Kind: kind, Node: node, Path: path, Conflict: conflict, Cause: cause})
}

// Feed integrates one incoming op. op must be one of the *Op types
// exported by tree, content, or annotate. Ops whose dependency hasn't
// arrived yet are held and replayed automatically once that dependency's
// SyncAction is produced. st is the anchor.Store backing this replica's
// binary and symlink content; it is unused for op kinds that don't touch
// anchored payloads.
func (d *Driver) Feed(ctx context.Context, st anchor.Store, peer ids.PeerId, op interface{}) error {
	switch o := op.(type) {
	case tree.CreateOp:
		return d.feedCreate(o)
	case tree.MoveOp:
		return d.feedMove(o)
	case tree.DeleteOp:
		return d.feedDelete(o)
	case content.TextInsertOp:
		return d.retryOnNotBound(o.Node, func() error { return d.content.IntegrateInsert(o) })
	case content.TextDeleteOp:
		return d.retryOnNotBound(o.Node, func() error { return d.content.IntegrateDelete(o) })
	case content.BinaryWriteOp:
		return d.retryOnNotBound(o.Node, func() error { return d.content.IntegrateBinaryWrite(ctx, st, o) })
	case content.SymlinkWriteOp:
		return d.retryOnNotBound(o.Node, func() error { return d.content.IntegrateSymlinkWrite(ctx, st, o) })
	case annotate.CursorOp:
		return d.retryOnNotBound(o.Node, func() error { return d.annotate.IntegrateCursor(peer, o) })
	case annotate.SelectionOp:
		return d.retryOnNotBound(o.Node, func() error { return d.annotate.IntegrateSelection(peer, o) })
	default:
		return errors.Errorf("driver: unrecognized op type %T", op)
	}
}

func (d *Driver) feedCreate(o tree.CreateOp) error {
	conflict, err := d.tree.IntegrateCreate(o)
	if errors.Is(err, tree.ErrMissingDependency) {
		d.waiting.Enqueue(o.Parent, func() { d.feedCreate(o) })
		return nil
	}
	if err != nil {
		return err
	}
	if err := d.bindContent(o); err != nil {
		return err
	}
	kind := Create
	if conflict != nil {
		kind = CreateAndResolve
	}
	d.emit(kind, o.Node, conflict)
	d.drain(o.Node)
	return nil
}

func (d *Driver) bindContent(o tree.CreateOp) error {
	if o.Node.Kind != tree.KindFile {
		return nil
	}
	switch o.Variant {
	case tree.ContentText:
		return d.content.BindText(o.Node, o.Variant)
	case tree.ContentBinary:
		return d.content.BindBinary(o.Node, o.Variant)
	case tree.ContentSymlink:
		return d.content.BindSymlink(o.Node, o.Variant)
	}
	return nil
}

func (d *Driver) feedMove(o tree.MoveOp) error {
	oldParent, hadParent := d.tree.ParentGID(o.Node)
	conflict, err := d.tree.IntegrateMove(o)
	if errors.Is(err, tree.ErrMissingDependency) {
		d.waiting.Enqueue(o.NewParent, func() { d.feedMove(o) })
		d.waiting.Enqueue(o.Node, func() { d.feedMove(o) })
		return nil
	}
	if err != nil {
		return err
	}
	rename := hadParent && oldParent == o.NewParent
	kind := Move
	switch {
	case rename && conflict != nil:
		kind = RenameAndResolve
	case rename:
		kind = Rename
	case conflict != nil:
		kind = MoveAndResolve
	}
	d.emit(kind, o.Node, conflict)
	d.drain(o.Node)
	return nil
}

func (d *Driver) feedDelete(o tree.DeleteOp) error {
	err := d.tree.IntegrateDelete(o)
	if errors.Is(err, tree.ErrMissingDependency) {
		d.waiting.Enqueue(o.Node, func() { d.feedDelete(o) })
		return nil
	}
	if err != nil {
		return err
	}
	d.emit(Delete, o.Node, nil)
	return nil
}

// retryOnNotBound runs f, and if it reports the target file's content
// isn't bound yet, backlogs a retry keyed by the file's NodeGID.
func (d *Driver) retryOnNotBound(node tree.NodeGID, f func() error) error {
	err := f()
	if errors.Is(err, content.ErrNotBound) {
		d.waiting.Enqueue(node, func() { d.retryOnNotBound(node, f) })
		return nil
	}
	return err
}

// drain replays every op that was waiting on node, now that node exists.
func (d *Driver) drain(node tree.NodeGID) {
	for _, cont := range d.waiting.Take(node) {
		cont()
	}
}

// Conflicts returns every open conflict in this replica's tree, useful
// when a reconnecting peer needs to re-surface unresolved conflicts that
// predate its disconnection.
func (d *Driver) Conflicts() []*tree.Conflict {
	return d.tree.Conflicts()
}
