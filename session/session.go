// Package session ties one peer's tree, content, annotate, and driver
// state together into a single Replica: the unit a host (an editor, a
// daemon, a test harness) creates one of per collaborative session and
// drives with local edits on one side and incoming wire.OpBatches on the
// other, subscribing to events.Event for the result of either.
//
// A Replica serializes all access behind one mutex, held for the
// duration of a single local mutation or a single incoming batch's
// integration. WriteBinary, ReadBinary and WriteSymlink hold that mutex
// across their calls into the given anchor.Store, so a slow store blocks
// every other method of the Replica until it returns.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/opencollab/corefs/anchor"
	"github.com/opencollab/corefs/annotate"
	"github.com/opencollab/corefs/content"
	"github.com/opencollab/corefs/driver"
	"github.com/opencollab/corefs/errs"
	"github.com/opencollab/corefs/events"
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/tree"
	"github.com/opencollab/corefs/wire"
)

// Replica is one peer's live view of a collaborative session: its
// filesystem tree, the content bound to each file, cursors and
// selections, and the driver that turns incoming ops into ordered
// effects.
type Replica struct {
	peer    ids.PeerId
	session ids.SessionId
	store   anchor.Store

	mu       sync.Mutex
	tree     *tree.Tree
	content  *content.Store
	annotate *annotate.Store
	driver   *driver.Driver
	fanout   *events.Fanout

	outbox   []wire.Message
	lastSeen map[ids.PeerId]uint64
	log      []wire.Message

	binaryVersions  map[tree.NodeGID]uint64
	symlinkVersions map[tree.NodeGID]uint64
}

// New creates an empty Replica for peer, participating in session, with
// st backing any binary or symlink content this replica writes or reads.
func New(peer ids.PeerId, sessionID ids.SessionId, st anchor.Store) *Replica {
	c := content.New(peer)
	a := annotate.New(c)
	t := tree.New(peer)
	r := &Replica{
		peer:            peer,
		session:         sessionID,
		store:           st,
		tree:            t,
		content:         c,
		annotate:        a,
		driver:          driver.New(t, c, a),
		fanout:          events.NewFanout(),
		lastSeen:        make(map[ids.PeerId]uint64),
		binaryVersions:  make(map[tree.NodeGID]uint64),
		symlinkVersions: make(map[tree.NodeGID]uint64),
	}
	return r
}

func (r *Replica) lock()   { r.mu.Lock() }
func (r *Replica) unlock() { r.mu.Unlock() }

// Peer returns this replica's own peer id.
func (r *Replica) Peer() ids.PeerId { return r.peer }

// Session returns the session this replica belongs to.
func (r *Replica) Session() ids.SessionId { return r.session }

// Root returns the NodeGID of the project root directory.
func (r *Replica) Root() tree.NodeGID {
	r.lock()
	defer r.unlock()
	return r.tree.Dir(r.tree.Root()).Global()
}

// Subscribe registers a new event stream for this replica's activity.
func (r *Replica) Subscribe() *events.Stream { return r.fanout.Subscribe() }

// Unsubscribe removes and closes a stream previously returned by Subscribe.
func (r *Replica) Unsubscribe(s *events.Stream) { r.fanout.Unsubscribe(s) }

func clockNow() *timestamppb.Timestamp { return timestamppb.New(time.Now()) }

func (r *Replica) enqueue(msg wire.Message) {
	r.outbox = append(r.outbox, msg)
	r.log = append(r.log, msg)
	r.lastSeen[r.peer]++
}

// DrainOutbox returns every wire.Message generated by local mutations
// since the last call to DrainOutbox, and clears the outbox. A host
// calls this after a batch of local edits to get the messages it should
// broadcast to the session's other peers.
func (r *Replica) DrainOutbox() wire.OpBatch {
	r.lock()
	defer r.unlock()
	batch := wire.OpBatch{From: r.peer, Messages: r.outbox}
	r.outbox = nil
	return batch
}

// Known returns, for every peer this replica has sent or integrated ops
// from, the count of ops seen so far. It is the Known field of a
// wire.SyncRequest this replica would send to catch up another peer, or
// that another peer would send this replica.
func (r *Replica) Known() map[ids.PeerId]uint64 {
	r.lock()
	defer r.unlock()
	out := make(map[ids.PeerId]uint64, len(r.lastSeen))
	for k, v := range r.lastSeen {
		out[k] = v
	}
	return out
}

// SyncRequest builds the request this replica would send to ask a peer
// for the ops it's missing.
func (r *Replica) SyncRequest() wire.SyncRequest {
	return wire.SyncRequest{From: r.peer, Session: r.session, Known: r.Known()}
}

// --- local mutations ---

func (r *Replica) publish(kind events.Kind, node tree.NodeGID) {
	path, _ := r.tree.Path(node)
	var cause tree.DeletionCause
	if kind == events.BufferDeleted {
		cause, _ = r.tree.NodeDeletionCause(node)
	}
	r.fanout.Publish(events.Event{Kind: kind, Node: node, Path: path, Cause: cause})
}

// CreateDirectory creates a new subdirectory of parent named name.
func (r *Replica) CreateDirectory(parent tree.NodeGID, name ids.NodeName) (tree.NodeGID, error) {
	r.lock()
	defer r.unlock()
	pd, ok := r.tree.DirByGlobal(parent)
	if !ok {
		return tree.NodeGID{}, errs.NotFound
	}
	_, op, err := r.tree.CreateDirectory(pd, name)
	if err != nil {
		return tree.NodeGID{}, err
	}
	msg, err := wire.FromCreateOp(op, r.peer, clockNow())
	if err != nil {
		return tree.NodeGID{}, errors.Wrap(err, "encoding directory create")
	}
	r.enqueue(msg)
	r.publish(events.BufferCreated, op.Node)
	return op.Node, nil
}

func (r *Replica) createFile(parent tree.NodeGID, name ids.NodeName, variant tree.ContentKind) (tree.NodeGID, error) {
	pd, ok := r.tree.DirByGlobal(parent)
	if !ok {
		return tree.NodeGID{}, errs.NotFound
	}
	_, op, err := r.tree.CreateFile(pd, name, variant)
	if err != nil {
		return tree.NodeGID{}, err
	}
	if err := r.bindContent(op); err != nil {
		return tree.NodeGID{}, err
	}
	msg, err := wire.FromCreateOp(op, r.peer, clockNow())
	if err != nil {
		return tree.NodeGID{}, errors.Wrap(err, "encoding file create")
	}
	r.enqueue(msg)
	r.publish(events.BufferCreated, op.Node)
	return op.Node, nil
}

func (r *Replica) bindContent(op tree.CreateOp) error {
	switch op.Variant {
	case tree.ContentText:
		return r.content.BindText(op.Node, op.Variant)
	case tree.ContentBinary:
		return r.content.BindBinary(op.Node, op.Variant)
	case tree.ContentSymlink:
		return r.content.BindSymlink(op.Node, op.Variant)
	}
	return nil
}

// CreateTextFile creates a new text file in parent named name.
func (r *Replica) CreateTextFile(parent tree.NodeGID, name ids.NodeName) (tree.NodeGID, error) {
	r.lock()
	defer r.unlock()
	return r.createFile(parent, name, tree.ContentText)
}

// CreateBinaryFile creates a new binary file in parent named name, with
// no content until the first WriteBinary.
func (r *Replica) CreateBinaryFile(parent tree.NodeGID, name ids.NodeName) (tree.NodeGID, error) {
	r.lock()
	defer r.unlock()
	return r.createFile(parent, name, tree.ContentBinary)
}

// CreateSymlinkFile creates a new symlink file in parent named name, with
// no target until the first WriteSymlink.
func (r *Replica) CreateSymlinkFile(parent tree.NodeGID, name ids.NodeName) (tree.NodeGID, error) {
	r.lock()
	defer r.unlock()
	return r.createFile(parent, name, tree.ContentSymlink)
}

// Move relocates node to be a child of newParent named newName.
func (r *Replica) Move(node, newParent tree.NodeGID, newName ids.NodeName) error {
	r.lock()
	defer r.unlock()
	npd, ok := r.tree.DirByGlobal(newParent)
	if !ok {
		return errs.NotFound
	}
	curParent, hadParent := r.tree.ParentGID(node)
	op, err := r.tree.Move(node, npd, newName)
	if err != nil {
		return err
	}
	rename := hadParent && curParent == newParent
	msg, err := wire.FromMoveOp(op, rename, r.peer, clockNow())
	if err != nil {
		return errors.Wrap(err, "encoding move")
	}
	r.enqueue(msg)
	r.publish(events.BufferMoved, node)
	return nil
}

// Delete tombstones node and, recursively, its descendants.
func (r *Replica) Delete(node tree.NodeGID) error {
	r.lock()
	defer r.unlock()
	op, err := r.tree.Delete(node)
	if err != nil {
		return err
	}
	msg, err := wire.FromDeleteOp(op, r.peer, clockNow())
	if err != nil {
		return errors.Wrap(err, "encoding delete")
	}
	r.enqueue(msg)
	r.content.Forget(node)
	r.annotate.ForgetFile(node)
	r.publish(events.BufferDeleted, node)
	return nil
}

// InsertText inserts data into node's text document at the given
// visible-byte offset.
func (r *Replica) InsertText(node tree.NodeGID, offset int, data []byte) error {
	r.lock()
	defer r.unlock()
	op, err := r.content.Insert(node, offset, data)
	if err != nil {
		return err
	}
	msg, err := wire.FromTextInsertOp(op)
	if err != nil {
		return errors.Wrap(err, "encoding text insert")
	}
	r.enqueue(msg)
	r.publish(events.BufferEdited, node)
	return nil
}

// DeleteText deletes the visible byte range [start, end) from node's
// text document.
func (r *Replica) DeleteText(node tree.NodeGID, start, end int) error {
	r.lock()
	defer r.unlock()
	op, err := r.content.Delete(node, start, end)
	if err != nil {
		return err
	}
	msg, err := wire.FromTextDeleteOp(op)
	if err != nil {
		return errors.Wrap(err, "encoding text delete")
	}
	r.enqueue(msg)
	r.publish(events.BufferEdited, node)
	return nil
}

// ReadText returns the current visible content of node's text document.
func (r *Replica) ReadText(node tree.NodeGID) ([]byte, error) {
	r.lock()
	defer r.unlock()
	return r.content.Bytes(node)
}

// WriteBinary replaces node's entire binary content with data.
func (r *Replica) WriteBinary(ctx context.Context, node tree.NodeGID, data []byte) error {
	r.lock()
	defer r.unlock()
	r.binaryVersions[node]++
	op, err := r.content.WriteBinary(ctx, r.store, node, data, r.binaryVersions[node])
	if err != nil {
		return err
	}
	msg, err := wire.FromBinaryWriteOp(op)
	if err != nil {
		return errors.Wrap(err, "encoding binary write")
	}
	r.enqueue(msg)
	r.publish(events.BufferEdited, node)
	return nil
}

// ReadBinary returns the current content of node's binary file.
func (r *Replica) ReadBinary(ctx context.Context, node tree.NodeGID) ([]byte, error) {
	r.lock()
	defer r.unlock()
	return r.content.ReadBinary(ctx, r.store, node)
}

// WriteSymlink sets node's symlink target.
func (r *Replica) WriteSymlink(ctx context.Context, node tree.NodeGID, target string) error {
	r.lock()
	defer r.unlock()
	r.symlinkVersions[node]++
	op, err := r.content.WriteSymlink(ctx, r.store, node, target, r.symlinkVersions[node])
	if err != nil {
		return err
	}
	msg, err := wire.FromSymlinkWriteOp(op)
	if err != nil {
		return errors.Wrap(err, "encoding symlink write")
	}
	r.enqueue(msg)
	r.publish(events.BufferEdited, node)
	return nil
}

// ReadSymlink returns node's current target.
func (r *Replica) ReadSymlink(node tree.NodeGID) (string, error) {
	r.lock()
	defer r.unlock()
	return r.content.ReadSymlink(node)
}

// SetCursor creates or moves id, this replica's own cursor, to offset in
// node's text document.
func (r *Replica) SetCursor(id annotate.CursorID, node tree.NodeGID, offset int) error {
	r.lock()
	defer r.unlock()
	op, err := r.annotate.SetCursor(id, r.peer, node, offset)
	if err != nil {
		return err
	}
	msg, err := wire.FromCursorOp(op)
	if err != nil {
		return errors.Wrap(err, "encoding cursor op")
	}
	r.enqueue(msg)
	r.fanout.Publish(events.Event{Kind: events.CursorMoved, Node: node, Cursor: id, Peer: r.peer, Offset: offset})
	return nil
}

// RemoveCursor deletes id, this replica's own cursor. The removal is
// purely local: the wire message table carries no CursorRemove, so a
// peer losing interest in a cursor simply stops updating it.
func (r *Replica) RemoveCursor(id annotate.CursorID) {
	r.lock()
	defer r.unlock()
	r.annotate.RemoveCursor(id)
	r.fanout.Publish(events.Event{Kind: events.CursorRemoved, Cursor: id})
}

// Cursor returns id's current node and up-to-date offset.
func (r *Replica) Cursor(id annotate.CursorID) (annotate.Cursor, int, error) {
	r.lock()
	defer r.unlock()
	return r.annotate.Cursor(id)
}

// SetSelection creates or moves id, this replica's own selection.
func (r *Replica) SetSelection(id annotate.SelectionID, node tree.NodeGID, start, end int) error {
	r.lock()
	defer r.unlock()
	op, err := r.annotate.SetSelection(id, r.peer, node, start, end)
	if err != nil {
		return err
	}
	msg, err := wire.FromSelectionOp(op)
	if err != nil {
		return errors.Wrap(err, "encoding selection op")
	}
	r.enqueue(msg)
	r.fanout.Publish(events.Event{Kind: events.SelectionMoved, Node: node, Selection: id, Peer: r.peer, Start: start, End: end})
	return nil
}

// RemoveSelection deletes id, this replica's own selection.
func (r *Replica) RemoveSelection(id annotate.SelectionID) {
	r.lock()
	defer r.unlock()
	r.annotate.RemoveSelection(id)
	r.fanout.Publish(events.Event{Kind: events.SelectionRemoved, Selection: id})
}

// Selection returns id's current node and up-to-date offsets.
func (r *Replica) Selection(id annotate.SelectionID) (annotate.Selection, int, int, error) {
	r.lock()
	defer r.unlock()
	return r.annotate.Selection(id)
}

// --- accessors ---

// Path returns node's current absolute path.
func (r *Replica) Path(node tree.NodeGID) (ids.AbsolutePath, error) {
	r.lock()
	defer r.unlock()
	return r.tree.Path(node)
}

// Lookup finds the visible child of dir named name.
func (r *Replica) Lookup(dir tree.NodeGID, name ids.NodeName) (tree.NodeGID, bool, error) {
	r.lock()
	defer r.unlock()
	did, ok := r.tree.DirByGlobal(dir)
	if !ok {
		return tree.NodeGID{}, false, errs.NotFound
	}
	g, ok := r.tree.Lookup(r.tree.Dir(did), name)
	return g, ok, nil
}

// Children returns the names of dir's visible children, in their
// deterministic replica-independent order.
func (r *Replica) Children(dir tree.NodeGID) ([]ids.NodeName, error) {
	r.lock()
	defer r.unlock()
	did, ok := r.tree.DirByGlobal(dir)
	if !ok {
		return nil, errs.NotFound
	}
	return r.tree.SortedChildren(r.tree.Dir(did)), nil
}

// Conflicts returns every open name conflict in this replica's tree.
func (r *Replica) Conflicts() []*tree.Conflict {
	r.lock()
	defer r.unlock()
	return r.driver.Conflicts()
}

// ResolveByRenamingExisting renames c's existing (first-arrived) node.
func (r *Replica) ResolveByRenamingExisting(c *tree.Conflict, newName ids.NodeName) error {
	r.lock()
	defer r.unlock()
	return r.tree.RenameExisting(c, newName)
}

// ResolveByRenamingConflicting renames c's conflicting (shadow-named) node.
func (r *Replica) ResolveByRenamingConflicting(c *tree.Conflict, newName ids.NodeName) error {
	r.lock()
	defer r.unlock()
	return r.tree.RenameConflicting(c, newName)
}

// ResolveByDeletingExisting deletes c's existing node.
func (r *Replica) ResolveByDeletingExisting(c *tree.Conflict) error {
	r.lock()
	defer r.unlock()
	node := c.ExistingNode()
	if err := r.tree.DeleteExisting(c); err != nil {
		return err
	}
	r.publish(events.BufferDeleted, node)
	return nil
}

// ResolveByDeletingConflicting deletes c's conflicting node.
func (r *Replica) ResolveByDeletingConflicting(c *tree.Conflict) error {
	r.lock()
	defer r.unlock()
	node := c.ConflictingNode()
	if err := r.tree.DeleteConflicting(c); err != nil {
		return err
	}
	r.publish(events.BufferDeleted, node)
	return nil
}

// AssumeResolved checks whether c's two sides no longer collide, clearing
// it if so.
func (r *Replica) AssumeResolved(c *tree.Conflict) bool {
	r.lock()
	defer r.unlock()
	return r.tree.AssumeResolved(c)
}

// --- remote integration ---

// Integrate applies every message in batch, in order, to this replica's
// state, publishing an events.Event for each resulting effect. A message
// whose dependency (its target node, or a text file it edits) hasn't
// arrived yet is held by the driver's internal backlog and replayed
// automatically once that dependency is integrated; Integrate itself
// never blocks waiting for a dependency.
func (r *Replica) Integrate(ctx context.Context, batch wire.OpBatch) error {
	r.lock()
	defer r.unlock()
	for _, msg := range batch.Messages {
		if err := r.integrateOne(ctx, batch.From, msg); err != nil {
			return errors.Wrapf(err, "integrating %s from peer %d", msg.Kind, batch.From)
		}
		r.lastSeen[batch.From]++
		r.log = append(r.log, msg)
	}
	r.drainActions()
	return nil
}

// Snapshot returns every message this replica has originated or
// integrated, in the order it applied them. It is the unit a
// persist.Checkpointer saves: replaying it through Restore against a
// fresh Replica reconstructs this replica's tree, content, and
// annotate state exactly, since every effect either package produces is
// derived entirely from the ops in this log.
func (r *Replica) Snapshot() wire.OpBatch {
	r.lock()
	defer r.unlock()
	return wire.OpBatch{From: r.peer, Messages: append([]wire.Message(nil), r.log...)}
}

// Restore rebuilds a Replica for peer by replaying a Snapshot taken
// earlier, from this or another replica of the same session. The
// resulting Replica's outbox starts empty: a restored replica has
// nothing pending to broadcast until it makes its own local edits.
func Restore(ctx context.Context, peer ids.PeerId, sessionID ids.SessionId, st anchor.Store, snapshot wire.OpBatch) (*Replica, error) {
	r := New(peer, sessionID, st)
	if err := r.Integrate(ctx, snapshot); err != nil {
		return nil, errors.Wrap(err, "replaying snapshot")
	}
	return r, nil
}

func (r *Replica) integrateOne(ctx context.Context, from ids.PeerId, msg wire.Message) error {
	switch msg.Kind {
	case wire.DirectoryCreate, wire.FileCreate:
		op, err := msg.ToCreateOp()
		if err != nil {
			return err
		}
		return r.driver.Feed(ctx, r.store, from, op)

	case wire.NodeRename, wire.NodeMove:
		target, err := msg.MoveTarget()
		if err != nil {
			return err
		}
		currentParent, _ := r.tree.ParentGID(target)
		op, err := msg.ToMoveOp(currentParent)
		if err != nil {
			return err
		}
		return r.driver.Feed(ctx, r.store, from, op)

	case wire.NodeDelete:
		op, err := msg.ToDeleteOp()
		if err != nil {
			return err
		}
		return r.driver.Feed(ctx, r.store, from, op)

	case wire.TextEdit:
		op, err := msg.ToTextOp()
		if err != nil {
			return err
		}
		if err := r.driver.Feed(ctx, r.store, from, op); err != nil {
			return err
		}
		switch textOp := op.(type) {
		case content.TextInsertOp:
			r.publish(events.BufferEdited, textOp.Node)
		case content.TextDeleteOp:
			r.publish(events.BufferEdited, textOp.Node)
		}
		return nil

	case wire.BinaryEdit:
		op, err := msg.ToBinaryWriteOp()
		if err != nil {
			return err
		}
		if err := r.driver.Feed(ctx, r.store, from, op); err != nil {
			return err
		}
		r.publish(events.BufferEdited, op.Node)
		return nil

	case wire.SymlinkEdit:
		op, err := msg.ToSymlinkWriteOp()
		if err != nil {
			return err
		}
		if err := r.driver.Feed(ctx, r.store, from, op); err != nil {
			return err
		}
		r.publish(events.BufferEdited, op.Node)
		return nil

	case wire.CursorOp:
		op, err := msg.ToCursorOp()
		if err != nil {
			return err
		}
		if err := r.driver.Feed(ctx, r.store, from, op); err != nil {
			return err
		}
		r.fanout.Publish(events.Event{Kind: events.CursorMoved, Node: op.Node, Cursor: op.ID, Peer: from, Offset: op.Offset})
		return nil

	case wire.SelectionOp:
		op, err := msg.ToSelectionOp()
		if err != nil {
			return err
		}
		if err := r.driver.Feed(ctx, r.store, from, op); err != nil {
			return err
		}
		r.fanout.Publish(events.Event{Kind: events.SelectionMoved, Node: op.Node, Selection: op.ID, Peer: from, Start: op.Start, End: op.End})
		return nil

	default:
		return errors.Errorf("session: unrecognized message kind %s", msg.Kind)
	}
}

// drainActions converts every tree-structural SyncAction the driver has
// queued into an events.Event. Content and annotate integration publish
// their own events directly in integrateOne, since the driver only
// produces SyncActions for Create/Move/Delete.
func (r *Replica) drainActions() {
	for {
		a, ok := r.driver.Next(context.Background())
		if !ok {
			return
		}
		r.fanout.Publish(events.Event{Kind: mapActionKind(a.Kind), Node: a.Node, Path: a.Path, Cause: a.Cause})
	}
}

func mapActionKind(k driver.ActionKind) events.Kind {
	if k == driver.Delete {
		return events.BufferDeleted
	}
	if k == driver.Create || k == driver.CreateAndResolve {
		return events.BufferCreated
	}
	return events.BufferMoved
}
