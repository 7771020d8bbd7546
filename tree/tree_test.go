package tree

import (
	"testing"

	"github.com/opencollab/corefs/errs"
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/text"
)

func mustCreateDir(t *testing.T, tr *Tree, parent DirID, name string) (DirID, CreateOp) {
	t.Helper()
	id, op, err := tr.CreateDirectory(parent, ids.NodeName(name))
	if err != nil {
		t.Fatalf("CreateDirectory(%s): %s", name, err)
	}
	return id, op
}

func TestCreateDirectoryAndLookup(t *testing.T) {
	tr := New(ids.PeerId(1))
	did, _ := mustCreateDir(t, tr, tr.Root(), "src")

	root := tr.Dir(tr.Root())
	g, ok := tr.Lookup(root, ids.NodeName("src"))
	if !ok {
		t.Fatal("expected to find src")
	}
	if g != tr.Dir(did).Global() {
		t.Error("lookup returned wrong NodeGID")
	}
}

func TestCreateNameCollision(t *testing.T) {
	tr := New(ids.PeerId(1))
	mustCreateDir(t, tr, tr.Root(), "src")
	_, _, err := tr.CreateDirectory(tr.Root(), ids.NodeName("src"))
	if err != errs.NameCollision {
		t.Fatalf("got %v, want errs.NameCollision", err)
	}
}

func TestPathReconstruction(t *testing.T) {
	tr := New(ids.PeerId(1))
	srcID, _ := mustCreateDir(t, tr, tr.Root(), "src")
	fid, _, err := tr.CreateFile(srcID, ids.NodeName("main.go"), ContentText)
	if err != nil {
		t.Fatal(err)
	}

	p, err := tr.Path(tr.File(fid).Global())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := p.String(), "/src/main.go"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMoveRename(t *testing.T) {
	tr := New(ids.PeerId(1))
	aID, aOp := mustCreateDir(t, tr, tr.Root(), "a")
	_ = aOp
	bID, _ := mustCreateDir(t, tr, tr.Root(), "b")

	aGID := tr.Dir(aID).Global()
	_, err := tr.Move(aGID, bID, ids.NodeName("renamed"))
	if err != nil {
		t.Fatal(err)
	}

	p, err := tr.Path(aGID)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := p.String(), "/b/renamed"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMoveIntoOwnDescendantIsCycle(t *testing.T) {
	tr := New(ids.PeerId(1))
	aID, _ := mustCreateDir(t, tr, tr.Root(), "a")
	bID, _ := mustCreateDir(t, tr, aID, "b")

	aGID := tr.Dir(aID).Global()
	_, err := tr.Move(aGID, bID, ids.NodeName("a-under-b"))
	if err != errs.MoveWouldCreateCycle {
		t.Fatalf("got %v, want errs.MoveWouldCreateCycle", err)
	}
}

func TestDeleteTombstonesDescendants(t *testing.T) {
	tr := New(ids.PeerId(1))
	aID, _ := mustCreateDir(t, tr, tr.Root(), "a")
	fid, _, err := tr.CreateFile(aID, ids.NodeName("f.txt"), ContentText)
	if err != nil {
		t.Fatal(err)
	}

	aGID := tr.Dir(aID).Global()
	if _, err := tr.Delete(aGID); err != nil {
		t.Fatal(err)
	}

	if !tr.Dir(aID).Tombstoned() {
		t.Error("expected directory to be tombstoned")
	}
	if !tr.File(fid).Tombstoned() {
		t.Error("expected descendant file to be tombstoned")
	}
	if got := tr.File(fid).DeletionCause(); got != AncestorDeleted {
		t.Errorf("got deletion cause %v, want AncestorDeleted", got)
	}
	if got := tr.Dir(aID).DeletionCause(); got != UserDeleted {
		t.Errorf("got deletion cause %v, want UserDeleted for the explicitly deleted directory", got)
	}
	if cause, ok := tr.NodeDeletionCause(aGID); !ok || cause != UserDeleted {
		t.Errorf("NodeDeletionCause(aGID) = (%v, %v), want (UserDeleted, true)", cause, ok)
	}
	if cause, ok := tr.NodeDeletionCause(tr.File(fid).Global()); !ok || cause != AncestorDeleted {
		t.Errorf("NodeDeletionCause(fileGID) = (%v, %v), want (AncestorDeleted, true)", cause, ok)
	}

	root := tr.Dir(tr.Root())
	if _, ok := tr.Lookup(root, ids.NodeName("a")); ok {
		t.Error("deleted directory should no longer be visible")
	}
	if _, ok := tr.NodeDeletionCause(root.Global()); ok {
		t.Error("NodeDeletionCause should report false for a node that isn't tombstoned")
	}
}

func TestIntegrateCreateIsIdempotent(t *testing.T) {
	tr := New(ids.PeerId(1))
	_, op, err := tr.CreateDirectory(tr.Root(), ids.NodeName("once"))
	if err != nil {
		t.Fatal(err)
	}

	remote := New(ids.PeerId(2))
	if _, err := remote.IntegrateCreate(op); err != nil {
		t.Fatal(err)
	}
	if _, err := remote.IntegrateCreate(op); err != nil {
		t.Fatal(err)
	}

	root := remote.Dir(remote.Root())
	names := remote.SortedChildren(root)
	if len(names) != 1 {
		t.Fatalf("got %d children after redelivery, want 1: %v", len(names), names)
	}
}

func TestIntegrateCreateNameConflict(t *testing.T) {
	a := New(ids.PeerId(1))
	b := New(ids.PeerId(2))

	_, _, err := a.CreateDirectory(a.Root(), ids.NodeName("shared"))
	if err != nil {
		t.Fatal(err)
	}
	_, opB, err := b.CreateDirectory(b.Root(), ids.NodeName("shared"))
	if err != nil {
		t.Fatal(err)
	}

	// a integrates b's concurrent create of the same name.
	conflict, err := a.IntegrateCreate(opB)
	if err != nil {
		t.Fatal(err)
	}
	if conflict == nil {
		t.Fatal("expected a name conflict")
	}
	if len(a.Conflicts()) != 1 {
		t.Fatalf("got %d open conflicts, want 1", len(a.Conflicts()))
	}

	root := a.Dir(a.Root())
	names := root.children
	if len(names) != 2 {
		t.Fatalf("got %d children, want 2 (both sides kept visible)", len(names))
	}
}

func TestIntegrateMoveMissingDependencyIsHeld(t *testing.T) {
	tr := New(ids.PeerId(1))
	unknownParent := NodeGID{Kind: KindDirectory, Creator: ids.PeerId(9), Sequence: 1}
	op := MoveOp{
		Node:      NodeGID{Kind: KindFile, Creator: ids.PeerId(1), Sequence: 1},
		NewParent: unknownParent,
		NewName:   ids.NodeName("x"),
	}
	if _, err := tr.IntegrateMove(op); err != ErrMissingDependency {
		t.Fatalf("got %v, want ErrMissingDependency", err)
	}
}

func TestIntegrateDeleteBeatsIntegrateMove(t *testing.T) {
	tr := New(ids.PeerId(1))
	aID, _ := mustCreateDir(t, tr, tr.Root(), "a")
	aGID := tr.Dir(aID).Global()

	if err := tr.IntegrateDelete(DeleteOp{Node: aGID}); err != nil {
		t.Fatal(err)
	}

	conflict, err := tr.IntegrateMove(MoveOp{Node: aGID, NewParent: tr.Dir(tr.Root()).Global(), NewName: ids.NodeName("moved")})
	if err != nil {
		t.Fatal(err)
	}
	if conflict != nil {
		t.Error("expected no conflict: delete should win silently")
	}
	if !tr.Dir(aID).Tombstoned() {
		t.Error("node should remain tombstoned after a concurrent move arrives")
	}
}

func TestIntegrateMoveConcurrentDestinationsConvergeOnHigherPosition(t *testing.T) {
	// Build identical starting state (two destinations and the node to be
	// moved) on a shared source tree, then replicate those ops onto two
	// independent trees so both agree on every NodeGID.
	src := New(ids.PeerId(1))
	_, destXOp, err := src.CreateDirectory(src.Root(), ids.NodeName("destX"))
	if err != nil {
		t.Fatal(err)
	}
	_, destYOp, err := src.CreateDirectory(src.Root(), ids.NodeName("destY"))
	if err != nil {
		t.Fatal(err)
	}
	_, sharedOp, err := src.CreateDirectory(src.Root(), ids.NodeName("shared"))
	if err != nil {
		t.Fatal(err)
	}

	a := New(ids.PeerId(1))
	b := New(ids.PeerId(2))
	for _, tr := range []*Tree{a, b} {
		for _, op := range []CreateOp{destXOp, destYOp, sharedOp} {
			if _, err := tr.IntegrateCreate(op); err != nil {
				t.Fatal(err)
			}
		}
	}

	// Two concurrent moves of "shared" to different destinations. moveToY
	// has the higher (clock, peer) and must win regardless of which
	// replica sees which move first.
	moveToX := MoveOp{Node: sharedOp.Node, NewParent: destXOp.Node, NewName: ids.NodeName("shared"), Position: text.ID{Clock: 100, Peer: ids.PeerId(1)}}
	moveToY := MoveOp{Node: sharedOp.Node, NewParent: destYOp.Node, NewName: ids.NodeName("shared"), Position: text.ID{Clock: 200, Peer: ids.PeerId(1)}}

	// a sees the eventual loser first, then the winner.
	if _, err := a.IntegrateMove(moveToX); err != nil {
		t.Fatal(err)
	}
	if _, err := a.IntegrateMove(moveToY); err != nil {
		t.Fatal(err)
	}

	// b sees the winner first, then the loser, which must now be a no-op.
	if _, err := b.IntegrateMove(moveToY); err != nil {
		t.Fatal(err)
	}
	if _, err := b.IntegrateMove(moveToX); err != nil {
		t.Fatal(err)
	}

	aPath, err := a.Path(sharedOp.Node)
	if err != nil {
		t.Fatal(err)
	}
	bPath, err := b.Path(sharedOp.Node)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := aPath.String(), "/destY/shared"; got != want {
		t.Errorf("a: got %q, want %q", got, want)
	}
	if got, want := bPath.String(), "/destY/shared"; got != want {
		t.Errorf("b: got %q, want %q", got, want)
	}
	if aPath.String() != bPath.String() {
		t.Fatalf("replicas diverged: a=%q b=%q", aPath, bPath)
	}
}

func TestIntegrateMoveLowerPositionIsNoopAfterHigherAlreadyApplied(t *testing.T) {
	tr := New(ids.PeerId(1))
	aID, aOp := mustCreateDir(t, tr, tr.Root(), "a")
	bID, _ := mustCreateDir(t, tr, tr.Root(), "b")
	cID, _ := mustCreateDir(t, tr, tr.Root(), "c")
	aGID := tr.Dir(aID).Global()
	bGID := tr.Dir(bID).Global()
	cGID := tr.Dir(cID).Global()

	winning := MoveOp{Node: aGID, NewParent: bGID, NewName: ids.NodeName("a"), Position: text.ID{Clock: aOp.Position.Clock + 10, Peer: ids.PeerId(1)}}
	if _, err := tr.IntegrateMove(winning); err != nil {
		t.Fatal(err)
	}

	losing := MoveOp{Node: aGID, NewParent: cGID, NewName: ids.NodeName("a"), Position: text.ID{Clock: aOp.Position.Clock + 5, Peer: ids.PeerId(1)}}
	conflict, err := tr.IntegrateMove(losing)
	if err != nil {
		t.Fatal(err)
	}
	if conflict != nil {
		t.Error("expected the lower-position move to be dropped silently, not surfaced as a conflict")
	}

	p, err := tr.Path(aGID)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := p.String(), "/b/a"; got != want {
		t.Errorf("got %q, want %q: the lower-position move should not have applied", got, want)
	}
}

func TestAssumeResolvedClearsWhenSidesDiverge(t *testing.T) {
	a := New(ids.PeerId(1))
	b := New(ids.PeerId(2))
	_, _, err := a.CreateDirectory(a.Root(), ids.NodeName("shared"))
	if err != nil {
		t.Fatal(err)
	}
	_, opB, err := b.CreateDirectory(b.Root(), ids.NodeName("shared"))
	if err != nil {
		t.Fatal(err)
	}

	conflict, err := a.IntegrateCreate(opB)
	if err != nil {
		t.Fatal(err)
	}

	if a.AssumeResolved(conflict) {
		t.Fatal("expected conflict to still be open")
	}

	if err := a.RenameConflicting(conflict, ids.NodeName("shared-2")); err != nil {
		t.Fatal(err)
	}
	if !a.AssumeResolved(conflict) {
		t.Fatal("expected conflict to clear after rename")
	}
	if len(a.Conflicts()) != 0 {
		t.Errorf("got %d open conflicts after resolution, want 0", len(a.Conflicts()))
	}
}

func TestDirViewStaleness(t *testing.T) {
	tr := New(ids.PeerId(1))
	v := tr.ViewDir(tr.Root())
	if v.IsStale() {
		t.Fatal("freshly taken view should not be stale")
	}
	mustCreateDir(t, tr, tr.Root(), "x")
	if !v.IsStale() {
		t.Fatal("view should be stale after a child was added")
	}
}
