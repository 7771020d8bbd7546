package tree

import (
	"github.com/opencollab/corefs/errs"
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/text"
)

func (t *Tree) position() text.ID {
	return text.ID{Clock: t.nextClock(), Peer: t.peer}
}

// --- local mutations ---

// CreateDirectory creates a new, empty subdirectory of parent named name.
func (t *Tree) CreateDirectory(parent DirID, name ids.NodeName) (DirID, CreateOp, error) {
	pd := t.dir(parent)
	if pd == nil || pd.tombstone {
		return 0, CreateOp{}, errs.NotFound
	}
	if visibleChild(pd, name) != nil {
		return 0, CreateOp{}, errs.NameCollision
	}

	pos := t.position()
	d := &Directory{
		global:       NodeGID{Kind: KindDirectory, Creator: t.peer, Sequence: t.nextClock()},
		parent:       parent,
		creator:      t.peer,
		movePosition: pos,
	}
	t.dirs = append(t.dirs, d)
	d.local = DirID(len(t.dirs) - 1)
	t.dirByGID[d.global] = d.local

	pd.children = append(pd.children, &childEntry{name: name, isDir: true, dir: d.local, position: pos})
	pd.gen++

	return d.local, CreateOp{Node: d.global, Parent: pd.global, Name: name, Position: pos}, nil
}

// CreateFile creates a new file of the given content variant in parent
// named name.
func (t *Tree) CreateFile(parent DirID, name ids.NodeName, variant ContentKind) (FileID, CreateOp, error) {
	pd := t.dir(parent)
	if pd == nil || pd.tombstone {
		return 0, CreateOp{}, errs.NotFound
	}
	if visibleChild(pd, name) != nil {
		return 0, CreateOp{}, errs.NameCollision
	}

	pos := t.position()
	f := &File{
		global:       NodeGID{Kind: KindFile, Creator: t.peer, Sequence: t.nextClock()},
		parent:       parent,
		creator:      t.peer,
		variant:      variant,
		movePosition: pos,
	}
	t.files = append(t.files, f)
	f.local = FileID(len(t.files) - 1)
	t.fileByGID[f.global] = f.local

	pd.children = append(pd.children, &childEntry{name: name, isDir: false, file: f.local, position: pos})
	pd.gen++

	return f.local, CreateOp{Node: f.global, Parent: pd.global, Name: name, Variant: variant, Position: pos}, nil
}

// Move relocates node to be a child of newParent named newName. A rename
// in place is a Move with newParent equal to node's current parent.
func (t *Tree) Move(node NodeGID, newParent DirID, newName ids.NodeName) (MoveOp, error) {
	npd := t.dir(newParent)
	if npd == nil || npd.tombstone {
		return MoveOp{}, errs.NotFound
	}
	if visibleChild(npd, newName) != nil {
		return MoveOp{}, errs.NameCollision
	}

	switch node.Kind {
	case KindDirectory:
		d := t.dirByGlobal(node)
		if d == nil || d.tombstone {
			return MoveOp{}, errs.NotFound
		}
		if d.local == t.root {
			return MoveOp{}, errs.MoveWouldCreateCycle
		}
		if t.isDescendant(d.local, newParent) {
			return MoveOp{}, errs.MoveWouldCreateCycle
		}
		oldParent := t.dir(d.parent)
		c := childOf(oldParent, d.local)
		t.detachChild(oldParent, c)
		pos := t.position()
		npd.children = append(npd.children, &childEntry{name: newName, isDir: true, dir: d.local, position: pos})
		d.parent = newParent
		d.movePosition = pos
		npd.gen++
		return MoveOp{Node: node, NewParent: npd.global, NewName: newName, Position: pos}, nil

	case KindFile:
		f := t.fileByGlobal(node)
		if f == nil || f.tombstone {
			return MoveOp{}, errs.NotFound
		}
		oldParent := t.dir(f.parent)
		c := childOfFile(oldParent, f.local)
		t.detachChild(oldParent, c)
		pos := t.position()
		npd.children = append(npd.children, &childEntry{name: newName, isDir: false, file: f.local, position: pos})
		f.parent = newParent
		f.movePosition = pos
		npd.gen++
		return MoveOp{Node: node, NewParent: npd.global, NewName: newName, Position: pos}, nil
	}
	return MoveOp{}, errs.NotFound
}

func (t *Tree) detachChild(d *Directory, c *childEntry) {
	for i, e := range d.children {
		if e == c {
			d.children = append(d.children[:i], d.children[i+1:]...)
			d.gen++
			return
		}
	}
}

// Delete tombstones node and, recursively, every descendant.
func (t *Tree) Delete(node NodeGID) (DeleteOp, error) {
	switch node.Kind {
	case KindDirectory:
		d := t.dirByGlobal(node)
		if d == nil || d.tombstone {
			return DeleteOp{}, errs.NotFound
		}
		t.tombstoneDir(d, UserDeleted)
	case KindFile:
		f := t.fileByGlobal(node)
		if f == nil || f.tombstone {
			return DeleteOp{}, errs.NotFound
		}
		f.tombstone = true
		f.deletionCause = UserDeleted
		f.gen++
	default:
		return DeleteOp{}, errs.NotFound
	}
	return DeleteOp{Node: node}, nil
}

func (t *Tree) tombstoneDir(d *Directory, cause DeletionCause) {
	if p := t.dir(d.parent); p != nil {
		if c := childOf(p, d.local); c != nil {
			c.tombstone = true
			p.gen++
		}
	}
	d.tombstone = true
	d.deletionCause = cause
	d.gen++
	for _, c := range d.children {
		if c.tombstone {
			continue
		}
		c.tombstone = true
		if c.isDir {
			t.tombstoneDir(t.dir(c.dir), AncestorDeleted)
		} else {
			f := t.file(c.file)
			f.tombstone = true
			f.deletionCause = AncestorDeleted
			f.gen++
		}
	}
}

// --- remote integration ---

// IntegrateCreate applies a remote CreateOp. If the destination name
// collides with an existing visible child, the incoming node is still
// created (under a disambiguated shadow name) and a Conflict is returned
// for the host to resolve; ErrMissingDependency is returned (and nothing
// is mutated) if op's parent has not yet been integrated.
func (t *Tree) IntegrateCreate(op CreateOp) (*Conflict, error) {
	pd := t.dirByGlobal(op.Parent)
	if pd == nil {
		return nil, ErrMissingDependency
	}
	if op.Node.Kind == KindDirectory {
		if _, ok := t.dirByGID[op.Node]; ok {
			return nil, nil // P2 idempotence
		}
	} else if _, ok := t.fileByGID[op.Node]; ok {
		return nil, nil
	}

	existing := visibleChild(pd, op.Name)
	name := op.Name
	var conflict *Conflict
	if existing != nil {
		name = shadowName(op.Name, op.Node)
		conflict = t.newConflict(existingGID(t, existing), op.Node)
	}

	switch op.Node.Kind {
	case KindDirectory:
		d := &Directory{global: op.Node, parent: pd.local, creator: op.Node.Creator, movePosition: op.Position}
		t.dirs = append(t.dirs, d)
		d.local = DirID(len(t.dirs) - 1)
		t.dirByGID[op.Node] = d.local
		pd.children = append(pd.children, &childEntry{name: name, isDir: true, dir: d.local, position: op.Position})
	case KindFile:
		f := &File{global: op.Node, parent: pd.local, creator: op.Node.Creator, variant: op.Variant, movePosition: op.Position}
		t.files = append(t.files, f)
		f.local = FileID(len(t.files) - 1)
		t.fileByGID[op.Node] = f.local
		pd.children = append(pd.children, &childEntry{name: name, isDir: false, file: f.local, position: op.Position})
	}
	pd.gen++
	return conflict, nil
}

// IntegrateMove applies a remote MoveOp, observing the two tie-break rules
// a concurrent edit can trigger: a Delete of node always wins over a
// concurrent Move (the move is a no-op once node is tombstoned), and two
// concurrent Moves of the same node to different destinations converge by
// comparing op.Position against the node's currently recorded
// movePosition (set by whichever Move or IntegrateMove last won) and
// applying only the one with the higher (clock, peer); the loser is
// silently dropped, and every replica computes the same winner once both
// ops are seen, regardless of delivery order.
func (t *Tree) IntegrateMove(op MoveOp) (*Conflict, error) {
	npd := t.dirByGlobal(op.NewParent)
	if npd == nil {
		return nil, ErrMissingDependency
	}

	switch op.Node.Kind {
	case KindDirectory:
		d := t.dirByGlobal(op.Node)
		if d == nil {
			return nil, ErrMissingDependency
		}
		if d.tombstone {
			return nil, nil // delete-wins over concurrent move
		}
		if !op.Position.Greater(d.movePosition) {
			return nil, nil // a concurrent move with a higher (clock, peer) already won
		}
		existing := visibleChild(npd, op.NewName)
		name := op.NewName
		var conflict *Conflict
		if existing != nil && !(existing.isDir && existing.dir == d.local) {
			name = shadowName(op.NewName, op.Node)
			conflict = t.newConflict(existingGID(t, existing), op.Node)
		}
		oldParent := t.dir(d.parent)
		if c := childOf(oldParent, d.local); c != nil {
			t.detachChild(oldParent, c)
		}
		npd.children = append(npd.children, &childEntry{name: name, isDir: true, dir: d.local, position: op.Position})
		d.parent = npd.local
		d.movePosition = op.Position
		npd.gen++
		return conflict, nil

	case KindFile:
		f := t.fileByGlobal(op.Node)
		if f == nil {
			return nil, ErrMissingDependency
		}
		if f.tombstone {
			return nil, nil // delete-wins over concurrent move
		}
		if !op.Position.Greater(f.movePosition) {
			return nil, nil // a concurrent move with a higher (clock, peer) already won
		}
		existing := visibleChild(npd, op.NewName)
		name := op.NewName
		var conflict *Conflict
		if existing != nil && !(!existing.isDir && existing.file == f.local) {
			name = shadowName(op.NewName, op.Node)
			conflict = t.newConflict(existingGID(t, existing), op.Node)
		}
		oldParent := t.dir(f.parent)
		if c := childOfFile(oldParent, f.local); c != nil {
			t.detachChild(oldParent, c)
		}
		npd.children = append(npd.children, &childEntry{name: name, isDir: false, file: f.local, position: op.Position})
		f.parent = npd.local
		f.movePosition = op.Position
		npd.gen++
		return conflict, nil
	}
	return nil, ErrMissingDependency
}

// IntegrateDelete applies a remote DeleteOp. Deleting an unknown node is
// held in the backlog by the caller, identically to IntegrateMove.
func (t *Tree) IntegrateDelete(op DeleteOp) error {
	switch op.Node.Kind {
	case KindDirectory:
		d := t.dirByGlobal(op.Node)
		if d == nil {
			return ErrMissingDependency
		}
		if d.tombstone {
			return nil
		}
		t.tombstoneDir(d, UserDeleted)
	case KindFile:
		f := t.fileByGlobal(op.Node)
		if f == nil {
			return ErrMissingDependency
		}
		if f.tombstone {
			return nil
		}
		f.tombstone = true
		f.deletionCause = UserDeleted
		f.gen++
	}
	return nil
}

func existingGID(t *Tree, c *childEntry) NodeGID {
	if c.isDir {
		return t.dirs[c.dir].global
	}
	return t.files[c.file].global
}

func shadowName(name ids.NodeName, loser NodeGID) ids.NodeName {
	return ids.NodeName(string(name) + conflictSuffix(loser))
}

func conflictSuffix(g NodeGID) string {
	const hex = "0123456789abcdef"
	b := []byte("~conflict~")
	seq := g.Sequence
	if seq == 0 {
		return string(b) + "0"
	}
	var digits []byte
	for seq > 0 {
		digits = append([]byte{hex[seq%16]}, digits...)
		seq /= 16
	}
	return string(append(b, digits...))
}
