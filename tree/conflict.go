package tree

import (
	"github.com/opencollab/corefs/errs"
	"github.com/opencollab/corefs/ids"
)

// Conflict records two nodes that concurrent ops gave the same (parent,
// name): the node that already occupied the name (ExistingNode) and the
// one that arrived afterward under a disambiguated shadow name
// (ConflictingNode). Both nodes remain visible, addressable, and editable
// until the host resolves the conflict by renaming or deleting one side.
type Conflict struct {
	id          uint64
	existing    NodeGID
	conflicting NodeGID
	resolved    bool
}

// ExistingNode returns the node that held the colliding name first.
func (c *Conflict) ExistingNode() NodeGID { return c.existing }

// ConflictingNode returns the node that arrived under a shadow name.
func (c *Conflict) ConflictingNode() NodeGID { return c.conflicting }

// Resolved reports whether AssumeResolved has confirmed the collision is
// cleared.
func (c *Conflict) Resolved() bool { return c.resolved }

func (t *Tree) newConflict(existing, conflicting NodeGID) *Conflict {
	t.nextConfID++
	c := &Conflict{id: t.nextConfID, existing: existing, conflicting: conflicting}
	t.conflicts[c.id] = c
	return c
}

func (t *Tree) parentAndChild(node NodeGID) (*Directory, *childEntry) {
	switch node.Kind {
	case KindDirectory:
		d := t.dirByGlobal(node)
		if d == nil {
			return nil, nil
		}
		p := t.dir(d.parent)
		return p, childOf(p, d.local)
	case KindFile:
		f := t.fileByGlobal(node)
		if f == nil {
			return nil, nil
		}
		p := t.dir(f.parent)
		return p, childOfFile(p, f.local)
	}
	return nil, nil
}

// RenameExisting renames c's existing node to newName, provided the name
// is free in its parent.
func (t *Tree) RenameExisting(c *Conflict, newName ids.NodeName) error {
	return t.renameConflictSide(c.existing, newName)
}

// RenameConflicting renames c's conflicting node (out from under its
// shadow name) to newName, provided the name is free in its parent.
func (t *Tree) RenameConflicting(c *Conflict, newName ids.NodeName) error {
	return t.renameConflictSide(c.conflicting, newName)
}

func (t *Tree) renameConflictSide(node NodeGID, newName ids.NodeName) error {
	p, ce := t.parentAndChild(node)
	if p == nil || ce == nil || ce.tombstone {
		return errs.NotFound
	}
	if other := visibleChild(p, newName); other != nil && other != ce {
		return errs.NameCollision
	}
	ce.name = newName
	p.gen++
	return nil
}

// DeleteExisting tombstones c's existing node with cause ConflictLoser.
func (t *Tree) DeleteExisting(c *Conflict) error {
	return t.deleteConflictSide(c.existing)
}

// DeleteConflicting tombstones c's conflicting node with cause
// ConflictLoser.
func (t *Tree) DeleteConflicting(c *Conflict) error {
	return t.deleteConflictSide(c.conflicting)
}

func (t *Tree) deleteConflictSide(node NodeGID) error {
	switch node.Kind {
	case KindDirectory:
		d := t.dirByGlobal(node)
		if d == nil || d.tombstone {
			return errs.NotFound
		}
		t.tombstoneDir(d, ConflictLoser)
	case KindFile:
		f := t.fileByGlobal(node)
		if f == nil || f.tombstone {
			return errs.NotFound
		}
		f.tombstone = true
		f.deletionCause = ConflictLoser
		f.gen++
	}
	return nil
}

// AssumeResolved checks whether the two sides of c no longer collide
// (one was deleted, or both now have distinct visible names) and, if so,
// marks c resolved and forgets it. It returns false, leaving c open, if
// both sides are still visible in the same directory, the conflicting
// side under either the contested name or the shadow name it was given
// when the conflict was detected.
func (t *Tree) AssumeResolved(c *Conflict) bool {
	pe, ce := t.parentAndChild(c.existing)
	pc, cc := t.parentAndChild(c.conflicting)

	stillColliding := pe != nil && pc != nil && ce != nil && cc != nil &&
		!ce.tombstone && !cc.tombstone && pe == pc &&
		(ce.name == cc.name || cc.name == shadowName(ce.name, c.conflicting))
	if stillColliding {
		return false
	}
	c.resolved = true
	delete(t.conflicts, c.id)
	return true
}

// Conflicts returns every conflict awaiting resolution.
func (t *Tree) Conflicts() []*Conflict {
	out := make([]*Conflict, 0, len(t.conflicts))
	for _, c := range t.conflicts {
		out = append(out, c)
	}
	return out
}
