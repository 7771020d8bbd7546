// Package ids defines the identifier and path value types shared across
// a replica: peer and session identifiers, per-peer local ids, cluster-wide
// global ids, and node names/paths.
package ids

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// PeerId is a cluster-wide, monotonically assigned identifier for a
// replica within a session. Two distinct peers never share a PeerId
// within the same session.
type PeerId uint64

// SessionId names one collaborative editing session: one project tree
// shared by a set of peers. A peer may participate in several sessions,
// each scoping its own PeerId.
type SessionId uuid.UUID

// NewSessionId produces a fresh, random SessionId.
func NewSessionId() SessionId {
	return SessionId(uuid.New())
}

func (s SessionId) String() string {
	return uuid.UUID(s).String()
}

// Kind distinguishes the families of node that LocalId/GlobalId can name.
type Kind uint8

const (
	// KindDirectory names a directory node.
	KindDirectory Kind = iota
	// KindFile names a file node.
	KindFile
	// KindCursor names a cursor annotation.
	KindCursor
	// KindSelection names a selection annotation.
	KindSelection
)

// LocalId is a per-peer, densely packed index identifying a node of kind
// K in this replica's tables. It is stable for the replica's lifetime but
// not meaningful across peers.
type LocalId[K any] uint32

// GlobalId is a cluster-wide identifier of the form (creator peer,
// creation sequence), unique per kind. It is used on the wire and for
// cross-peer reference.
type GlobalId[K any] struct {
	Creator  PeerId
	Sequence uint64
}

// Less gives GlobalId a total order usable for map keys and deterministic
// iteration; it has no bearing on causal order.
func (g GlobalId[K]) Less(other GlobalId[K]) bool {
	if g.Creator != other.Creator {
		return g.Creator < other.Creator
	}
	return g.Sequence < other.Sequence
}

// Generator hands out successive GlobalIds for one peer and one kind.
type Generator[K any] struct {
	peer PeerId
	next uint64
}

// NewGenerator produces a Generator that mints GlobalIds credited to peer.
func NewGenerator[K any](peer PeerId) *Generator[K] {
	return &Generator[K]{peer: peer}
}

// Next mints the next GlobalId for this generator's peer.
func (g *Generator[K]) Next() GlobalId[K] {
	g.next++
	return GlobalId[K]{Creator: g.peer, Sequence: g.next}
}

// NodeName is the label of a node within its parent directory: a
// non-empty sequence of bytes disallowing '/' and NUL.
type NodeName string

// ValidateNodeName reports whether name is a legal NodeName.
func ValidateNodeName(name string) error {
	if name == "" {
		return errors.New("empty node name")
	}
	if strings.ContainsAny(name, "/\x00") {
		return errors.Errorf("node name %q contains '/' or NUL", name)
	}
	return nil
}

// AbsolutePath is a sequence of NodeNames rooted at the project root.
// Paths are always derived by walking parent links; they are never
// stored on a node.
type AbsolutePath []NodeName

func (p AbsolutePath) String() string {
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = string(n)
	}
	return "/" + strings.Join(parts, "/")
}

// Join appends name to p, returning a new path.
func (p AbsolutePath) Join(name NodeName) AbsolutePath {
	out := make(AbsolutePath, len(p)+1)
	copy(out, p)
	out[len(p)] = name
	return out
}

// Parent returns p without its final component, and whether p had one
// (the root path has no parent).
func (p AbsolutePath) Parent() (AbsolutePath, bool) {
	if len(p) == 0 {
		return nil, false
	}
	return p[:len(p)-1], true
}

// StartsWith reports whether p has prefix as a leading sequence of
// NodeNames.
func (p AbsolutePath) StartsWith(prefix AbsolutePath) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i, n := range prefix {
		if p[i] != n {
			return false
		}
	}
	return true
}
