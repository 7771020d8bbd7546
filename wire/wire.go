// Package wire defines the peer-to-peer message envelopes a session sends
// and receives: one message per mutation broadcast by the tree, content,
// and annotate packages, plus the handshake/catch-up and liveness
// envelopes (SyncRequest, SyncResponse, Heartbeat) that wrap them.
//
// There is no protoc toolchain available to this module, so message
// shapes are plain Go structs and (de)serialize through
// MarshalBinary/UnmarshalBinary backed by canonical JSON, the same
// deterministic encoding used for content-addressed storage elsewhere in
// this module. Clock fields are nonetheless carried as
// google.golang.org/protobuf's well-known Timestamp type, matching the
// wire-message table this package implements.
package wire

import (
	"github.com/gibson042/canonicaljson-go"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/opencollab/corefs/annotate"
	"github.com/opencollab/corefs/content"
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/text"
	"github.com/opencollab/corefs/tree"
)

// Kind discriminates the payload carried by a Message envelope.
type Kind uint8

const (
	DirectoryCreate Kind = iota
	FileCreate
	NodeRename
	NodeMove
	NodeDelete
	TextEdit
	BinaryEdit
	SymlinkEdit
	CursorOp
	SelectionOp
)

func (k Kind) String() string {
	switch k {
	case DirectoryCreate:
		return "DirectoryCreate"
	case FileCreate:
		return "FileCreate"
	case NodeRename:
		return "NodeRename"
	case NodeMove:
		return "NodeMove"
	case NodeDelete:
		return "NodeDelete"
	case TextEdit:
		return "TextEdit"
	case BinaryEdit:
		return "BinaryEdit"
	case SymlinkEdit:
		return "SymlinkEdit"
	case CursorOp:
		return "CursorOp"
	case SelectionOp:
		return "SelectionOp"
	default:
		return "Unknown"
	}
}

// DirectoryCreateMsg announces a newly created directory. Position is the
// sibling insertion id the tree package uses to order concurrently
// created children deterministically; it has no counterpart in a
// minimal wire table but is required for this module's directories to
// converge to the same child order on every replica.
type DirectoryCreateMsg struct {
	GlobalID       tree.NodeGID
	ParentGlobalID tree.NodeGID
	Name           ids.NodeName
	Position       text.ID
	Creator        ids.PeerId
	Clock          *timestamppb.Timestamp
}

// FileCreateMsg announces a newly created file.
type FileCreateMsg struct {
	GlobalID       tree.NodeGID
	ParentGlobalID tree.NodeGID
	Name           ids.NodeName
	Variant        tree.ContentKind
	Position       text.ID
	Creator        ids.PeerId
	Clock          *timestamppb.Timestamp
}

// NodeRenameMsg renames a node within its current parent.
type NodeRenameMsg struct {
	TargetGlobalID tree.NodeGID
	NewName        ids.NodeName
	Position       text.ID
	Actor          ids.PeerId
	Clock          *timestamppb.Timestamp
}

// NodeMoveMsg relocates a node to a new parent, possibly under a new name.
type NodeMoveMsg struct {
	TargetGlobalID    tree.NodeGID
	NewParentGlobalID tree.NodeGID
	NewName           ids.NodeName
	Position          text.ID
	Actor             ids.PeerId
	Clock             *timestamppb.Timestamp
}

// NodeDeleteMsg tombstones a node.
type NodeDeleteMsg struct {
	TargetGlobalID tree.NodeGID
	Actor          ids.PeerId
	Clock          *timestamppb.Timestamp
}

// TextEditMsg carries one text CRDT op, either an insertion or a
// deletion batch, for a single file.
type TextEditMsg struct {
	FileGlobalID tree.NodeGID
	Insert       *text.InsertionOp `json:",omitempty"`
	Delete       *text.DeletionOp  `json:",omitempty"`
}

// BinaryEditMsg announces a whole-file binary replacement already stored
// under the session's content store; Root names the hashsplit tree root.
type BinaryEditMsg struct {
	FileGlobalID tree.NodeGID
	Version      uint64
	Writer       uint64
	Root         string
	Size         uint64
}

// SymlinkEditMsg announces a symlink target update.
type SymlinkEditMsg struct {
	FileGlobalID tree.NodeGID
	Version      uint64
	Writer       uint64
	Target       string
}

// CursorOpMsg moves or creates a cursor.
type CursorOpMsg struct {
	CursorGlobalID annotate.CursorID
	FileGlobalID   tree.NodeGID
	Offset         int
}

// SelectionOpMsg moves or creates a selection.
type SelectionOpMsg struct {
	SelectionGlobalID annotate.SelectionID
	FileGlobalID      tree.NodeGID
	Start, End        int
}

// Message is one envelope in an OpBatch: a Kind tag plus its
// canonical-JSON-encoded payload, so a batch can carry a heterogeneous
// sequence of message kinds and a receiver can dispatch on Kind before
// decoding Payload into the matching *Msg type.
type Message struct {
	Kind    Kind
	Payload []byte
}

// Encode builds a Message envelope from a concrete *Msg value.
func Encode(kind Kind, v interface{}) (Message, error) {
	b, err := canonicaljson.Marshal(v)
	if err != nil {
		return Message{}, errors.Wrapf(err, "encoding %s message", kind)
	}
	return Message{Kind: kind, Payload: b}, nil
}

// Decode unmarshals m's payload into v, which must be a pointer to the
// *Msg type matching m.Kind.
func (m Message) Decode(v interface{}) error {
	return canonicaljson.Unmarshal(m.Payload, v)
}

// OpBatch is a sequence of Messages broadcast together by one peer, kept
// in the causal order they were generated so a receiver's driver.Feed
// calls see dependencies (a file's FileCreate before its first TextEdit)
// in the order that makes backlog buffering unnecessary for the common
// case of an uninterrupted connection.
type OpBatch struct {
	From     ids.PeerId
	Messages []Message
}

// MarshalBinary implements encoding.BinaryMarshaler using canonical JSON.
func (b OpBatch) MarshalBinary() ([]byte, error) { return canonicaljson.Marshal(b) }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (b *OpBatch) UnmarshalBinary(data []byte) error { return canonicaljson.Unmarshal(data, b) }

// SyncRequest is sent by a reconnecting or newly joining peer to ask for
// a catch-up: a project snapshot if Known is empty (first join), or just
// the ops this peer is missing if Known names the last sequence number
// this peer integrated from each other peer it has heard from.
type SyncRequest struct {
	From    ids.PeerId
	Session ids.SessionId
	Known   map[ids.PeerId]uint64
}

// MarshalBinary implements encoding.BinaryMarshaler using canonical JSON.
func (r SyncRequest) MarshalBinary() ([]byte, error) { return canonicaljson.Marshal(r) }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *SyncRequest) UnmarshalBinary(data []byte) error { return canonicaljson.Unmarshal(data, r) }

// SyncResponse answers a SyncRequest: Snapshot is a persist.Checkpointer
// serialization of the responder's full replica state, present only when
// the requester had no Known state to catch up from; Batch carries any
// ops generated after the snapshot was taken (or, for an incremental
// request, simply the missing ops).
type SyncResponse struct {
	Snapshot []byte `json:",omitempty"`
	Batch    OpBatch
}

// MarshalBinary implements encoding.BinaryMarshaler using canonical JSON.
func (r SyncResponse) MarshalBinary() ([]byte, error) { return canonicaljson.Marshal(r) }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *SyncResponse) UnmarshalBinary(data []byte) error { return canonicaljson.Unmarshal(data, r) }

// Heartbeat is sent periodically on an idle connection so each side can
// detect a silently dropped peer without waiting for a write to fail.
type Heartbeat struct {
	From ids.PeerId
	At   *timestamppb.Timestamp
}

// MarshalBinary implements encoding.BinaryMarshaler using canonical JSON.
func (h Heartbeat) MarshalBinary() ([]byte, error) { return canonicaljson.Marshal(h) }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (h *Heartbeat) UnmarshalBinary(data []byte) error { return canonicaljson.Unmarshal(data, h) }

// --- domain op <-> wire message conversions ---
//
// These functions are the seam between the in-process op types
// (tree.CreateOp, content.TextInsertOp, ...) driver.Feed consumes and the
// serializable *Msg types above. Encoding a domain op for broadcast goes
// op -> wire.*Msg -> Message; integrating a received Message reverses
// that.

// FromCreateOp converts a tree.CreateOp into the DirectoryCreate or
// FileCreate Message appropriate to its kind.
func FromCreateOp(op tree.CreateOp, creator ids.PeerId, clock *timestamppb.Timestamp) (Message, error) {
	if op.Node.Kind == tree.KindDirectory {
		return Encode(DirectoryCreate, &DirectoryCreateMsg{
			GlobalID:       op.Node,
			ParentGlobalID: op.Parent,
			Name:           op.Name,
			Position:       op.Position,
			Creator:        creator,
			Clock:          clock,
		})
	}
	return Encode(FileCreate, &FileCreateMsg{
		GlobalID:       op.Node,
		ParentGlobalID: op.Parent,
		Name:           op.Name,
		Variant:        op.Variant,
		Position:       op.Position,
		Creator:        creator,
		Clock:          clock,
	})
}

// ToCreateOp reverses FromCreateOp for either message kind.
func (m Message) ToCreateOp() (tree.CreateOp, error) {
	switch m.Kind {
	case DirectoryCreate:
		var msg DirectoryCreateMsg
		if err := m.Decode(&msg); err != nil {
			return tree.CreateOp{}, err
		}
		return tree.CreateOp{
			Node:     msg.GlobalID,
			Parent:   msg.ParentGlobalID,
			Name:     msg.Name,
			Position: msg.Position,
		}, nil
	case FileCreate:
		var msg FileCreateMsg
		if err := m.Decode(&msg); err != nil {
			return tree.CreateOp{}, err
		}
		return tree.CreateOp{
			Node:     msg.GlobalID,
			Parent:   msg.ParentGlobalID,
			Name:     msg.Name,
			Variant:  msg.Variant,
			Position: msg.Position,
		}, nil
	default:
		return tree.CreateOp{}, errors.Errorf("wire: %s is not a create message", m.Kind)
	}
}

// FromMoveOp converts a tree.MoveOp into a NodeMove (or NodeRename, when
// the op's destination matches an unchanged parent is not knowable here;
// NodeRename is reserved for a caller that already knows the op is a
// same-parent rename) Message.
func FromMoveOp(op tree.MoveOp, rename bool, actor ids.PeerId, clock *timestamppb.Timestamp) (Message, error) {
	if rename {
		return Encode(NodeRename, &NodeRenameMsg{
			TargetGlobalID: op.Node,
			NewName:        op.NewName,
			Position:       op.Position,
			Actor:          actor,
			Clock:          clock,
		})
	}
	return Encode(NodeMove, &NodeMoveMsg{
		TargetGlobalID:    op.Node,
		NewParentGlobalID: op.NewParent,
		NewName:           op.NewName,
		Position:          op.Position,
		Actor:             actor,
		Clock:             clock,
	})
}

// MoveTarget extracts just the target NodeGID from a NodeMove or
// NodeRename message, letting a caller look up the node's current
// parent (needed to call ToMoveOp on a NodeRename) before doing the
// full decode.
func (m Message) MoveTarget() (tree.NodeGID, error) {
	switch m.Kind {
	case NodeRename:
		var msg NodeRenameMsg
		if err := m.Decode(&msg); err != nil {
			return tree.NodeGID{}, err
		}
		return msg.TargetGlobalID, nil
	case NodeMove:
		var msg NodeMoveMsg
		if err := m.Decode(&msg); err != nil {
			return tree.NodeGID{}, err
		}
		return msg.TargetGlobalID, nil
	default:
		return tree.NodeGID{}, errors.Errorf("wire: %s is not a move message", m.Kind)
	}
}

// ToMoveOp reverses FromMoveOp for either NodeMove or NodeRename.
// NodeRename carries no explicit NewParentGlobalID; a rename leaves the
// node under its current parent, which IntegrateMove already handles by
// treating NewParent == the node's existing parent as a no-op move of
// the parent link.
func (m Message) ToMoveOp(currentParent tree.NodeGID) (tree.MoveOp, error) {
	switch m.Kind {
	case NodeRename:
		var msg NodeRenameMsg
		if err := m.Decode(&msg); err != nil {
			return tree.MoveOp{}, err
		}
		return tree.MoveOp{
			Node:      msg.TargetGlobalID,
			NewParent: currentParent,
			NewName:   msg.NewName,
			Position:  msg.Position,
		}, nil
	case NodeMove:
		var msg NodeMoveMsg
		if err := m.Decode(&msg); err != nil {
			return tree.MoveOp{}, err
		}
		return tree.MoveOp{
			Node:      msg.TargetGlobalID,
			NewParent: msg.NewParentGlobalID,
			NewName:   msg.NewName,
			Position:  msg.Position,
		}, nil
	default:
		return tree.MoveOp{}, errors.Errorf("wire: %s is not a move message", m.Kind)
	}
}

// FromDeleteOp converts a tree.DeleteOp into a NodeDelete Message.
func FromDeleteOp(op tree.DeleteOp, actor ids.PeerId, clock *timestamppb.Timestamp) (Message, error) {
	return Encode(NodeDelete, &NodeDeleteMsg{TargetGlobalID: op.Node, Actor: actor, Clock: clock})
}

// ToDeleteOp reverses FromDeleteOp.
func (m Message) ToDeleteOp() (tree.DeleteOp, error) {
	if m.Kind != NodeDelete {
		return tree.DeleteOp{}, errors.Errorf("wire: %s is not a delete message", m.Kind)
	}
	var msg NodeDeleteMsg
	if err := m.Decode(&msg); err != nil {
		return tree.DeleteOp{}, err
	}
	return tree.DeleteOp{Node: msg.TargetGlobalID}, nil
}

// FromTextInsertOp converts a content.TextInsertOp into a TextEdit Message.
func FromTextInsertOp(op content.TextInsertOp) (Message, error) {
	return Encode(TextEdit, &TextEditMsg{FileGlobalID: op.Node, Insert: &op.Op})
}

// FromTextDeleteOp converts a content.TextDeleteOp into a TextEdit Message.
func FromTextDeleteOp(op content.TextDeleteOp) (Message, error) {
	return Encode(TextEdit, &TextEditMsg{FileGlobalID: op.Node, Delete: &op.Op})
}

// ToTextOp reverses FromTextInsertOp/FromTextDeleteOp, returning whichever
// of the two the message actually carries as an interface{} holding a
// content.TextInsertOp or content.TextDeleteOp, for driver.Feed to
// type-switch on directly.
func (m Message) ToTextOp() (interface{}, error) {
	if m.Kind != TextEdit {
		return nil, errors.Errorf("wire: %s is not a text edit message", m.Kind)
	}
	var msg TextEditMsg
	if err := m.Decode(&msg); err != nil {
		return nil, err
	}
	switch {
	case msg.Insert != nil:
		return content.TextInsertOp{Node: msg.FileGlobalID, Op: *msg.Insert}, nil
	case msg.Delete != nil:
		return content.TextDeleteOp{Node: msg.FileGlobalID, Op: *msg.Delete}, nil
	default:
		return nil, errors.New("wire: text edit message carries neither insert nor delete")
	}
}

// FromBinaryWriteOp converts a content.BinaryWriteOp into a BinaryEdit Message.
func FromBinaryWriteOp(op content.BinaryWriteOp) (Message, error) {
	return Encode(BinaryEdit, &BinaryEditMsg{
		FileGlobalID: op.Node,
		Version:      op.Version,
		Writer:       op.Writer,
		Root:         op.Root,
		Size:         op.Size,
	})
}

// ToBinaryWriteOp reverses FromBinaryWriteOp.
func (m Message) ToBinaryWriteOp() (content.BinaryWriteOp, error) {
	if m.Kind != BinaryEdit {
		return content.BinaryWriteOp{}, errors.Errorf("wire: %s is not a binary edit message", m.Kind)
	}
	var msg BinaryEditMsg
	if err := m.Decode(&msg); err != nil {
		return content.BinaryWriteOp{}, err
	}
	return content.BinaryWriteOp{
		Node:    msg.FileGlobalID,
		Version: msg.Version,
		Writer:  msg.Writer,
		Root:    msg.Root,
		Size:    msg.Size,
	}, nil
}

// FromSymlinkWriteOp converts a content.SymlinkWriteOp into a SymlinkEdit Message.
func FromSymlinkWriteOp(op content.SymlinkWriteOp) (Message, error) {
	return Encode(SymlinkEdit, &SymlinkEditMsg{
		FileGlobalID: op.Node,
		Version:      op.Version,
		Writer:       op.Writer,
		Target:       op.Target,
	})
}

// ToSymlinkWriteOp reverses FromSymlinkWriteOp.
func (m Message) ToSymlinkWriteOp() (content.SymlinkWriteOp, error) {
	if m.Kind != SymlinkEdit {
		return content.SymlinkWriteOp{}, errors.Errorf("wire: %s is not a symlink edit message", m.Kind)
	}
	var msg SymlinkEditMsg
	if err := m.Decode(&msg); err != nil {
		return content.SymlinkWriteOp{}, err
	}
	return content.SymlinkWriteOp{
		Node:    msg.FileGlobalID,
		Version: msg.Version,
		Writer:  msg.Writer,
		Target:  msg.Target,
	}, nil
}

// FromCursorOp converts an annotate.CursorOp into a CursorOp Message.
func FromCursorOp(op annotate.CursorOp) (Message, error) {
	return Encode(CursorOp, &CursorOpMsg{CursorGlobalID: op.ID, FileGlobalID: op.Node, Offset: op.Offset})
}

// ToCursorOp reverses FromCursorOp.
func (m Message) ToCursorOp() (annotate.CursorOp, error) {
	if m.Kind != CursorOp {
		return annotate.CursorOp{}, errors.Errorf("wire: %s is not a cursor message", m.Kind)
	}
	var msg CursorOpMsg
	if err := m.Decode(&msg); err != nil {
		return annotate.CursorOp{}, err
	}
	return annotate.CursorOp{ID: msg.CursorGlobalID, Node: msg.FileGlobalID, Offset: msg.Offset}, nil
}

// FromSelectionOp converts an annotate.SelectionOp into a SelectionOp Message.
func FromSelectionOp(op annotate.SelectionOp) (Message, error) {
	return Encode(SelectionOp, &SelectionOpMsg{
		SelectionGlobalID: op.ID,
		FileGlobalID:      op.Node,
		Start:             op.Start,
		End:               op.End,
	})
}

// ToSelectionOp reverses FromSelectionOp.
func (m Message) ToSelectionOp() (annotate.SelectionOp, error) {
	if m.Kind != SelectionOp {
		return annotate.SelectionOp{}, errors.Errorf("wire: %s is not a selection message", m.Kind)
	}
	var msg SelectionOpMsg
	if err := m.Decode(&msg); err != nil {
		return annotate.SelectionOp{}, err
	}
	return annotate.SelectionOp{ID: msg.SelectionGlobalID, Node: msg.FileGlobalID, Start: msg.Start, End: msg.End}, nil
}
