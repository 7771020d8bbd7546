package wire

import (
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/opencollab/corefs/annotate"
	"github.com/opencollab/corefs/content"
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/text"
	"github.com/opencollab/corefs/tree"
)

func TestCreateOpRoundTrip(t *testing.T) {
	clock := timestamppb.New(time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC))
	creator := ids.PeerId(1)

	dirOp := tree.CreateOp{
		Node:     tree.NodeGID{Kind: tree.KindDirectory, Creator: creator, Sequence: 1},
		Parent:   tree.NodeGID{Kind: tree.KindDirectory, Creator: creator, Sequence: 0},
		Name:     ids.NodeName("docs"),
		Position: text.ID{Clock: 1, Peer: creator},
	}
	msg, err := FromCreateOp(dirOp, creator, clock)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Kind != DirectoryCreate {
		t.Fatalf("got kind %s, want DirectoryCreate", msg.Kind)
	}
	got, err := msg.ToCreateOp()
	if err != nil {
		t.Fatal(err)
	}
	if got != dirOp {
		t.Errorf("got %+v, want %+v", got, dirOp)
	}

	fileOp := tree.CreateOp{
		Node:     tree.NodeGID{Kind: tree.KindFile, Creator: creator, Sequence: 2},
		Parent:   dirOp.Node,
		Name:     ids.NodeName("notes.txt"),
		Variant:  tree.ContentText,
		Position: text.ID{Clock: 2, Peer: creator},
	}
	msg, err = FromCreateOp(fileOp, creator, clock)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Kind != FileCreate {
		t.Fatalf("got kind %s, want FileCreate", msg.Kind)
	}
	got, err = msg.ToCreateOp()
	if err != nil {
		t.Fatal(err)
	}
	if got != fileOp {
		t.Errorf("got %+v, want %+v", got, fileOp)
	}
}

func TestMoveOpRoundTrip(t *testing.T) {
	peer := ids.PeerId(7)
	clock := timestamppb.New(time.Now())
	node := tree.NodeGID{Kind: tree.KindFile, Creator: peer, Sequence: 3}
	parent := tree.NodeGID{Kind: tree.KindDirectory, Creator: peer, Sequence: 0}

	moveOp := tree.MoveOp{
		Node:      node,
		NewParent: parent,
		NewName:   ids.NodeName("moved.txt"),
		Position:  text.ID{Clock: 9, Peer: peer},
	}
	msg, err := FromMoveOp(moveOp, false, peer, clock)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Kind != NodeMove {
		t.Fatalf("got kind %s, want NodeMove", msg.Kind)
	}
	got, err := msg.ToMoveOp(parent)
	if err != nil {
		t.Fatal(err)
	}
	if got != moveOp {
		t.Errorf("got %+v, want %+v", got, moveOp)
	}

	renameOp := tree.MoveOp{
		Node:      node,
		NewParent: parent,
		NewName:   ids.NodeName("renamed.txt"),
		Position:  text.ID{Clock: 10, Peer: peer},
	}
	msg, err = FromMoveOp(renameOp, true, peer, clock)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Kind != NodeRename {
		t.Fatalf("got kind %s, want NodeRename", msg.Kind)
	}
	got, err = msg.ToMoveOp(parent)
	if err != nil {
		t.Fatal(err)
	}
	if got != renameOp {
		t.Errorf("got %+v, want %+v", got, renameOp)
	}
}

func TestDeleteOpRoundTrip(t *testing.T) {
	peer := ids.PeerId(4)
	op := tree.DeleteOp{Node: tree.NodeGID{Kind: tree.KindFile, Creator: peer, Sequence: 5}}
	msg, err := FromDeleteOp(op, peer, timestamppb.Now())
	if err != nil {
		t.Fatal(err)
	}
	got, err := msg.ToDeleteOp()
	if err != nil {
		t.Fatal(err)
	}
	if got != op {
		t.Errorf("got %+v, want %+v", got, op)
	}
}

func TestTextOpRoundTrip(t *testing.T) {
	node := tree.NodeGID{Kind: tree.KindFile, Creator: 1, Sequence: 1}

	insertOp := content.TextInsertOp{
		Node: node,
		Op: text.InsertionOp{
			Bytes: []text.Insertion{{ID: text.ID{Clock: 1, Peer: 1}, Origin: text.Zero, Value: 'a'}},
		},
	}
	msg, err := FromTextInsertOp(insertOp)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := msg.ToTextOp()
	if err != nil {
		t.Fatal(err)
	}
	got, ok := decoded.(content.TextInsertOp)
	if !ok {
		t.Fatalf("got %T, want content.TextInsertOp", decoded)
	}
	if got.Node != insertOp.Node || len(got.Op.Bytes) != 1 || got.Op.Bytes[0] != insertOp.Op.Bytes[0] {
		t.Errorf("got %+v, want %+v", got, insertOp)
	}

	deleteOp := content.TextDeleteOp{Node: node, Op: text.DeletionOp{IDs: []text.ID{{Clock: 1, Peer: 1}}}}
	msg, err = FromTextDeleteOp(deleteOp)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err = msg.ToTextOp()
	if err != nil {
		t.Fatal(err)
	}
	gotDel, ok := decoded.(content.TextDeleteOp)
	if !ok {
		t.Fatalf("got %T, want content.TextDeleteOp", decoded)
	}
	if gotDel.Node != deleteOp.Node || len(gotDel.Op.IDs) != 1 || gotDel.Op.IDs[0] != deleteOp.Op.IDs[0] {
		t.Errorf("got %+v, want %+v", gotDel, deleteOp)
	}
}

func TestBinaryAndSymlinkRoundTrip(t *testing.T) {
	node := tree.NodeGID{Kind: tree.KindFile, Creator: 2, Sequence: 1}

	bop := content.BinaryWriteOp{Node: node, Version: 3, Writer: 2, Root: "deadbeef", Size: 128}
	msg, err := FromBinaryWriteOp(bop)
	if err != nil {
		t.Fatal(err)
	}
	gotB, err := msg.ToBinaryWriteOp()
	if err != nil {
		t.Fatal(err)
	}
	if gotB != bop {
		t.Errorf("got %+v, want %+v", gotB, bop)
	}

	sop := content.SymlinkWriteOp{Node: node, Target: "../elsewhere", Version: 1, Writer: 2}
	msg, err = FromSymlinkWriteOp(sop)
	if err != nil {
		t.Fatal(err)
	}
	gotS, err := msg.ToSymlinkWriteOp()
	if err != nil {
		t.Fatal(err)
	}
	if gotS != sop {
		t.Errorf("got %+v, want %+v", gotS, sop)
	}
}

func TestCursorAndSelectionRoundTrip(t *testing.T) {
	node := tree.NodeGID{Kind: tree.KindFile, Creator: 5, Sequence: 1}

	cop := annotate.CursorOp{ID: annotate.CursorID{Creator: 5, Sequence: 1}, Node: node, Offset: 12}
	msg, err := FromCursorOp(cop)
	if err != nil {
		t.Fatal(err)
	}
	gotC, err := msg.ToCursorOp()
	if err != nil {
		t.Fatal(err)
	}
	if gotC != cop {
		t.Errorf("got %+v, want %+v", gotC, cop)
	}

	sop := annotate.SelectionOp{ID: annotate.SelectionID{Creator: 5, Sequence: 2}, Node: node, Start: 3, End: 9}
	msg, err = FromSelectionOp(sop)
	if err != nil {
		t.Fatal(err)
	}
	gotS, err := msg.ToSelectionOp()
	if err != nil {
		t.Fatal(err)
	}
	if gotS != sop {
		t.Errorf("got %+v, want %+v", gotS, sop)
	}
}

func TestOpBatchRoundTrip(t *testing.T) {
	peer := ids.PeerId(1)
	createMsg, err := FromCreateOp(tree.CreateOp{
		Node:     tree.NodeGID{Kind: tree.KindDirectory, Creator: peer, Sequence: 1},
		Parent:   tree.NodeGID{Kind: tree.KindDirectory, Creator: peer, Sequence: 0},
		Name:     ids.NodeName("a"),
		Position: text.ID{Clock: 1, Peer: peer},
	}, peer, timestamppb.Now())
	if err != nil {
		t.Fatal(err)
	}

	batch := OpBatch{From: peer, Messages: []Message{createMsg}}
	data, err := batch.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	var got OpBatch
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if got.From != batch.From || len(got.Messages) != 1 || got.Messages[0].Kind != DirectoryCreate {
		t.Errorf("got %+v, want %+v", got, batch)
	}
}

func TestSyncRequestResponseRoundTrip(t *testing.T) {
	req := SyncRequest{
		From:    ids.PeerId(1),
		Session: ids.NewSessionId(),
		Known:   map[ids.PeerId]uint64{2: 5, 3: 9},
	}
	data, err := req.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var gotReq SyncRequest
	if err := gotReq.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if gotReq.From != req.From || gotReq.Session != req.Session || len(gotReq.Known) != 2 {
		t.Errorf("got %+v, want %+v", gotReq, req)
	}

	resp := SyncResponse{Snapshot: []byte("snap"), Batch: OpBatch{From: req.From}}
	data, err = resp.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var gotResp SyncResponse
	if err := gotResp.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if string(gotResp.Snapshot) != "snap" || gotResp.Batch.From != req.From {
		t.Errorf("got %+v, want %+v", gotResp, resp)
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	hb := Heartbeat{From: ids.PeerId(9), At: timestamppb.Now()}
	data, err := hb.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var got Heartbeat
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if got.From != hb.From {
		t.Errorf("got %+v, want %+v", got, hb)
	}
}
