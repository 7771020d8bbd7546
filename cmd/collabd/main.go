// Command collabd is a single-user CLI for bootstrapping, editing, and
// checkpointing a collaborative session's filesystem tree, built to
// exercise the session, persist, tree, and content packages end to end.
// It operates on one replica at a time, loading its latest checkpoint
// (if any) before a mutation and saving a new one after; it does not
// implement the network transport or editor adapter a real multi-peer
// host would add on top of session.Replica.
package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/bobg/subcmd"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/opencollab/corefs/anchor"
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/persist"
	_ "github.com/opencollab/corefs/persist/checkpoint"
	_ "github.com/opencollab/corefs/persist/file"
	_ "github.com/opencollab/corefs/persist/gcs"
	_ "github.com/opencollab/corefs/persist/lru"
	_ "github.com/opencollab/corefs/persist/mem"
	_ "github.com/opencollab/corefs/persist/pg"
	_ "github.com/opencollab/corefs/persist/sqlite3"
	"github.com/opencollab/corefs/session"
	"github.com/opencollab/corefs/store"
	_ "github.com/opencollab/corefs/store/file"
	_ "github.com/opencollab/corefs/store/gcs"
	_ "github.com/opencollab/corefs/store/lru"
	_ "github.com/opencollab/corefs/store/mem"
	_ "github.com/opencollab/corefs/store/pg"
	_ "github.com/opencollab/corefs/store/sqlite3"
	"github.com/opencollab/corefs/tree"
	"github.com/opencollab/corefs/wire"
)

// peer is the fixed PeerId this CLI acts as. A real host mints one
// PeerId per participant; collabd only ever drives one replica at a
// time on behalf of a single local user, so a constant id is enough to
// satisfy the wire ops it originates.
const peer = ids.PeerId(1)

type maincmd struct {
	checkpoints persist.Checkpointer
	blobs       anchor.Store
}

func main() {
	var (
		checkpointConfig = flag.String("checkpoint-config", "collabd-checkpoint.json", "path to checkpoint backend config file")
		storeConfig      = flag.String("store-config", "collabd-store.json", "path to blob store config file")
	)
	flag.Parse()

	ctx := context.Background()

	checkpoints, err := persist.FromConfigFile(ctx, *checkpointConfig)
	if err != nil {
		log.Fatalf("loading checkpoint config %s: %s", *checkpointConfig, err)
	}

	blobStore, err := store.FromConfigFile(ctx, *storeConfig)
	if err != nil {
		log.Fatalf("loading store config %s: %s", *storeConfig, err)
	}
	blobs, ok := blobStore.(anchor.Store)
	if !ok {
		log.Fatal("store configured in -store-config is not an anchor.Store")
	}

	err = subcmd.Run(ctx, maincmd{checkpoints: checkpoints, blobs: blobs}, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"create": c.create,
		"mkdir":  c.mkdir,
		"touch":  c.touch,
		"write":  c.write,
		"cat":    c.cat,
		"ls":     c.ls,
		"status": c.status,
	}
}

func parseSession(s string) (ids.SessionId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ids.SessionId{}, errors.Wrapf(err, "parsing session id %s", s)
	}
	return ids.SessionId(u), nil
}

// load restores the replica for session from its latest checkpoint.
func (c maincmd) load(ctx context.Context, sessionID ids.SessionId) (*session.Replica, error) {
	snap, err := c.checkpoints.Latest(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrapf(err, "loading checkpoint for session %s", sessionID)
	}
	return session.Restore(ctx, peer, sessionID, c.blobs, snap)
}

// save persists r's current full state as the new checkpoint for its session.
func (c maincmd) save(ctx context.Context, r *session.Replica) error {
	snap := r.Snapshot()
	return c.checkpoints.Update(ctx, r.Session(), func(wire.OpBatch) (wire.OpBatch, error) {
		return snap, nil
	})
}

// resolvePath walks path, a "/"-separated name sequence rooted at r's
// project root, returning the NodeGID it names.
func resolvePath(r *session.Replica, path string) (tree.NodeGID, error) {
	node := r.Root()
	path = strings.Trim(path, "/")
	if path == "" {
		return node, nil
	}
	for _, part := range strings.Split(path, "/") {
		if err := ids.ValidateNodeName(part); err != nil {
			return tree.NodeGID{}, err
		}
		next, ok, err := r.Lookup(node, ids.NodeName(part))
		if err != nil {
			return tree.NodeGID{}, err
		}
		if !ok {
			return tree.NodeGID{}, errors.Errorf("no such path %s", path)
		}
		node = next
	}
	return node, nil
}

// splitParent splits path into its parent directory and final component.
func splitParent(path string) (string, ids.NodeName) {
	path = strings.Trim(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", ids.NodeName(path)
	}
	return path[:idx], ids.NodeName(path[idx+1:])
}
