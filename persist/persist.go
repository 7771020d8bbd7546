// Package persist is a registry for Checkpointer factories, the
// interface a host uses to save and restore a session.Replica's state
// across restarts. It mirrors the store package's registry, but for
// checkpoint backends rather than blob stores.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/wire"
)

// ErrNoCheckpoint is returned by Checkpointer.Latest when no checkpoint
// has ever been saved for a session.
var ErrNoCheckpoint = errors.New("no checkpoint")

// ErrUpdateConflict is returned by Checkpointer.Update when another
// caller's Update committed a newer checkpoint in the meantime, the same
// "optimistic locking" contract as anchor.ErrUpdateConflict: the caller
// should re-read the latest checkpoint and retry f against it.
var ErrUpdateConflict = errors.New("checkpoint update conflict")

// UpdateFunc is the callback passed to Checkpointer.Update. It receives
// the session's current checkpoint, the zero wire.OpBatch if none has
// been saved yet, and returns the one to store in its place.
type UpdateFunc = func(wire.OpBatch) (wire.OpBatch, error)

// Checkpointer saves and restores session.Replica state, keyed by
// ids.SessionId. A checkpoint is a wire.OpBatch: the full log of
// messages a session.Replica has originated or integrated, which
// session.Restore replays to reconstruct that replica's tree, content,
// and annotate state.
type Checkpointer interface {
	// Latest returns the most recently saved checkpoint for session, or
	// ErrNoCheckpoint if none has been saved yet.
	Latest(ctx context.Context, session ids.SessionId) (wire.OpBatch, error)

	// Update saves a new checkpoint for session, using optimistic
	// locking: implementations call f with the session's current
	// checkpoint and store the batch it returns, but if some other
	// Update call for the same session has committed since f started,
	// Update returns ErrUpdateConflict instead of overwriting it.
	Update(ctx context.Context, session ids.SessionId, f UpdateFunc) error
}

// Factory constructs a Checkpointer from a JSON configuration map, the
// same shape store.Factory uses for blob stores.
type Factory = func(context.Context, map[string]interface{}) (Checkpointer, error)

var registry = make(map[string]Factory)

// Register registers f as a factory for creating checkpoint backends of
// the type named by key. It is normally called from an init function in
// the backend's package.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create creates a Checkpointer of the type indicated by key, using the
// supplied configuration.
func Create(ctx context.Context, key string, conf map[string]interface{}) (Checkpointer, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// FromConfigFile loads a config file in JSON format from the given
// filename. It creates a Checkpointer of the type indicated by its
// `type` key; the rest of the JSON object is the config for a backend
// of that type.
func FromConfigFile(ctx context.Context, filename string) (Checkpointer, error) {
	var conf map[string]interface{}
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", filename)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	if err := dec.Decode(&conf); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", filename)
	}

	typ, ok := conf["type"].(string)
	if !ok {
		return nil, fmt.Errorf("config file %s missing `type` parameter", filename)
	}
	return Create(ctx, typ, conf)
}
