// Package file implements a persist.Checkpointer backed by local-disk
// JSON files, one per session, serialized against concurrent writers
// with an advisory file lock.
package file

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/persist"
	"github.com/opencollab/corefs/wire"
)

var _ persist.Checkpointer = (*Store)(nil)

// Store is a file-based persist.Checkpointer storing data beneath root.
type Store struct {
	root string
}

// New produces a new Store storing checkpoints beneath root, which must
// already exist.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) dataPath(session ids.SessionId) string {
	return filepath.Join(s.root, session.String()+".json")
}

func (s *Store) lockPath(session ids.SessionId) string {
	return filepath.Join(s.root, session.String()+".lock")
}

// Latest implements persist.Checkpointer.
func (s *Store) Latest(_ context.Context, session ids.SessionId) (wire.OpBatch, error) {
	data, err := ioutil.ReadFile(s.dataPath(session))
	if os.IsNotExist(err) {
		return wire.OpBatch{}, persist.ErrNoCheckpoint
	}
	if err != nil {
		return wire.OpBatch{}, errors.Wrapf(err, "reading checkpoint for %s", session)
	}
	var batch wire.OpBatch
	if err := batch.UnmarshalBinary(data); err != nil {
		return wire.OpBatch{}, errors.Wrapf(err, "decoding checkpoint for %s", session)
	}
	return batch, nil
}

// Update implements persist.Checkpointer. It holds an exclusive
// advisory lock on the session's lock file for the duration of f, so
// unlike the optimistic locking used by persist/mem and persist/pg,
// concurrent Update calls for the same session simply queue rather than
// racing and one of them failing with ErrUpdateConflict.
func (s *Store) Update(ctx context.Context, session ids.SessionId, f persist.UpdateFunc) error {
	lockFile, err := os.OpenFile(s.lockPath(session), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrapf(err, "opening lock file for %s", session)
	}
	defer lockFile.Close()

	fl := flock.New(lockFile)
	if err := fl.Lock(); err != nil {
		return errors.Wrapf(err, "locking checkpoint for %s", session)
	}
	defer fl.Unlock()

	before, err := s.Latest(ctx, session)
	if err != nil && !errors.Is(err, persist.ErrNoCheckpoint) {
		return err
	}

	next, err := f(before)
	if err != nil {
		return err
	}

	data, err := next.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "encoding checkpoint")
	}

	tmp := s.dataPath(session) + ".tmp"
	if err := ioutil.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "writing checkpoint for %s", session)
	}
	return errors.Wrap(os.Rename(tmp, s.dataPath(session)), "committing checkpoint")
}

func init() {
	persist.Register("file", func(_ context.Context, conf map[string]interface{}) (persist.Checkpointer, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
