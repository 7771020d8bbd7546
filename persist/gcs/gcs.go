// Package gcs implements a persist.Checkpointer on Google Cloud
// Storage, using object generation preconditions for optimistic
// locking instead of a version column.
package gcs

import (
	"context"
	stderrs "errors"
	"io/ioutil"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/persist"
	"github.com/opencollab/corefs/wire"
)

var _ persist.Checkpointer = (*Store)(nil)

// Store is a Google Cloud Storage-based persist.Checkpointer. Each
// session's checkpoint is one object, named by its session id.
type Store struct {
	bucket *storage.BucketHandle
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

func objName(session ids.SessionId) string {
	return "checkpoints/" + session.String()
}

// Latest implements persist.Checkpointer.
func (s *Store) Latest(ctx context.Context, session ids.SessionId) (wire.OpBatch, error) {
	obj := s.bucket.Object(objName(session))
	r, err := obj.NewReader(ctx)
	if err == storage.ErrObjectNotExist {
		return wire.OpBatch{}, persist.ErrNoCheckpoint
	}
	if err != nil {
		return wire.OpBatch{}, errors.Wrapf(err, "reading checkpoint for %s", session)
	}
	defer r.Close()

	data, err := ioutil.ReadAll(r)
	if err != nil {
		return wire.OpBatch{}, errors.Wrapf(err, "reading checkpoint body for %s", session)
	}
	var batch wire.OpBatch
	return batch, errors.Wrap(batch.UnmarshalBinary(data), "decoding checkpoint")
}

// Update implements persist.Checkpointer, using GCS's object generation
// number as the optimistic-lock token: the write is conditioned on the
// generation observed when the checkpoint was read, and GCS rejects it
// with a precondition-failed error if some other writer has committed a
// newer generation in the meantime.
func (s *Store) Update(ctx context.Context, session ids.SessionId, f persist.UpdateFunc) error {
	obj := s.bucket.Object(objName(session))

	attrs, err := obj.Attrs(ctx)
	var (
		before     wire.OpBatch
		generation int64
	)
	switch {
	case err == storage.ErrObjectNotExist:
		generation = 0
	case err != nil:
		return errors.Wrapf(err, "getting attrs for %s", session)
	default:
		generation = attrs.Generation
		r, err := obj.NewReader(ctx)
		if err != nil {
			return errors.Wrapf(err, "reading checkpoint for %s", session)
		}
		data, err := ioutil.ReadAll(r)
		r.Close()
		if err != nil {
			return errors.Wrapf(err, "reading checkpoint body for %s", session)
		}
		if err := before.UnmarshalBinary(data); err != nil {
			return errors.Wrap(err, "decoding checkpoint")
		}
	}

	next, err := f(before)
	if err != nil {
		return err
	}
	data, err := next.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "encoding checkpoint")
	}

	var cond storage.Conditions
	if generation == 0 {
		cond = storage.Conditions{DoesNotExist: true}
	} else {
		cond = storage.Conditions{GenerationMatch: generation}
	}

	w := obj.If(cond).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return errors.Wrap(err, "writing checkpoint")
	}
	err = w.Close()
	var gerr *googleapi.Error
	if stderrs.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return persist.ErrUpdateConflict
	}
	return errors.Wrap(err, "committing checkpoint")
}

func init() {
	persist.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (persist.Checkpointer, error) {
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		client, err := storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
		if err != nil {
			return nil, errors.Wrap(err, "creating storage client")
		}
		return New(client.Bucket(bucketName)), nil
	})
}
