package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"

	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/session"
)

// create mints a new session, checkpoints its empty initial state, and
// prints the session id a later subcommand should pass as -session.
func (c maincmd) create(ctx context.Context, fset *flag.FlagSet, args []string) error {
	if err := fset.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	sessionID := ids.NewSessionId()
	r := session.New(peer, sessionID, c.blobs)

	if err := c.save(ctx, r); err != nil {
		return errors.Wrap(err, "saving initial checkpoint")
	}

	fmt.Println(sessionID.String())
	return nil
}
