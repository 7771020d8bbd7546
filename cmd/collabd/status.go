package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"
)

// status reports the current checkpoint depth and any open name
// conflicts for -session, without mutating anything.
func (c maincmd) status(ctx context.Context, fset *flag.FlagSet, args []string) error {
	sessionFlag := fset.String("session", "", "session id")
	if err := fset.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *sessionFlag == "" {
		return errors.New("must supply -session")
	}

	sessionID, err := parseSession(*sessionFlag)
	if err != nil {
		return err
	}

	snap, err := c.checkpoints.Latest(ctx, sessionID)
	if err != nil {
		return errors.Wrapf(err, "loading checkpoint for session %s", sessionID)
	}
	fmt.Printf("%d ops applied\n", len(snap.Messages))

	r, err := c.load(ctx, sessionID)
	if err != nil {
		return err
	}
	conflicts := r.Conflicts()
	fmt.Printf("%d open conflicts\n", len(conflicts))
	for _, conflict := range conflicts {
		fmt.Printf("  %+v\n", conflict)
	}
	return nil
}
