package main

import (
	"context"
	"flag"

	"github.com/pkg/errors"
)

// write inserts -text into the text file at -path within -session, at
// -offset (default: the end of the file's current content).
func (c maincmd) write(ctx context.Context, fset *flag.FlagSet, args []string) error {
	var (
		sessionFlag = fset.String("session", "", "session id")
		pathFlag    = fset.String("path", "", "path of file to edit")
		textFlag    = fset.String("text", "", "text to insert")
		offsetFlag  = fset.Int("offset", -1, "byte offset to insert at (default: end of file)")
	)
	if err := fset.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *sessionFlag == "" || *pathFlag == "" {
		return errors.New("must supply -session and -path")
	}

	sessionID, err := parseSession(*sessionFlag)
	if err != nil {
		return err
	}
	r, err := c.load(ctx, sessionID)
	if err != nil {
		return err
	}

	node, err := resolvePath(r, *pathFlag)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", *pathFlag)
	}

	offset := *offsetFlag
	if offset < 0 {
		current, err := r.ReadText(node)
		if err != nil {
			return errors.Wrapf(err, "reading %s", *pathFlag)
		}
		offset = len(current)
	}

	if err := r.InsertText(node, offset, []byte(*textFlag)); err != nil {
		return errors.Wrapf(err, "inserting text into %s", *pathFlag)
	}

	return errors.Wrap(c.save(ctx, r), "saving checkpoint")
}
