package main

import (
	"context"
	"flag"

	"github.com/pkg/errors"
)

// mkdir creates a new directory at -path within -session.
func (c maincmd) mkdir(ctx context.Context, fset *flag.FlagSet, args []string) error {
	var (
		sessionFlag = fset.String("session", "", "session id")
		pathFlag    = fset.String("path", "", "path of directory to create")
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

	parentPath, name := splitParent(*pathFlag)
	parent, err := resolvePath(r, parentPath)
	if err != nil {
		return errors.Wrapf(err, "resolving parent of %s", *pathFlag)
	}
	if _, err := r.CreateDirectory(parent, name); err != nil {
		return errors.Wrapf(err, "creating directory %s", *pathFlag)
	}

	return errors.Wrap(c.save(ctx, r), "saving checkpoint")
}
