package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"
)

// ls lists the visible children of the directory at -path.
func (c maincmd) ls(ctx context.Context, fset *flag.FlagSet, args []string) error {
	var (
		sessionFlag = fset.String("session", "", "session id")
		pathFlag    = fset.String("path", "", "path of directory to list")
	)
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
	r, err := c.load(ctx, sessionID)
	if err != nil {
		return err
	}

	dir, err := resolvePath(r, *pathFlag)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", *pathFlag)
	}

	names, err := r.Children(dir)
	if err != nil {
		return errors.Wrapf(err, "listing %s", *pathFlag)
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}
