package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"
)

// cat prints the current text content of the file at -path.
func (c maincmd) cat(ctx context.Context, fset *flag.FlagSet, args []string) error {
	var (
		sessionFlag = fset.String("session", "", "session id")
		pathFlag    = fset.String("path", "", "path of file to print")
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

	text, err := r.ReadText(node)
	if err != nil {
		return errors.Wrapf(err, "reading %s", *pathFlag)
	}

	fmt.Print(string(text))
	return nil
}
