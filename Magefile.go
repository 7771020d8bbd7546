//go:build mage
// +build mage

package main

import (
	"context"

	"github.com/bobg/mghash"
	"github.com/bobg/mghash/sqlite"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/pkg/errors"
)

var Default = Build

func Build() error {
	mg.Deps(Generate)
	return sh.Run(mg.GoCmd(), "build", "./...")
}

func Test() error {
	mg.Deps(Generate)
	args := []string{"test"}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	args = append(args, "./...")
	return sh.Run(mg.GoCmd(), args...)
}

func Generate(ctx context.Context) error {
	db, err := sqlite.Open(ctx, "hashdb.sqlite")
	if err != nil {
		return errors.Wrap(err, "opening hashdb.sqlite")
	}
	defer db.Close()

	// anchor.pb.go is the only remaining protoc-generated file in this
	// tree; schema, split, and the content-addressed store persist their
	// node shapes as canonical JSON instead (see schema/codec.go,
	// split/types.go), and there is no RPC transport anymore.
	anchor := mghash.JRule{
		Sources: []string{"anchor/anchor.proto"},
		Targets: []string{"anchor/anchor.pb.go"},
		Command: []string{"protoc", "-Ianchor", "--go_out=anchor", "anchor/anchor.proto"},
	}

	mg.CtxDeps(
		ctx,
		&mghash.Fn{DB: db, Rule: anchor},
	)

	return nil

}
