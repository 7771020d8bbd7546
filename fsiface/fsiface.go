// Package fsiface defines the filesystem abstraction a session.Replica
// uses as its source of truth on disk: it reads an existing directory
// tree to seed a freshly created replica, applies the effects of
// integrated remote ops back to local storage, and watches for local
// edits to turn into outgoing ops. A real on-disk, networked, or
// editor-native implementation is an external collaborator; this
// package only defines the interface plus fsiface/memfs, a small
// in-memory implementation used by this module's own tests.
package fsiface

import (
	"context"
	"time"
)

// NodeKind distinguishes the three node shapes an FS can hold.
type NodeKind uint8

const (
	// File marks a node holding either text or binary byte content.
	File NodeKind = iota
	// Directory marks a node holding named children.
	Directory
	// Symlink marks a node holding a target path string.
	Symlink
)

// Metadata is the information List and NodeAtPath report about one node,
// without fetching its content.
type Metadata struct {
	Name    string
	Kind    NodeKind
	Size    int64
	ModTime time.Time
}

// FsNode is a located node: its path plus its metadata.
type FsNode struct {
	Path string
	Metadata
}

// EventKind discriminates the payload carried by a DirectoryEvent.
type EventKind uint8

const (
	// Creation reports a new node appearing under a watched directory.
	Creation EventKind = iota
	// Deletion reports a node disappearing.
	Deletion
	// Move reports a node renamed or relocated.
	Move
)

// DirectoryEvent is one change observed by Watch. Only the fields
// relevant to Kind are populated.
//
// DeletionRoot and MoveRoot name the topmost path of a recursive
// delete or move when Path (or NewPath) names a descendant swept along
// with it, letting a subscriber collapse a burst of per-descendant
// events into the single structural change that caused them; they equal
// Path (NewPath) for a delete or move that isn't part of a larger one.
type DirectoryEvent struct {
	Kind EventKind

	// Creation (Path is also set for Deletion)
	Path   string
	Parent string

	// Deletion
	DeletionRoot string

	// Move
	OldPath, NewPath string
	MoveRoot         string
}

// FS is the filesystem a Replica reads from and writes to. Every method
// takes a path relative to the FS's root, using "/" as the separator and
// "" (not ".") to name the root itself.
type FS interface {
	// NodeAtPath resolves path to its node, or returns an error wrapping
	// errs.NotFound if no node is there.
	NodeAtPath(ctx context.Context, path string) (*FsNode, error)

	// List returns the immediate children of the directory at path.
	List(ctx context.Context, path string) ([]Metadata, error)

	// CreateFile, CreateDirectory, and CreateSymlink each create one new
	// node named name under the directory at parent. CreateSymlink's
	// target is stored verbatim, uninterpreted.
	CreateFile(ctx context.Context, parent, name string) (*FsNode, error)
	CreateDirectory(ctx context.Context, parent, name string) (*FsNode, error)
	CreateSymlink(ctx context.Context, parent, name, target string) (*FsNode, error)

	// Read returns the whole current content of the file at path.
	Read(ctx context.Context, path string) ([]byte, error)

	// WriteChunks replaces the file at path's content with the
	// concatenation of chunks, read until the channel is closed.
	WriteChunks(ctx context.Context, path string, chunks <-chan []byte) error

	// Move relocates (and/or renames) the node at src to dst, which must
	// not already exist.
	Move(ctx context.Context, src, dst string) error

	// Delete removes the node at path. Deleting a directory removes its
	// descendants too.
	Delete(ctx context.Context, path string) error

	// Watch streams DirectoryEvents for path and its descendants until
	// ctx is cancelled, at which point the returned channel is closed.
	Watch(ctx context.Context, path string) (<-chan DirectoryEvent, error)
}
