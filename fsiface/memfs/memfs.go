// Package memfs is a small in-memory fsiface.FS, used only by this
// module's own tests as a stand-in for a real on-disk or networked
// implementation.
package memfs

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/opencollab/corefs/errs"
	"github.com/opencollab/corefs/fsiface"
)

type node struct {
	kind     fsiface.NodeKind
	data     []byte            // File
	target   string            // Symlink
	children map[string]string // Directory: name -> child path
	modTime  time.Time
}

// FS is an in-memory fsiface.FS. The zero value is not usable; use New.
type FS struct {
	mu       sync.Mutex
	nodes    map[string]*node
	watchers map[string][]chan fsiface.DirectoryEvent
}

const watcherBuffer = 64

// New creates an empty FS with just a root directory.
func New() *FS {
	return &FS{
		nodes:    map[string]*node{"": {kind: fsiface.Directory, children: map[string]string{}}},
		watchers: map[string][]chan fsiface.DirectoryEvent{},
	}
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func dirname(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ""
	}
	return path[:i]
}

func (f *FS) metadata(path string, n *node) fsiface.Metadata {
	name := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		name = path[i+1:]
	}
	size := int64(0)
	if n.kind == fsiface.File {
		size = int64(len(n.data))
	} else if n.kind == fsiface.Symlink {
		size = int64(len(n.target))
	}
	return fsiface.Metadata{Name: name, Kind: n.kind, Size: size, ModTime: n.modTime}
}

// NodeAtPath implements fsiface.FS.
func (f *FS) NodeAtPath(_ context.Context, path string) (*fsiface.FsNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[path]
	if !ok {
		return nil, errors.Wrapf(errs.NotFound, "node at %q", path)
	}
	return &fsiface.FsNode{Path: path, Metadata: f.metadata(path, n)}, nil
}

// List implements fsiface.FS.
func (f *FS) List(_ context.Context, path string) ([]fsiface.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[path]
	if !ok {
		return nil, errors.Wrapf(errs.NotFound, "directory at %q", path)
	}
	if n.kind != fsiface.Directory {
		return nil, errors.Errorf("%q is not a directory", path)
	}
	result := make([]fsiface.Metadata, 0, len(n.children))
	for _, childPath := range n.children {
		result = append(result, f.metadata(childPath, f.nodes[childPath]))
	}
	return result, nil
}

func (f *FS) create(parent, name string, kind fsiface.NodeKind, n *node) (*fsiface.FsNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pd, ok := f.nodes[parent]
	if !ok || pd.kind != fsiface.Directory {
		return nil, errors.Wrapf(errs.NotFound, "parent directory %q", parent)
	}
	path := join(parent, name)
	if _, exists := f.nodes[path]; exists {
		return nil, errors.Errorf("%q already exists", path)
	}
	n.modTime = time.Now()
	f.nodes[path] = n
	pd.children[name] = path

	f.publish(path, fsiface.DirectoryEvent{Kind: fsiface.Creation, Path: path, Parent: parent})
	return &fsiface.FsNode{Path: path, Metadata: f.metadata(path, n)}, nil
}

// CreateFile implements fsiface.FS.
func (f *FS) CreateFile(_ context.Context, parent, name string) (*fsiface.FsNode, error) {
	return f.create(parent, name, fsiface.File, &node{kind: fsiface.File})
}

// CreateDirectory implements fsiface.FS.
func (f *FS) CreateDirectory(_ context.Context, parent, name string) (*fsiface.FsNode, error) {
	return f.create(parent, name, fsiface.Directory, &node{kind: fsiface.Directory, children: map[string]string{}})
}

// CreateSymlink implements fsiface.FS.
func (f *FS) CreateSymlink(_ context.Context, parent, name, target string) (*fsiface.FsNode, error) {
	return f.create(parent, name, fsiface.Symlink, &node{kind: fsiface.Symlink, target: target})
}

// Read implements fsiface.FS.
func (f *FS) Read(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[path]
	if !ok {
		return nil, errors.Wrapf(errs.NotFound, "file at %q", path)
	}
	if n.kind != fsiface.File {
		return nil, errors.Errorf("%q is not a file", path)
	}
	out := make([]byte, len(n.data))
	copy(out, n.data)
	return out, nil
}

// WriteChunks implements fsiface.FS.
func (f *FS) WriteChunks(ctx context.Context, path string, chunks <-chan []byte) error {
	var data []byte
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				f.mu.Lock()
				n, exists := f.nodes[path]
				if !exists || n.kind != fsiface.File {
					f.mu.Unlock()
					return errors.Wrapf(errs.NotFound, "file at %q", path)
				}
				n.data = data
				n.modTime = time.Now()
				f.mu.Unlock()
				return nil
			}
			data = append(data, chunk...)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Move implements fsiface.FS.
func (f *FS) Move(_ context.Context, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[src]
	if !ok {
		return errors.Wrapf(errs.NotFound, "node at %q", src)
	}
	if _, exists := f.nodes[dst]; exists {
		return errors.Errorf("%q already exists", dst)
	}
	dstParent := dirname(dst)
	pd, ok := f.nodes[dstParent]
	if !ok || pd.kind != fsiface.Directory {
		return errors.Wrapf(errs.NotFound, "destination parent %q", dstParent)
	}

	srcParent := dirname(src)
	if old, ok := f.nodes[srcParent]; ok {
		for name, p := range old.children {
			if p == src {
				delete(old.children, name)
				break
			}
		}
	}

	prefix := src + "/"
	for p, moved := range f.nodes {
		if p == src {
			continue
		}
		if strings.HasPrefix(p, prefix) {
			delete(f.nodes, p)
			f.nodes[dst+p[len(src):]] = moved
		}
	}
	delete(f.nodes, src)
	f.nodes[dst] = n
	dstName := dst
	if dstParent != "" {
		dstName = dst[len(dstParent)+1:]
	}
	pd.children[dstName] = dst

	f.publish(dst, fsiface.DirectoryEvent{Kind: fsiface.Move, OldPath: src, NewPath: dst, MoveRoot: dst})
	return nil
}

// Delete implements fsiface.FS.
func (f *FS) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.nodes[path]; !ok {
		return errors.Wrapf(errs.NotFound, "node at %q", path)
	}
	parent := dirname(path)
	if pd, ok := f.nodes[parent]; ok {
		for name, p := range pd.children {
			if p == path {
				delete(pd.children, name)
				break
			}
		}
	}
	prefix := path + "/"
	for p := range f.nodes {
		if strings.HasPrefix(p, prefix) {
			delete(f.nodes, p)
		}
	}
	delete(f.nodes, path)

	f.publish(path, fsiface.DirectoryEvent{Kind: fsiface.Deletion, Path: path, DeletionRoot: path})
	return nil
}

// Watch implements fsiface.FS.
func (f *FS) Watch(ctx context.Context, path string) (<-chan fsiface.DirectoryEvent, error) {
	f.mu.Lock()
	n, ok := f.nodes[path]
	if !ok || n.kind != fsiface.Directory {
		f.mu.Unlock()
		return nil, errors.Wrapf(errs.NotFound, "directory at %q", path)
	}
	ch := make(chan fsiface.DirectoryEvent, watcherBuffer)
	f.watchers[path] = append(f.watchers[path], ch)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.watchers[path]
		for i, sub := range subs {
			if sub == ch {
				f.watchers[path] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// publish delivers ev to every watcher whose watched directory is an
// ancestor of (or exactly) affected, called with f.mu held.
func (f *FS) publish(affected string, ev fsiface.DirectoryEvent) {
	for dir, subs := range f.watchers {
		if dir != affected && !strings.HasPrefix(affected, dir+"/") && dir != "" {
			continue
		}
		for _, ch := range subs {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
