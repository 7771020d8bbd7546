package tree

// Dir returns the Directory at id, or nil if id is out of range. Use a
// DirView instead when the caller needs to detect whether the directory's
// children changed after the view was taken.
func (t *Tree) Dir(id DirID) *Directory { return t.dir(id) }

// File returns the File at id, or nil if id is out of range.
func (t *Tree) File(id FileID) *File { return t.file(id) }

// DirByGlobal resolves a directory's NodeGID to its local id.
func (t *Tree) DirByGlobal(g NodeGID) (DirID, bool) {
	id, ok := t.dirByGID[g]
	return id, ok
}

// FileByGlobal resolves a file's NodeGID to its local id.
func (t *Tree) FileByGlobal(g NodeGID) (FileID, bool) {
	id, ok := t.fileByGID[g]
	return id, ok
}

// DirView is a snapshot of a directory's generation, letting a caller that
// held onto the view across a suspension point detect whether the
// directory's children have since been mutated.
type DirView struct {
	d   *Directory
	gen uint64
}

// ViewDir takes a DirView of the directory at id.
func (t *Tree) ViewDir(id DirID) DirView {
	d := t.dir(id)
	if d == nil {
		return DirView{}
	}
	return DirView{d: d, gen: d.gen}
}

// Directory returns the viewed directory, or nil if id was invalid.
func (v DirView) Directory() *Directory { return v.d }

// IsStale reports whether the directory's children have changed (a
// create, delete, or move affecting it) since the view was taken.
func (v DirView) IsStale() bool {
	return v.d == nil || v.d.gen != v.gen
}

// FileView is the File analog of DirView, tracking a file's own
// tombstone/deletion-cause generation rather than a directory's children.
type FileView struct {
	f   *File
	gen uint64
}

// ViewFile takes a FileView of the file at id.
func (t *Tree) ViewFile(id FileID) FileView {
	f := t.file(id)
	if f == nil {
		return FileView{}
	}
	return FileView{f: f, gen: f.gen}
}

// File returns the viewed file, or nil if id was invalid.
func (v FileView) File() *File { return v.f }

// IsStale reports whether the file's own state has changed since the view
// was taken.
func (v FileView) IsStale() bool {
	return v.f == nil || v.f.gen != v.gen
}
