// Package memoryfs implements the thread-safe, hierarchical in-memory
// mirror of the remote tree: path -> metadata, parent -> children, and a
// per-file cached body. It answers stat/readdir/has without a round trip
// whenever the relevant part of the tree has already been discovered.
package memoryfs

import (
	"fmt"
	"path"
	"sort"

	"github.com/DanSnow/dfs-fuse/internal/dfserrors"
	"github.com/jacobsa/syncutil"
)

// InodeType distinguishes directories from regular files. There is no third
// kind: symlinks and other special files are out of scope (spec.md
// Non-goals).
type InodeType string

const (
	TypeDir  InodeType = "dir"
	TypeFile InodeType = "file"
)

// RootID is the server-assigned id of the root directory. MemoryFS asserts
// this whenever it installs metadata for "/".
const RootID = 1

// Meta is one inode record: the server's view of a single path. Children is
// only meaningful when Type == TypeDir; Content is only meaningful when
// Type == TypeFile and has been loaded via LoadFile.
type Meta struct {
	ID       int64
	Type     InodeType
	Ctime    string
	Size     int64
	HasSize  bool
	Children map[string]struct{}
	Content  []byte
	HasBody  bool
}

func (m Meta) IsDir() bool  { return m.Type == TypeDir }
func (m Meta) IsFile() bool { return m.Type == TypeFile }

// MemoryFS is the in-memory tree. The zero value is not usable; use New.
type MemoryFS struct {
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	meta map[string]*Meta

	// GUARDED_BY(mu)
	//
	// paths indexes every path currently named as a child of a known
	// directory, even before its own metadata has been separately
	// confirmed — mirroring the source's self._paths, which is populated
	// from a parent's dir#list response alongside self._meta. AddDir drops
	// the entries of a directory's previous children and Reset clears it.
	paths map[string]*Meta
}

// New returns an empty MemoryFS.
func New() *MemoryFS {
	fs := &MemoryFS{}
	fs.reset()
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
	return fs
}

// checkInvariants enforces spec.md §3/§8's invariants: the root, once
// present, has id 1, and every declared child resolves somewhere.
func (fs *MemoryFS) checkInvariants() {
	if root, ok := fs.meta["/"]; ok && root.ID != RootID {
		panic(fmt.Sprintf("memoryfs: root id is %d, want %d", root.ID, RootID))
	}
	for p, m := range fs.meta {
		if !m.IsDir() {
			continue
		}
		for name := range m.Children {
			child := path.Join(p, name)
			if _, ok := fs.paths[child]; !ok {
				panic(fmt.Sprintf("memoryfs: child %q of %q missing from paths index", name, p))
			}
		}
	}
}

func (fs *MemoryFS) reset() {
	fs.meta = make(map[string]*Meta)
	fs.paths = make(map[string]*Meta)
}

// Reset drops all entries. Called on every (re)connect.
func (fs *MemoryFS) Reset() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.reset()
}

// Has reports whether path is known.
func (fs *MemoryFS) Has(p string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, ok := fs.meta[p]
	return ok
}

// IsDir reports whether path is known and is a directory.
func (fs *MemoryFS) IsDir(p string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	m, ok := fs.meta[p]
	return ok && m.IsDir()
}

// IsFile reports whether path is known and is a file.
func (fs *MemoryFS) IsFile(p string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	m, ok := fs.meta[p]
	return ok && m.IsFile()
}

// GetID returns the inode id for path.
func (fs *MemoryFS) GetID(p string) (int64, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	m, ok := fs.meta[p]
	if !ok {
		return 0, &dfserrors.NotFoundError{Path: p}
	}
	return m.ID, nil
}

// GetMeta returns a copy of the metadata record for path.
func (fs *MemoryFS) GetMeta(p string) (Meta, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	m, ok := fs.meta[p]
	if !ok {
		return Meta{}, &dfserrors.NotFoundError{Path: p}
	}
	return *m, nil
}

// Listing is one entry of a dir#list response, keyed by child name (or "."
// for the directory's own metadata).
type Listing = map[string]Meta

// AddDir installs listing["."] as the metadata for p, replacing any
// previous record, then registers every other entry as a child: each gets
// an entry in paths at join(p, name) and a slot in meta[p].Children. The
// special names "." and ".." are consumed, never stored as children,
// matching the source's adddir.
func (fs *MemoryFS) AddDir(p string, listing Listing) error {
	self, ok := listing["."]
	if !ok {
		return &dfserrors.InternalError{Detail: "adddir: listing missing \".\" entry"}
	}
	if p == "/" && self.ID != RootID {
		return &dfserrors.InternalError{Detail: fmt.Sprintf("adddir: root id %d != %d", self.ID, RootID)}
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if prev, ok := fs.meta[p]; ok {
		for name := range prev.Children {
			childPath := path.Join(p, name)
			delete(fs.meta, childPath)
			delete(fs.paths, childPath)
		}
	}

	record := self
	record.Children = make(map[string]struct{}, len(listing))
	fs.meta[p] = &record

	for name, m := range listing {
		if name == "." || name == ".." {
			continue
		}
		childMeta := m
		childPath := path.Join(p, name)
		fs.paths[childPath] = &childMeta
		record.Children[name] = struct{}{}
		fs.meta[childPath] = &childMeta
	}

	return nil
}

// LoadFile attaches a cached body to a known file.
func (fs *MemoryFS) LoadFile(p string, content []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	m, ok := fs.meta[p]
	if !ok || !m.IsFile() {
		return &dfserrors.InternalError{Detail: fmt.Sprintf("loadfile: %q is not a known file", p)}
	}
	m.Content = content
	m.HasBody = true
	return nil
}

// GetContent returns the cached body for a file, if loaded.
func (fs *MemoryFS) GetContent(p string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	m, ok := fs.meta[p]
	if !ok || !m.IsFile() {
		return nil, &dfserrors.InternalError{Detail: fmt.Sprintf("getcontent: %q is not a known file", p)}
	}
	if !m.HasBody {
		return nil, &dfserrors.InternalError{Detail: fmt.Sprintf("getcontent: %q body not loaded", p)}
	}
	return m.Content, nil
}

// Readdir returns the sorted list of child names under p.
func (fs *MemoryFS) Readdir(p string) ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	m, ok := fs.meta[p]
	if !ok {
		return nil, &dfserrors.NotFoundError{Path: p}
	}
	names := make([]string, 0, len(m.Children))
	for name := range m.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
