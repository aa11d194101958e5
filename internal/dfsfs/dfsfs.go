// Package dfsfs implements the FUSE operation layer: it answers every
// inode/handle callback the kernel can issue by delegating to a Client and
// translating the result into the request/response shapes the FUSE layer
// expects, plus the errno the kernel understands on failure.
//
// Server itself is a plain ctx+Request/Response type (Init, LookUpInode,
// GetInodeAttributes, SetInodeAttributes, ForgetInode, MkDir, CreateFile,
// RmDir, Unlink, OpenDir, ReadDir, ReleaseDirHandle, OpenFile, ReadFile,
// WriteFile, SyncFile, FlushFile, ReleaseFileHandle, plus Rename, StatFS,
// Destroy, Access, and the symlink/xattr stubs in extra.go) -- this shape
// is what dfsfs_test.go exercises directly, call by call, without needing
// a real mount or a constructed fuseops.Op. fsadapter.go is the piece that
// makes these, not just the first 17, reachable from the kernel (all but
// Access, which has no adapter method): it implements the real ctx+Op,
// error-returning fuseutil.FileSystem interface and forwards each op to the
// matching Server method. NewFileSystemServer is
// what cmd/mount.go actually passes to fuse.Mount; Server is never handed
// to fuse.Mount directly.
package dfsfs

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/DanSnow/dfs-fuse/internal/fileoper"
	"github.com/DanSnow/dfs-fuse/internal/memoryfs"
	"github.com/jacobsa/fuse"
)

// remote is the subset of *client.Client that Server depends on. Declaring
// it here (rather than importing client.Client directly) keeps dfsfs
// testable against a fake without a real socket.
type remote interface {
	Has(p string) bool
	Stat(p string) (memoryfs.Meta, error)
	Readdir(p string) ([]string, error)
	Write(p string, data []byte) error
	Read(p string) ([]byte, error)
	Rm(p string) (bool, error)
	Mkdir(parent, name string) error
	Rmdir(p string) error
	Mv(oldPath, newPath string) error
	Reconnect() error
	Close() error
}

// Config carries the mount-time settings that getattr needs but which the
// remote protocol has no notion of: every inode is reported as owned by a
// single uid/gid chosen at mount time, matching the spec's single-user
// mount model.
type Config struct {
	Uid uint32
	Gid uint32
}

// fileHandle is an open file's cached body plus a dirty flag, looked up by
// index into Server.files. Handles are never reused: ReleaseFileHandle
// retires the slot instead of freeing it for reuse, since the kernel
// guarantees it will not reissue a released handle ID.
type fileHandle struct {
	path     string
	buffer   []byte
	dirty    bool
	released bool
}

// dirHandle is a directory listing snapshotted at OpenDir time, served out
// across possibly several ReadDir calls by offset.
type dirHandle struct {
	path     string
	entries  []dirent
	released bool
}

type dirent struct {
	inode fuse.InodeID
	name  string
	isDir bool
}

// Server holds the business logic answering FUSE callbacks against a
// remote Client. It is wrapped by fileSystemAdapter (fsadapter.go) before
// being handed to fuse.Mount; see NewFileSystemServer.
type Server struct {
	cl  remote
	cfg Config

	mu    sync.Mutex
	paths map[fuse.InodeID]string // inode -> resolved path

	dirs  []*dirHandle
	files []*fileHandle
}

// New returns a Server bound to cl. Call Init (the FUSE lifecycle hook, not
// a constructor step) before serving requests.
func New(cl remote, cfg Config) *Server {
	return &Server{
		cl:    cl,
		cfg:   cfg,
		paths: map[fuse.InodeID]string{fuse.RootInodeID: "/"},
	}
}

func (s *Server) Init(ctx context.Context, req *fuse.InitRequest) (*fuse.InitResponse, error) {
	return &fuse.InitResponse{}, nil
}

// pathOf resolves a previously-vended inode ID back to its path. Every ID
// the server ever hands out (root, and every LookUpInode/MkDir/CreateFile
// result) is recorded in s.paths first, so a miss here is a kernel/server
// inconsistency rather than a recoverable condition.
func (s *Server) pathOf(id fuse.InodeID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.paths[id]
	return p, ok
}

func (s *Server) remember(id fuse.InodeID, p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[id] = p
}

// --- inode lookups -------------------------------------------------------

func (s *Server) LookUpInode(ctx context.Context, req *fuse.LookUpInodeRequest) (*fuse.LookUpInodeResponse, error) {
	parent, ok := s.pathOf(req.Parent)
	if !ok {
		return nil, syscall.EFAULT
	}
	child := joinPath(parent, req.Name)

	entry, err := withRetry(func() (fuse.ChildInodeEntry, error) {
		return s.lookupEntry(child)
	}, s.cl)
	if err != nil {
		return nil, classify(err)
	}
	s.remember(entry.Child, child)
	return &fuse.LookUpInodeResponse{Entry: entry}, nil
}

func (s *Server) lookupEntry(p string) (fuse.ChildInodeEntry, error) {
	if !s.cl.Has(p) {
		return fuse.ChildInodeEntry{}, syscall.ENOENT
	}
	meta, err := s.cl.Stat(p)
	if err != nil {
		return fuse.ChildInodeEntry{}, err
	}
	return s.childEntry(meta), nil
}

func (s *Server) childEntry(meta memoryfs.Meta) fuse.ChildInodeEntry {
	return fuse.ChildInodeEntry{
		Child:      fuse.InodeID(meta.ID),
		Generation: 1,
		Attributes: s.attributesFor(meta),
	}
}

func (s *Server) GetInodeAttributes(ctx context.Context, req *fuse.GetInodeAttributesRequest) (*fuse.GetInodeAttributesResponse, error) {
	attrs, err := withRetry(func() (fuse.InodeAttributes, error) {
		return s.attributesForInode(req.Inode)
	}, s.cl)
	if err != nil {
		return nil, classify(err)
	}
	return &fuse.GetInodeAttributesResponse{Attributes: attrs}, nil
}

func (s *Server) attributesForInode(id fuse.InodeID) (fuse.InodeAttributes, error) {
	if id == fuse.RootInodeID {
		return s.rootAttributes(), nil
	}
	p, ok := s.pathOf(id)
	if !ok {
		return fuse.InodeAttributes{}, syscall.EFAULT
	}
	if !s.cl.Has(p) {
		return fuse.InodeAttributes{}, syscall.ENOENT
	}
	meta, err := s.cl.Stat(p)
	if err != nil {
		return fuse.InodeAttributes{}, err
	}
	return s.attributesFor(meta), nil
}

// rootAttributes is the special-cased root directory entry: the remote
// protocol's own root record is a plain directory meta, but the mountpoint
// itself must always resolve regardless of cache state.
func (s *Server) rootAttributes() fuse.InodeAttributes {
	return fuse.InodeAttributes{
		Size:  0,
		Nlink: 2,
		Mode:  os.ModeDir | 0755,
		Uid:   s.cfg.Uid,
		Gid:   s.cfg.Gid,
	}
}

func (s *Server) attributesFor(meta memoryfs.Meta) fuse.InodeAttributes {
	mode := os.FileMode(0750)
	if meta.IsDir() {
		mode |= os.ModeDir
	}
	size := uint64(1)
	if meta.HasSize {
		size = uint64(meta.Size)
	}
	t := parseCtime(meta.Ctime)
	return fuse.InodeAttributes{
		Size:  size,
		Nlink: 2,
		Mode:  mode,
		Atime: t,
		Mtime: t,
		Ctime: t,
		Uid:   s.cfg.Uid,
		Gid:   s.cfg.Gid,
	}
}

func parseCtime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SetInodeAttributes handles chmod/chown as no-ops (the remote has no
// notion of permission bits beyond the fixed 0750/0755 this layer always
// reports) and a Size change as a truncate: fetch the current body, slice
// it to the new length, and write it back in full.
func (s *Server) SetInodeAttributes(ctx context.Context, req *fuse.SetInodeAttributesRequest) (*fuse.SetInodeAttributesResponse, error) {
	p, ok := s.pathOf(req.Inode)
	if !ok {
		return nil, syscall.EFAULT
	}

	if req.Size != nil {
		if err := withRetryVoid(func() error {
			return s.truncate(p, int(*req.Size))
		}, s.cl); err != nil {
			return nil, classify(err)
		}
	}

	attrs, err := s.attributesForInode(req.Inode)
	if err != nil {
		return nil, classify(err)
	}
	return &fuse.SetInodeAttributesResponse{Attributes: attrs}, nil
}

func (s *Server) truncate(p string, size int) error {
	content, err := s.cl.Read(p)
	if err != nil {
		return err
	}
	return s.cl.Write(p, fileoper.Truncate(content, size))
}

func (s *Server) ForgetInode(ctx context.Context, req *fuse.ForgetInodeRequest) (*fuse.ForgetInodeResponse, error) {
	s.mu.Lock()
	delete(s.paths, req.ID)
	s.mu.Unlock()
	return &fuse.ForgetInodeResponse{}, nil
}

// --- creation ------------------------------------------------------------

func (s *Server) MkDir(ctx context.Context, req *fuse.MkDirRequest) (*fuse.MkDirResponse, error) {
	parent, ok := s.pathOf(req.Parent)
	if !ok {
		return nil, syscall.EFAULT
	}
	child := joinPath(parent, req.Name)
	if s.cl.Has(child) {
		return nil, syscall.EEXIST
	}

	if err := withRetryVoid(func() error { return s.cl.Mkdir(parent, req.Name) }, s.cl); err != nil {
		return nil, classify(err)
	}
	meta, err := s.cl.Stat(child)
	if err != nil {
		return nil, classify(err)
	}
	entry := s.childEntry(meta)
	s.remember(entry.Child, child)
	return &fuse.MkDirResponse{Entry: entry}, nil
}

func (s *Server) CreateFile(ctx context.Context, req *fuse.CreateFileRequest) (*fuse.CreateFileResponse, error) {
	parent, ok := s.pathOf(req.Parent)
	if !ok {
		return nil, syscall.EFAULT
	}
	child := joinPath(parent, req.Name)
	if s.cl.Has(child) {
		return nil, syscall.EEXIST
	}

	if err := withRetryVoid(func() error { return s.cl.Write(child, nil) }, s.cl); err != nil {
		return nil, classify(err)
	}
	meta, err := s.cl.Stat(child)
	if err != nil {
		return nil, classify(err)
	}
	entry := s.childEntry(meta)
	s.remember(entry.Child, child)

	handle := s.newFileHandle(child, nil)
	return &fuse.CreateFileResponse{Entry: entry, Handle: handle}, nil
}

// --- destruction -----------------------------------------------------------

func (s *Server) RmDir(ctx context.Context, req *fuse.RmDirRequest) (*fuse.RmDirResponse, error) {
	parent, ok := s.pathOf(req.Parent)
	if !ok {
		return nil, syscall.EFAULT
	}
	target := joinPath(parent, req.Name)
	if err := withRetryVoid(func() error { return s.cl.Rmdir(target) }, s.cl); err != nil {
		return nil, classify(err)
	}
	return &fuse.RmDirResponse{}, nil
}

func (s *Server) Unlink(ctx context.Context, req *fuse.UnlinkRequest) (*fuse.UnlinkResponse, error) {
	parent, ok := s.pathOf(req.Parent)
	if !ok {
		return nil, syscall.EFAULT
	}
	target := joinPath(parent, req.Name)

	var removed bool
	err := withRetryVoid(func() error {
		var rmErr error
		removed, rmErr = s.cl.Rm(target)
		return rmErr
	}, s.cl)
	if err != nil {
		return nil, classify(err)
	}
	if !removed {
		return nil, syscall.ENOENT
	}
	return &fuse.UnlinkResponse{}, nil
}

// --- directory handles -----------------------------------------------------

func (s *Server) OpenDir(ctx context.Context, req *fuse.OpenDirRequest) (*fuse.OpenDirResponse, error) {
	p, ok := s.pathOf(req.Inode)
	if !ok {
		return nil, syscall.EFAULT
	}

	var names []string
	err := withRetryVoid(func() error {
		var listErr error
		names, listErr = s.cl.Readdir(p)
		return listErr
	}, s.cl)
	if err != nil {
		return nil, classify(err)
	}

	entries := make([]dirent, 0, len(names))
	for _, name := range names {
		childPath := joinPath(p, name)
		meta, statErr := s.cl.Stat(childPath)
		if statErr != nil {
			continue
		}
		entries = append(entries, dirent{
			inode: fuse.InodeID(meta.ID),
			name:  name,
			isDir: meta.IsDir(),
		})
	}

	s.mu.Lock()
	s.dirs = append(s.dirs, &dirHandle{path: p, entries: entries})
	handle := fuse.HandleID(len(s.dirs))
	s.mu.Unlock()

	return &fuse.OpenDirResponse{Handle: handle}, nil
}

func (s *Server) ReadDir(ctx context.Context, req *fuse.ReadDirRequest) (*fuse.ReadDirResponse, error) {
	s.mu.Lock()
	idx := int(req.Handle) - 1
	if idx < 0 || idx >= len(s.dirs) || s.dirs[idx] == nil {
		s.mu.Unlock()
		return nil, syscall.EFAULT
	}
	h := s.dirs[idx]
	s.mu.Unlock()

	buf := make([]byte, 0, req.Size)
	off := int(req.Offset)
	for off < len(h.entries) {
		e := h.entries[off]
		written, ok := appendDirent(buf, req.Size, e, fuse.DirOffset(off+1))
		if !ok {
			break
		}
		buf = written
		off++
	}
	return &fuse.ReadDirResponse{Data: buf}, nil
}

func (s *Server) ReleaseDirHandle(ctx context.Context, req *fuse.ReleaseDirHandleRequest) (*fuse.ReleaseDirHandleResponse, error) {
	s.mu.Lock()
	idx := int(req.Handle) - 1
	if idx >= 0 && idx < len(s.dirs) && s.dirs[idx] != nil {
		s.dirs[idx].released = true
	}
	s.mu.Unlock()
	return &fuse.ReleaseDirHandleResponse{}, nil
}

// --- file handles -----------------------------------------------------------

func (s *Server) newFileHandle(p string, buf []byte) fuse.HandleID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, &fileHandle{path: p, buffer: buf})
	return fuse.HandleID(len(s.files) - 1)
}

func (s *Server) fileHandleAt(id fuse.HandleID) (*fileHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := int(id)
	if idx < 0 || idx >= len(s.files) || s.files[idx] == nil {
		return nil, false
	}
	return s.files[idx], true
}

// OpenFile fetches the current body unless the open truncates it (plain
// O_WRONLY without O_APPEND overwrites the file with an empty body first,
// matching the remote's write-whole-file semantics).
func (s *Server) OpenFile(ctx context.Context, req *fuse.OpenFileRequest) (*fuse.OpenFileResponse, error) {
	p, ok := s.pathOf(req.Inode)
	if !ok {
		return nil, syscall.EFAULT
	}
	if !s.cl.Has(p) {
		return nil, syscall.ENOENT
	}

	flags := req.Flags
	truncate := flags&syscall.O_ACCMODE == syscall.O_WRONLY && flags&syscall.O_APPEND == 0

	var buf []byte
	err := withNoRetry(func() error {
		if truncate {
			if err := s.cl.Write(p, nil); err != nil {
				return err
			}
			buf = nil
			return nil
		}
		var readErr error
		buf, readErr = s.cl.Read(p)
		return readErr
	}, s.cl)
	if err != nil {
		return nil, classify(err)
	}

	handle := s.newFileHandle(p, buf)
	return &fuse.OpenFileResponse{Handle: handle}, nil
}

func (s *Server) ReadFile(ctx context.Context, req *fuse.ReadFileRequest) (*fuse.ReadFileResponse, error) {
	h, ok := s.fileHandleAt(req.Handle)
	if !ok {
		return nil, syscall.EFAULT
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return &fuse.ReadFileResponse{Data: fileoper.Read(h.buffer, int(req.Offset), req.Size)}, nil
}

func (s *Server) WriteFile(ctx context.Context, req *fuse.WriteFileRequest) (*fuse.WriteFileResponse, error) {
	h, ok := s.fileHandleAt(req.Handle)
	if !ok {
		return nil, syscall.EFAULT
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h.buffer = fileoper.Write(h.buffer, req.Data, int(req.Offset))
	h.dirty = true
	return &fuse.WriteFileResponse{}, nil
}

// SyncFile and FlushFile are both no-ops: the remote protocol has no
// partial-write primitive, so there is nothing to push early. The write
// back happens in full at ReleaseFileHandle.
func (s *Server) SyncFile(ctx context.Context, req *fuse.SyncFileRequest) (*fuse.SyncFileResponse, error) {
	return &fuse.SyncFileResponse{}, nil
}

func (s *Server) FlushFile(ctx context.Context, req *fuse.FlushFileRequest) (*fuse.FlushFileResponse, error) {
	return &fuse.FlushFileResponse{}, nil
}

func (s *Server) ReleaseFileHandle(ctx context.Context, req *fuse.ReleaseFileHandleRequest) (*fuse.ReleaseFileHandleResponse, error) {
	h, ok := s.fileHandleAt(req.Handle)
	if !ok {
		return &fuse.ReleaseFileHandleResponse{}, nil
	}

	s.mu.Lock()
	dirty := h.dirty
	path := h.path
	buf := append([]byte(nil), h.buffer...)
	h.released = true
	s.mu.Unlock()

	if !dirty {
		return &fuse.ReleaseFileHandleResponse{}, nil
	}
	if err := withNoRetry(func() error { return s.cl.Write(path, buf) }, s.cl); err != nil {
		return nil, classify(err)
	}
	return &fuse.ReleaseFileHandleResponse{}, nil
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
