package dfsfs

import (
	"context"
	"syscall"

	"github.com/jacobsa/fuse"
)

// The methods in this file round out Server's business logic beyond the
// base 17 ctx+Request/Response ops in dfsfs.go: Rename, StatFS, Destroy,
// Access, and the symlink/xattr stubs. fsadapter.go is what makes Rename,
// StatFS, Destroy, GetXattr, ListXattr, ReadSymlink and CreateSymlink
// reachable from the kernel -- it implements the real ctx+Op, error-returning
// fuseutil.FileSystem interface and forwards fuseops.RenameOp/StatFSOp/
// GetXattrOp/ListXattrOp/ReadSymlinkOp/CreateSymlinkOp to these methods.
// CreateLink stays an unreached business-logic method: the spec's
// Non-goals exclude hard links, so nothing needs to dispatch it.
//
// Access is the one method here with no dispatch path at all, by design
// rather than by gap: jacobsa/fuse mounts with the kernel's
// default_permissions option (see file_system.go's FileSystem doc
// comment), so the kernel checks POSIX permissions itself from the
// attributes GetInodeAttributes reports and never forwards access(2) to
// userspace. Access is kept exported for callers that want an explicit
// presence/permission probe without going through the kernel.

// RenameRequest/RenameResponse mirror the shape the rest of this package's
// request/response pairs use, so Rename reads the same as every other op
// here even though it is fsadapter.go, not Server, that fuse.Mount dispatches
// Rename through.
type RenameRequest struct {
	OldParent fuse.InodeID
	OldName   string
	NewParent fuse.InodeID
	NewName   string
}

type RenameResponse struct{}

// Rename moves oldParent/oldName to newParent/newName.
func (s *Server) Rename(ctx context.Context, req *RenameRequest) (*RenameResponse, error) {
	oldParentPath, ok := s.pathOf(req.OldParent)
	if !ok {
		return nil, syscall.EFAULT
	}
	newParentPath, ok := s.pathOf(req.NewParent)
	if !ok {
		return nil, syscall.EFAULT
	}

	oldPath := joinPath(oldParentPath, req.OldName)
	newPath := joinPath(newParentPath, req.NewName)

	if !s.cl.Has(oldPath) {
		return nil, syscall.ENOENT
	}
	if s.cl.Has(newPath) {
		return nil, syscall.EEXIST
	}

	if err := withRetryVoid(func() error { return s.cl.Mv(oldPath, newPath) }, s.cl); err != nil {
		return nil, classify(err)
	}
	return &RenameResponse{}, nil
}

// StatFSResponse reports a fixed, synthetic set of filesystem-level
// statistics: the remote protocol has no capacity/usage query, so this
// layer reports the same static block-count values the spec requires.
type StatFSResponse struct {
	BlockSize  uint32
	Blocks     uint64
	BlocksFree uint64
}

// StatFS answers statfs(2) with fixed values.
func (s *Server) StatFS(ctx context.Context) (*StatFSResponse, error) {
	return &StatFSResponse{BlockSize: 512, Blocks: 4096, BlocksFree: 2048}, nil
}

// Destroy closes the underlying connection, called once when the mount is
// torn down.
func (s *Server) Destroy() {
	_ = s.cl.Close()
}

// AccessRequest mirrors access(2)'s arguments.
type AccessRequest struct {
	Inode fuse.InodeID
	Mode  uint32
}

// Access reports ENOENT for any path not known locally or remotely, and
// succeeds otherwise: the remote has no real permission model, so presence
// is the only thing worth checking.
func (s *Server) Access(ctx context.Context, req *AccessRequest) error {
	p, ok := s.pathOf(req.Inode)
	if !ok {
		return syscall.EFAULT
	}
	if !s.cl.Has(p) {
		return syscall.ENOENT
	}
	return nil
}

// ReadSymlink, CreateSymlink and CreateLink take plain arguments rather
// than request structs; the remote protocol has no symlink or hard-link
// primitive, so each of them only rejects the call.

// ReadSymlink always fails: the remote filesystem has no symlink inodes to
// resolve.
func (s *Server) ReadSymlink(ctx context.Context, inode fuse.InodeID) (string, error) {
	return "", syscall.ENOENT
}

// CreateSymlink and CreateLink are unsupported: the remote filesystem's
// object model has no equivalent, so kernel requests to create one get
// EROFS, the same answer a genuinely read-only mount gives for any
// disallowed structural change.
func (s *Server) CreateSymlink(ctx context.Context, parent fuse.InodeID, name, target string) error {
	return syscall.EROFS
}

func (s *Server) CreateLink(ctx context.Context, parent fuse.InodeID, name string, target fuse.InodeID) error {
	return syscall.EROFS
}

// GetXattr and ListXattr report no extended attributes, matching the
// spec's getxattr/listxattr callback contract (always empty).
func (s *Server) GetXattr(ctx context.Context, inode fuse.InodeID, name string) ([]byte, error) {
	return nil, nil
}

func (s *Server) ListXattr(ctx context.Context, inode fuse.InodeID) ([]string, error) {
	return nil, nil
}
