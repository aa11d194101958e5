package dfsfs

import (
	"context"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// fileSystemAdapter is the one real dispatch target: it implements the
// ctx+Op, error-returning fuseutil.FileSystem interface that
// fuseutil.NewFileSystemServer turns into a fuse.Server, translating each
// op into a call against Server's already-tested ctx+Request/Response
// business logic.
//
// This exists because the interface the retrieved jacobsa/fuse snapshot's
// own file_system.go/fuseutil/file_system.go describe (ctx+Request/
// Response, and a bare op+self-Respond() style, respectively) matches
// neither the signature the pinned dependency's real FileSystem interface
// actually has. The teacher's own internal/fs/wrappers test doubles
// (tracing_test.go, monitoring_test.go) implement every fuseutil.FileSystem
// method as func(context.Context, *fuseops.XxxOp) error -- no op.Respond
// call, just a returned error -- which is the shape used here; see the
// Mount-signature note in DESIGN.md. Embedding
// fuseutil.NotImplementedFileSystem covers the rest of that interface's
// real surface (BatchForget, MkNode, CreateLink, ReadDirPlus, SetXattr,
// RemoveXattr, Fallocate, SyncFS) with ENOSYS, since the spec has no
// business logic for them.
type fileSystemAdapter struct {
	fuseutil.NotImplementedFileSystem
	srv *Server
}

var _ fuseutil.FileSystem = (*fileSystemAdapter)(nil)

// NewFileSystemServer wires s into the dispatch path fuse.Mount actually
// uses. cmd/mount.go passes the result of this to fuse.Mount, not s itself.
func NewFileSystemServer(s *Server) fuse.Server {
	return fuseutil.NewFileSystemServer(&fileSystemAdapter{srv: s})
}

func toOpsEntry(e fuse.ChildInodeEntry) fuseops.ChildInodeEntry {
	return fuseops.ChildInodeEntry{
		Child:                fuseops.InodeID(e.Child),
		Generation:           fuseops.GenerationNumber(e.Generation),
		Attributes:           toOpsAttr(e.Attributes),
		AttributesExpiration: e.AttributesExpiration,
		EntryExpiration:      e.EntryExpiration,
	}
}

func toOpsAttr(a fuse.InodeAttributes) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:   a.Size,
		Nlink:  a.Nlink,
		Mode:   a.Mode,
		Atime:  a.Atime,
		Mtime:  a.Mtime,
		Ctime:  a.Ctime,
		Crtime: a.Crtime,
		Uid:    a.Uid,
		Gid:    a.Gid,
	}
}

func (a *fileSystemAdapter) Init(ctx context.Context, op *fuseops.InitOp) error {
	_, err := a.srv.Init(ctx, &fuse.InitRequest{})
	return err
}

func (a *fileSystemAdapter) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	resp, err := a.srv.LookUpInode(ctx, &fuse.LookUpInodeRequest{
		Parent: fuse.InodeID(op.Parent),
		Name:   op.Name,
	})
	if err == nil {
		op.Entry = toOpsEntry(resp.Entry)
	}
	return err
}

func (a *fileSystemAdapter) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	resp, err := a.srv.GetInodeAttributes(ctx, &fuse.GetInodeAttributesRequest{
		Inode: fuse.InodeID(op.Inode),
	})
	if err == nil {
		op.Attributes = toOpsAttr(resp.Attributes)
		op.AttributesExpiration = resp.AttributesExpiration
	}
	return err
}

func (a *fileSystemAdapter) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	resp, err := a.srv.SetInodeAttributes(ctx, &fuse.SetInodeAttributesRequest{
		Inode: fuse.InodeID(op.Inode),
		Size:  op.Size,
		Mode:  op.Mode,
		Atime: op.Atime,
		Mtime: op.Mtime,
	})
	if err == nil {
		op.Attributes = toOpsAttr(resp.Attributes)
		op.AttributesExpiration = resp.AttributesExpiration
	}
	return err
}

func (a *fileSystemAdapter) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	_, err := a.srv.ForgetInode(ctx, &fuse.ForgetInodeRequest{ID: fuse.InodeID(op.ID)})
	return err
}

func (a *fileSystemAdapter) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	resp, err := a.srv.MkDir(ctx, &fuse.MkDirRequest{
		Parent: fuse.InodeID(op.Parent),
		Name:   op.Name,
		Mode:   op.Mode,
	})
	if err == nil {
		op.Entry = toOpsEntry(resp.Entry)
	}
	return err
}

func (a *fileSystemAdapter) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	resp, err := a.srv.CreateFile(ctx, &fuse.CreateFileRequest{
		Parent: fuse.InodeID(op.Parent),
		Name:   op.Name,
		Mode:   op.Mode,
		Flags:  op.Flags,
	})
	if err == nil {
		op.Entry = toOpsEntry(resp.Entry)
		op.Handle = fuseops.HandleID(resp.Handle)
	}
	return err
}

func (a *fileSystemAdapter) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) error {
	return a.srv.CreateSymlink(ctx, fuse.InodeID(op.Parent), op.Name, op.Target)
}

// Rename is one of the callbacks the base 17-method ctx+Request/Response
// shape has no slot for; it now goes through the same dispatch path as
// every other op instead of sitting unreachable behind Server's exported
// method.
func (a *fileSystemAdapter) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	_, err := a.srv.Rename(ctx, &RenameRequest{
		OldParent: fuse.InodeID(op.OldParent),
		OldName:   op.OldName,
		NewParent: fuse.InodeID(op.NewParent),
		NewName:   op.NewName,
	})
	return err
}

func (a *fileSystemAdapter) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	_, err := a.srv.RmDir(ctx, &fuse.RmDirRequest{
		Parent: fuse.InodeID(op.Parent),
		Name:   op.Name,
	})
	return err
}

func (a *fileSystemAdapter) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	_, err := a.srv.Unlink(ctx, &fuse.UnlinkRequest{
		Parent: fuse.InodeID(op.Parent),
		Name:   op.Name,
	})
	return err
}

func (a *fileSystemAdapter) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	resp, err := a.srv.OpenDir(ctx, &fuse.OpenDirRequest{
		Inode: fuse.InodeID(op.Inode),
		Flags: op.Flags,
	})
	if err == nil {
		op.Handle = fuseops.HandleID(resp.Handle)
	}
	return err
}

func (a *fileSystemAdapter) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	resp, err := a.srv.ReadDir(ctx, &fuse.ReadDirRequest{
		Inode:  fuse.InodeID(op.Inode),
		Handle: fuse.HandleID(op.Handle),
		Offset: fuse.DirOffset(op.Offset),
		Size:   len(op.Dst),
	})
	if err == nil {
		op.BytesRead = copy(op.Dst, resp.Data)
	}
	return err
}

func (a *fileSystemAdapter) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	_, err := a.srv.ReleaseDirHandle(ctx, &fuse.ReleaseDirHandleRequest{
		Handle: fuse.HandleID(op.Handle),
	})
	return err
}

func (a *fileSystemAdapter) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	resp, err := a.srv.OpenFile(ctx, &fuse.OpenFileRequest{
		Inode: fuse.InodeID(op.Inode),
		Flags: op.Flags,
	})
	if err == nil {
		op.Handle = fuseops.HandleID(resp.Handle)
	}
	return err
}

func (a *fileSystemAdapter) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	resp, err := a.srv.ReadFile(ctx, &fuse.ReadFileRequest{
		Inode:  fuse.InodeID(op.Inode),
		Handle: fuse.HandleID(op.Handle),
		Offset: op.Offset,
		Size:   len(op.Dst),
	})
	if err == nil {
		op.BytesRead = copy(op.Dst, resp.Data)
	}
	return err
}

func (a *fileSystemAdapter) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	_, err := a.srv.WriteFile(ctx, &fuse.WriteFileRequest{
		Inode:  fuse.InodeID(op.Inode),
		Handle: fuse.HandleID(op.Handle),
		Offset: op.Offset,
		Data:   op.Data,
	})
	return err
}

func (a *fileSystemAdapter) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	_, err := a.srv.SyncFile(ctx, &fuse.SyncFileRequest{
		Inode:  fuse.InodeID(op.Inode),
		Handle: fuse.HandleID(op.Handle),
	})
	return err
}

func (a *fileSystemAdapter) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	_, err := a.srv.FlushFile(ctx, &fuse.FlushFileRequest{
		Inode:  fuse.InodeID(op.Inode),
		Handle: fuse.HandleID(op.Handle),
	})
	return err
}

func (a *fileSystemAdapter) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	_, err := a.srv.ReleaseFileHandle(ctx, &fuse.ReleaseFileHandleRequest{
		Handle: fuse.HandleID(op.Handle),
	})
	return err
}

func (a *fileSystemAdapter) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	target, err := a.srv.ReadSymlink(ctx, fuse.InodeID(op.Inode))
	if err == nil {
		op.Target = target
	}
	return err
}

// StatFS, Destroy, GetXattr and ListXattr are the rest of the callbacks the
// base 17-method shape has no slot for.
func (a *fileSystemAdapter) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	resp, err := a.srv.StatFS(ctx)
	if err == nil {
		op.BlockSize = resp.BlockSize
		op.Blocks = resp.Blocks
		op.BlocksFree = resp.BlocksFree
	}
	return err
}

func (a *fileSystemAdapter) Destroy() {
	a.srv.Destroy()
}

func (a *fileSystemAdapter) GetXattr(ctx context.Context, op *fuseops.GetXattrOp) error {
	data, err := a.srv.GetXattr(ctx, fuse.InodeID(op.Inode), op.Name)
	if err == nil {
		op.BytesRead = copy(op.Dst, data)
	}
	return err
}

func (a *fileSystemAdapter) ListXattr(ctx context.Context, op *fuseops.ListXattrOp) error {
	_, err := a.srv.ListXattr(ctx, fuse.InodeID(op.Inode))
	if err == nil {
		op.BytesRead = 0
	}
	return err
}
