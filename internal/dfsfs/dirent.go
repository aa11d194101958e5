package dfsfs

import (
	"encoding/binary"

	"github.com/jacobsa/fuse"
	"golang.org/x/sys/unix"
)

// direntSize is sizeof(struct fuse_dirent) without the trailing name: two
// uint64s plus two uint32s.
const direntSize = 8 + 8 + 4 + 4
const direntAlignment = 8

// appendDirent writes one FUSE directory entry into buf in the fuse_dirent
// wire layout (inode, offset, name length, dtype, name, alignment padding),
// the format parse_dirfile expects on the kernel side. It reports false,
// leaving buf untouched, if the entry would push the total past limit --
// the kernel treats a truncated final record as "try again with a bigger
// buffer", never as an error.
//
// Ported by hand rather than calling fuseutil.WriteDirent: the fuseops
// package in the vendored snapshot this was grounded on does not define the
// fuseops.Dirent type that function takes, so there is nothing compatible
// to call. The byte layout below matches fuseutil/dirent.go's fuse_dirent.
func appendDirent(buf []byte, limit int, e dirent, off fuse.DirOffset) ([]byte, bool) {
	var padLen int
	if len(e.name)%direntAlignment != 0 {
		padLen = direntAlignment - (len(e.name) % direntAlignment)
	}
	total := direntSize + len(e.name) + padLen
	if len(buf)+total > limit {
		return buf, false
	}

	dtype := uint32(unix.DT_REG)
	if e.isDir {
		dtype = uint32(unix.DT_DIR)
	}

	header := make([]byte, direntSize)
	binary.NativeEndian.PutUint64(header[0:8], uint64(e.inode))
	binary.NativeEndian.PutUint64(header[8:16], uint64(off))
	binary.NativeEndian.PutUint32(header[16:20], uint32(len(e.name)))
	binary.NativeEndian.PutUint32(header[20:24], dtype)

	buf = append(buf, header...)
	buf = append(buf, e.name...)
	if padLen > 0 {
		buf = append(buf, make([]byte, padLen)...)
	}
	return buf, true
}
