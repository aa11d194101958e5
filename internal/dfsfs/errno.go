package dfsfs

import (
	"errors"
	"syscall"

	"github.com/DanSnow/dfs-fuse/internal/dfserrors"
)

// classify maps the client's typed error taxonomy onto the errno the
// kernel expects, per the error-mapping table this layer is grounded on:
// not-found conditions become ENOENT, anything that indicates the local
// or remote state can no longer be trusted becomes EIO, and a programming
// invariant violation becomes EFAULT. syscall.Errno already implements
// error, so these are returned directly rather than wrapped.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var notFound *dfserrors.NotFoundError
	if errors.As(err, &notFound) {
		return syscall.ENOENT
	}

	var internal *dfserrors.InternalError
	if errors.As(err, &internal) {
		return syscall.EFAULT
	}

	var disconnect *dfserrors.DisconnectError
	if errors.As(err, &disconnect) {
		return syscall.EIO
	}

	var timeout *dfserrors.TimeoutError
	if errors.As(err, &timeout) {
		return syscall.EIO
	}

	var server *dfserrors.ServerError
	if errors.As(err, &server) {
		return syscall.EIO
	}

	var auth *dfserrors.AuthError
	if errors.As(err, &auth) {
		return syscall.EIO
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	return syscall.EIO
}
