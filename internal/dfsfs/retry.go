package dfsfs

import (
	"errors"

	"github.com/DanSnow/dfs-fuse/internal/dfserrors"
)

// maxRetries is the number of extra attempts a retryable op gets after a
// DisconnectError, per the spec's retry policy: 3 attempts total for
// access/getattr/readdir/rmdir/mkdir/unlink/rename/read/write/truncate.
const maxRetries = 2

// reconnector is the subset of remote used by the retry helpers.
type reconnector interface {
	Reconnect() error
}

// withRetry runs fn, and on a DisconnectError reconnects and retries up to
// maxRetries additional times. A reconnect failure or a non-disconnect
// error is returned immediately.
func withRetry[T any](fn func() (T, error), cl reconnector) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		val, err := fn()
		if err == nil {
			return val, nil
		}
		lastErr = err

		var disc *dfserrors.DisconnectError
		if !errors.As(err, &disc) {
			return zero, err
		}
		if attempt == maxRetries {
			break
		}
		if rerr := cl.Reconnect(); rerr != nil {
			return zero, rerr
		}
	}
	return zero, lastErr
}

// withRetryVoid is withRetry for operations with no success value.
func withRetryVoid(fn func() error, cl reconnector) error {
	_, err := withRetry(func() (struct{}, error) {
		return struct{}{}, fn()
	}, cl)
	return err
}

// withNoRetry runs fn once. On a DisconnectError it still reconnects (so
// that subsequent, unrelated calls succeed) but always surfaces EIO for
// this call regardless of whether the reconnect itself succeeded, matching
// the spec's treatment of non-retryable ops (open, release).
func withNoRetry(fn func() error, cl reconnector) error {
	err := fn()
	if err == nil {
		return nil
	}

	var disc *dfserrors.DisconnectError
	if errors.As(err, &disc) {
		_ = cl.Reconnect()
	}
	return err
}
