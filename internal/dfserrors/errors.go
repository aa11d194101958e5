// Package dfserrors defines the typed error taxonomy shared by the client
// and FUSE operation layer. The source's exception hierarchy (DFSError and
// its subclasses) has no idiomatic Go equivalent, so each condition gets its
// own distinct type instead, usable with errors.As/errors.Is.
package dfserrors

import "fmt"

// AuthError indicates the server rejected a login attempt. Fatal: the
// caller should not retry the same credentials.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s", e.Reason)
}

// DisconnectError indicates the peer closed the connection or a read
// returned zero bytes. Triggers a reconnect in the client and a retry (or a
// single reconnect-and-fail) in the FUSE layer.
type DisconnectError struct {
	Reason string
}

func (e *DisconnectError) Error() string {
	if e.Reason == "" {
		return "connection lost"
	}
	return fmt.Sprintf("connection lost: %s", e.Reason)
}

// TimeoutError indicates a socket read exceeded the configured read
// deadline.
type TimeoutError struct{}

func (e *TimeoutError) Error() string {
	return "timeout"
}

// ServerError indicates the remote responded with a non-OK body to an
// action expecting one, or otherwise reported failure.
type ServerError struct {
	Action string
	Detail string
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: server error", e.Action)
	}
	return fmt.Sprintf("%s: %s", e.Action, e.Detail)
}

// InternalError indicates an invariant violation within the client or
// MemoryFS: a type confusion, missing metadata that should be present, or
// similar programming-level inconsistency.
type InternalError struct {
	Detail string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %s", e.Detail)
}

// NotFoundError indicates the requested path has no entry in MemoryFS (and,
// where applicable, none on the server either).
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}
