// Package transport owns the single TCP connection to the remote server:
// blocking send, a length-aware receive loop driven by wire.Decoder, a fixed
// read timeout, and reconnect support.
package transport

import (
	"net"
	"strconv"
	"time"

	"github.com/DanSnow/dfs-fuse/internal/dfserrors"
	"github.com/DanSnow/dfs-fuse/internal/wire"
	"github.com/jacobsa/timeutil"
)

// ReadBufferSize is the fixed chunk size used for each socket read, matching
// the source's recv(4096) loop.
const ReadBufferSize = 4096

// DefaultReadTimeout bounds every Receive call.
const DefaultReadTimeout = 5 * time.Second

// Transport wraps a single net.Conn with the framing and timeout semantics
// the protocol needs. It is not safe for concurrent Send/Receive pairs from
// multiple goroutines; callers (the Client) serialize round trips with
// their own mutex, matching the protocol's strict FIFO request/response
// contract.
type Transport struct {
	host string
	port int

	dial func(network, address string) (net.Conn, error)

	conn        net.Conn
	readTimeout time.Duration
	clock       timeutil.Clock
}

// New returns a Transport targeting host:port, using net.Dial to connect.
func New(host string, port int) *Transport {
	return &Transport{
		host:        host,
		port:        port,
		dial:        net.Dial,
		readTimeout: DefaultReadTimeout,
		clock:       timeutil.RealClock(),
	}
}

// SetClock overrides the clock used to compute read deadlines. Used by
// tests that need to simulate a timeout deterministically.
func (t *Transport) SetClock(c timeutil.Clock) {
	t.clock = c
}

// SetDialFunc overrides how Connect establishes a net.Conn. Used by tests
// that substitute net.Pipe for a real socket.
func (t *Transport) SetDialFunc(dial func(network, address string) (net.Conn, error)) {
	t.dial = dial
}

// SetReadTimeout overrides the default 5-second receive timeout. Primarily
// useful in tests.
func (t *Transport) SetReadTimeout(d time.Duration) {
	t.readTimeout = d
}

// Connect establishes the TCP connection. Per spec, a failed initial
// connect is a fatal condition; callers that want recoverable behavior
// should still treat the returned error as terminal for this attempt.
func (t *Transport) Connect() error {
	conn, err := t.dial("tcp", net.JoinHostPort(t.host, strconv.Itoa(t.port)))
	if err != nil {
		return &dfserrors.DisconnectError{Reason: err.Error()}
	}
	t.conn = conn
	return nil
}

// Close releases the socket. Safe to call even if not connected.
func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Send serializes and writes a packet in full.
func (t *Transport) Send(p *wire.Packet) error {
	data := p.Encode()
	if _, err := t.conn.Write(data); err != nil {
		return &dfserrors.DisconnectError{Reason: err.Error()}
	}
	return nil
}

// Receive reads from the socket until a full frame has been decoded,
// returning it. It returns *dfserrors.DisconnectError if the peer closed
// the connection (a zero-byte read) and *dfserrors.TimeoutError if a read
// exceeds the configured timeout. A protocol-format error (malformed
// headers, missing content-length) is folded into DisconnectError, since
// the connection can no longer be trusted once framing has gone wrong.
func (t *Transport) Receive() (*wire.Packet, error) {
	dec := wire.NewDecoder()
	buf := make([]byte, ReadBufferSize)

	for {
		if t.readTimeout > 0 {
			if err := t.conn.SetReadDeadline(t.clock.Now().Add(t.readTimeout)); err != nil {
				return nil, &dfserrors.DisconnectError{Reason: err.Error()}
			}
		}

		n, err := t.conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, &dfserrors.TimeoutError{}
			}
			return nil, &dfserrors.DisconnectError{Reason: err.Error()}
		}
		if n == 0 {
			return nil, &dfserrors.DisconnectError{Reason: "zero-byte read"}
		}

		pkt, err := dec.Feed(buf[:n])
		if err != nil {
			return nil, &dfserrors.DisconnectError{Reason: err.Error()}
		}
		if pkt != nil {
			return pkt, nil
		}
	}
}
