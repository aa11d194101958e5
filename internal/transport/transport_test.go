package transport

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/DanSnow/dfs-fuse/internal/dfserrors"
	"github.com/DanSnow/dfs-fuse/internal/wire"
	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newConnectedPair wires a Transport directly to one end of an in-memory
// pipe, leaving the other end for the test to act as the "server".
func newConnectedPair(t *testing.T) (*Transport, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	tr := &Transport{conn: client, readTimeout: time.Second, clock: timeutil.RealClock()}
	t.Cleanup(func() { _ = tr.Close() })
	return tr, server
}

func TestSendWritesEncodedPacket(t *testing.T) {
	tr, server := newConnectedPair(t)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4096)
		n, _ := server.Read(buf)
		done <- buf[:n]
	}()

	p := wire.New(map[string]string{"controller": "echo", "action": "echo"}, []byte("ping"))
	require.NoError(t, tr.Send(p))

	got := <-done
	assert.Contains(t, string(got), "ping")
	assert.Contains(t, string(got), "controller: echo")
}

func TestReceiveAssemblesAcrossWrites(t *testing.T) {
	tr, server := newConnectedPair(t)

	p := wire.New(map[string]string{"result": "OK"}, []byte("hello"))
	encoded := p.Encode()

	go func() {
		_, _ = server.Write(encoded[:5])
		time.Sleep(10 * time.Millisecond)
		_, _ = server.Write(encoded[5:])
	}()

	got, err := tr.Receive()
	require.NoError(t, err)
	assert.Equal(t, "OK", got.Headers["result"])
	assert.Equal(t, []byte("hello"), got.Body)
}

func TestReceiveDisconnectOnClose(t *testing.T) {
	tr, server := newConnectedPair(t)
	_ = server.Close()

	_, err := tr.Receive()
	require.Error(t, err)
	var discErr *dfserrors.DisconnectError
	assert.ErrorAs(t, err, &discErr)
}

func TestReceiveTimeout(t *testing.T) {
	tr, server := newConnectedPair(t)
	tr.readTimeout = 20 * time.Millisecond
	defer server.Close()

	_, err := tr.Receive()
	require.Error(t, err)
	var timeoutErr *dfserrors.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

var _ io.Closer = (*Transport)(nil)
