package receiver

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/goodieshq/godiode/internal/config"
	"github.com/goodieshq/godiode/internal/protocol"
	"github.com/goodieshq/godiode/internal/protocol/packets/v1"
	"github.com/goodieshq/godiode/internal/sender"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func dialLoopback(t *testing.T, to *net.UDPConn) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, to.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestLoopbackTransfer(t *testing.T) {
	session := config.Session{ChunkBytes: 1024, K: 8, R: 4}

	rcfg := config.NewReceive()
	rcfg.Session = session
	rcfg.IdleTimeout = 500 * time.Millisecond

	scfg := config.NewSend()
	scfg.Session = session
	scfg.RateBytesPerSec = 5_000_000

	data := randomBytes(t, 64*1024+317, 31)

	lconn := listenLoopback(t)
	var out bytes.Buffer
	rcv, err := New(lconn, &out, rcfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- rcv.Run(ctx) }()

	snd, err := sender.New(dialLoopback(t, lconn), bytes.NewReader(data), scfg)
	require.NoError(t, err)
	require.NoError(t, snd.Run(ctx))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("receiver did not complete")
	}

	assert.Equal(t, data, out.Bytes())
}

func TestLoopbackEmptyStream(t *testing.T) {
	session := config.Session{ChunkBytes: 1024, K: 4, R: 2}

	rcfg := config.NewReceive()
	rcfg.Session = session
	rcfg.IdleTimeout = 500 * time.Millisecond

	scfg := config.NewSend()
	scfg.Session = session
	scfg.RateBytesPerSec = 5_000_000

	lconn := listenLoopback(t)
	var out bytes.Buffer
	rcv, err := New(lconn, &out, rcfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- rcv.Run(ctx) }()

	snd, err := sender.New(dialLoopback(t, lconn), bytes.NewReader(nil), scfg)
	require.NoError(t, err)
	require.NoError(t, snd.Run(ctx))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("receiver did not complete")
	}

	assert.Empty(t, out.Bytes())
}

func TestLoopbackIncompleteStream(t *testing.T) {
	// a lone non-terminal packet, then silence: the idle timeout must close
	// the transfer out as incomplete
	session := config.Session{ChunkBytes: 64, K: 4, R: 0}

	rcfg := config.NewReceive()
	rcfg.Session = session
	rcfg.IdleTimeout = 300 * time.Millisecond

	lconn := listenLoopback(t)
	var out bytes.Buffer
	rcv, err := New(lconn, &out, rcfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- rcv.Run(ctx) }()

	conn := dialLoopback(t, lconn)
	frame, err := packets.NewDataChunk(0, 0, 4, 0, false, make([]byte, 64)).Marshal()
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, protocol.ErrIncompleteStream)
	case <-time.After(10 * time.Second):
		t.Fatal("receiver did not time out")
	}
	assert.Empty(t, out.Bytes())
}
