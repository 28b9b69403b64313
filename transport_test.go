package smbc

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func frame(typ byte, payload []byte) []byte {
	n := len(payload)
	return append([]byte{typ, byte(n >> 16), byte(n >> 8), byte(n)}, payload...)
}

func TestReceiveFrameSkipsKeepalive(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := newTransport(client, 0)
	defer tr.close()

	go func() {
		server.Write(frame(0x85, nil))
		server.Write(frame(0x85, []byte{1, 2}))
		server.Write(frame(frameSessionMessage, []byte("payload")))
	}()

	pkt, err := tr.receiveFrame(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), pkt)
}

func TestSendFrame(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := newTransport(client, 0)
	defer tr.close()

	payload := make([]byte, 70000)
	payload[0], payload[len(payload)-1] = 0xfe, 0xef

	errc := make(chan error, 1)
	go func() {
		errc <- tr.sendFrame(context.Background(), payload)
	}()

	got := make([]byte, 4+len(payload))
	_, err := io.ReadFull(server, got)
	require.NoError(t, err)
	require.NoError(t, <-errc)

	require.Equal(t, frame(frameSessionMessage, payload), got)
}

func TestTransportBreaksOnError(t *testing.T) {
	client, server := net.Pipe()

	tr := newTransport(client, 0)

	go func() {
		// truncated frame
		server.Write([]byte{0, 0, 0, 10, 1, 2})
		server.Close()
	}()

	_, err := tr.receiveFrame(context.Background())
	require.ErrorIs(t, err, ErrConnectionClosed)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)

	// no further I/O once broken
	require.Equal(t, ErrConnectionClosed, tr.sendFrame(context.Background(), []byte("x")))
	_, err = tr.receiveFrame(context.Background())
	require.Equal(t, ErrConnectionClosed, err)
	require.NoError(t, tr.close())
}

func TestReceiveFrameEmptyMessage(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := newTransport(client, 0)

	go server.Write(frame(frameSessionMessage, nil))

	_, err := tr.receiveFrame(context.Background())
	require.ErrorIs(t, err, ErrIO)
	require.True(t, tr.broken.Load())
}

func TestTransportTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := newTransport(client, 20*time.Millisecond)

	_, err := tr.receiveFrame(context.Background())
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
	require.ErrorIs(t, err, ErrIO)
}

func TestSendFrameTooLarge(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := newTransport(client, 0)
	defer tr.close()

	err := tr.sendFrame(context.Background(), make([]byte, maxFrameSize+1))
	var ierr *InternalError
	require.ErrorAs(t, err, &ierr)
	require.False(t, tr.broken.Load())
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	ep := Endpoint{Host: "127.0.0.1", Port: addr.Port}
	_, err = dialTransport(context.Background(), ep, TransportConfig{Timeout: time.Second})
	require.ErrorIs(t, err, ErrConnectionRefused)

	var cerr *ConnectError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, ep, cerr.Endpoint)
	require.Equal(t, ConnectRefused, cerr.Reason)
}

func TestDialBadSocks5URL(t *testing.T) {
	_, err := dialTransport(context.Background(), Endpoint{Host: "fileserver"}, TransportConfig{Socks5URL: "://nowhere"})

	var cerr *ConnectError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, ConnectOther, cerr.Reason)
}

func TestClassifyDialError(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want ConnectReason
	}{
		{context.DeadlineExceeded, ConnectTimeout},
		{&net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, ConnectRefused},
		{&net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ENETUNREACH)}, ConnectUnreachable},
		{&net.DNSError{Name: "nowhere.invalid", Err: "no such host", IsNotFound: true}, ConnectUnreachable},
		{errors.New("No more connections can be made to this remote computer at this time because the computer has already accepted the maximum number of connections."), ConnectRefused},
		{errors.New("something else"), ConnectOther},
	} {
		require.Equal(t, tc.want, classifyDialError(tc.err), "%v", tc.err)
	}
}

func TestEndpoint(t *testing.T) {
	require.Equal(t, "fileserver:445", Endpoint{Host: "fileserver"}.Address())
	require.Equal(t, "fileserver:1445", Endpoint{Host: "fileserver", Port: 1445}.String())
	require.Equal(t, "[::1]:445", Endpoint{Host: "::1"}.Address())
}
