package proxy

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTunnelRelaysBothDirections(t *testing.T) {
	clientApp, clientConn := net.Pipe()
	remoteConn, remotePeer := net.Pipe()

	done := make(chan struct{})
	go func() {
		runTunnel(clientConn, clientConn, remoteConn)
		close(done)
	}()

	// client -> remote
	go func() {
		_, _ = clientApp.Write([]byte("ping!"))
	}()
	got := make([]byte, 5)
	_, err := io.ReadFull(remotePeer, got)
	require.NoError(t, err)
	assert.Equal(t, "ping!", string(got))

	// remote -> client
	go func() {
		_, _ = remotePeer.Write([]byte("pong?"))
	}()
	got = make([]byte, 5)
	_, err = io.ReadFull(clientApp, got)
	require.NoError(t, err)
	assert.Equal(t, "pong?", string(got))

	// Closing the client ends the first pump, which closes the remote
	// connection, which in turn ends the second pump.
	clientApp.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tunnel did not finish after client close")
	}

	_, err = remotePeer.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestPumpClosesDestination(t *testing.T) {
	src, srcPeer := net.Pipe()
	dst, dstPeer := net.Pipe()

	done := make(chan struct{})
	go func() {
		pump(dst, src, "client_to_remote")
		close(done)
	}()

	go func() {
		_, _ = srcPeer.Write([]byte("data"))
		srcPeer.Close()
	}()

	got, err := io.ReadAll(dstPeer)
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not finish after source EOF")
	}
}

func TestPumpStopsOnWriteError(t *testing.T) {
	src, srcPeer := net.Pipe()
	dst, dstPeer := net.Pipe()

	// Destination refuses writes immediately.
	dst.Close()
	dstPeer.Close()

	done := make(chan struct{})
	go func() {
		pump(dst, src, "client_to_remote")
		close(done)
	}()

	go func() {
		_, _ = srcPeer.Write([]byte("lost"))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop on write error")
	}

	src.Close()
	srcPeer.Close()
}
