package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rsyslog/rsyslog-sub006/errcode"
)

func TestPlainSendRecv(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var serverConn net.Conn
	accepted := make(chan struct{})
	go func() {
		serverConn, err = ln.Accept()
		close(accepted)
	}()

	clientRaw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	<-accepted
	require.NoError(t, err)

	client := NewPlain(clientRaw, "client")
	server := NewPlain(serverConn, "server")
	defer client.Close()
	defer server.Close()

	n, err := client.Send([]byte("hello"), time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, err = server.Recv(buf, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestRecvTimeoutIsNotFatal(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()
	clientRaw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer clientRaw.Close()
	serverRaw := <-accepted
	defer serverRaw.Close()

	server := NewPlain(serverRaw, "server")
	buf := make([]byte, 16)
	_, err = server.Recv(buf, time.Now().Add(10*time.Millisecond))
	require.Error(t, err)
	code, ok := errcode.From(err)
	require.True(t, ok)
	require.Equal(t, errcode.TimedOut, code)
}

func TestDialListen(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", FamilyV4)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, err := Dial(ctx, ln.Addr().String(), FamilyV4)
	require.NoError(t, err)
	defer conn.Close()
}

func TestPeerHostnameLookupOff(t *testing.T) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:20514")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", PeerHostname(addr, DNSLookupOff))
}
