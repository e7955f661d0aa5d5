package session

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rsyslog/rsyslog-sub006/command"
	"github.com/rsyslog/rsyslog-sub006/errcode"
	"github.com/rsyslog/rsyslog-sub006/offers"
	"github.com/rsyslog/rsyslog-sub006/transport"
)

func testConfig() Config {
	c := DefaultConfig()
	c.Timeout = 5 * time.Second
	c.WindowSize = 4
	return c
}

func allowAll() command.EnableMap {
	m := command.NewEnableMap()
	m.Set(command.Syslog, command.Desired)
	return m
}

// harness spins up a listener, a server session goroutine, and a client
// session dialed against it, returning both for the test to drive.
type harness struct {
	ln       net.Listener
	client   *Session
	server   *Session
	serveErr chan error
}

func newHarness(t *testing.T, serverCommands, clientCommands command.EnableMap, cb Callbacks) *harness {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	h := &harness{ln: ln, serveErr: make(chan error, 1)}

	// The server session must already be serving when the client connects,
	// since Connect blocks until the server answers the open command.
	accepted := make(chan *Session, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			accepted <- nil
			return
		}
		srv := NewServerSession(transport.NewPlain(raw, "server"), testConfig(), cb, serverCommands)
		accepted <- srv
		h.serveErr <- srv.Serve(context.Background())
	}()

	dial := func(ctx context.Context) (*transport.Conn, error) {
		raw, err := transport.Dial(ctx, ln.Addr().String(), transport.FamilyV4)
		if err != nil {
			return nil, err
		}
		return transport.NewPlain(raw, "client"), nil
	}

	h.client = NewClientSession(testConfig(), Callbacks{}, clientCommands, dial)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = h.client.Connect(ctx)
	require.NoError(t, err)

	h.server = <-accepted
	require.NotNil(t, h.server)

	return h
}

func (h *harness) Close() {
	h.ln.Close()
}

func TestHappyPathSyslogRoundTrip(t *testing.T) {
	received := make(chan string, 1)
	cb := Callbacks{
		OnSyslogReceive: func(hostname, ip string, data []byte) errcode.Code {
			received <- string(data)
			return errcode.OK
		},
	}
	h := newHarness(t, allowAll(), allowAll(), cb)
	defer h.Close()

	require.Equal(t, ReadyToSend, h.client.State())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	txnr, err := h.client.SendSyslog(ctx, []byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, 2, txnr) // txnr 1 was consumed by the open handshake

	select {
	case msg := <-received:
		require.Equal(t, "hello world", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received syslog frame")
	}
}

func TestDisabledCommandRespondsNon200(t *testing.T) {
	// syslog must be Forbidden outright: an Unset command that the client
	// offers becomes Enabled during the open negotiation.
	serverCmds := command.NewEnableMap()
	serverCmds.Set(command.Syslog, command.Forbidden)
	h := newHarness(t, serverCmds, allowAll(), Callbacks{})
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// SendSyslog returns once the frame is written; the server's
	// "500 command disabled" rsp is seen when the client reads it back.
	txnr, err := h.client.SendSyslog(ctx, []byte("nope"))
	require.NoError(t, err)
	err = h.client.waitForRspTxnr(ctx, txnr)
	require.Error(t, err)
	code, _ := errcode.From(err)
	require.Equal(t, errcode.RspStateErr, code)
}

func TestWindowFillsAndDrains(t *testing.T) {
	received := make(chan struct{}, 16)
	cb := Callbacks{
		OnSyslogReceive: func(hostname, ip string, data []byte) errcode.Code {
			received <- struct{}{}
			return errcode.OK
		},
	}
	h := newHarness(t, allowAll(), allowAll(), cb)
	defer h.Close()

	cfg := testConfig()
	for i := 0; i < cfg.WindowSize; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := h.client.SendSyslog(ctx, []byte("msg"))
		cancel()
		require.NoError(t, err)
	}

	for i := 0; i < cfg.WindowSize; i++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatalf("only received %d of %d", i, cfg.WindowSize)
		}
	}
}

func TestTxnrMonotonic(t *testing.T) {
	h := newHarness(t, allowAll(), allowAll(), Callbacks{})
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	t1, err := h.client.SendSyslog(ctx, []byte("a"))
	require.NoError(t, err)
	t2, err := h.client.SendSyslog(ctx, []byte("b"))
	require.NoError(t, err)
	require.Equal(t, t1+1, t2)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t, allowAll(), allowAll(), Callbacks{})
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.client.Disconnect(ctx))
	err := h.client.Disconnect(ctx)
	require.Error(t, err)
}

func TestOffersNegotiateRequiredMissingBreaksClient(t *testing.T) {
	clientCmds := command.NewEnableMap()
	clientCmds.Set(command.Syslog, command.Required)
	serverCmds := command.NewEnableMap()
	serverCmds.Set(command.Syslog, command.Forbidden)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan *transport.Conn, 1)
	go func() {
		raw, aerr := ln.Accept()
		if aerr != nil {
			accepted <- nil
			return
		}
		accepted <- transport.NewPlain(raw, "server")
	}()

	dial := func(ctx context.Context) (*transport.Conn, error) {
		raw, derr := transport.Dial(ctx, ln.Addr().String(), transport.FamilyV4)
		if derr != nil {
			return nil, derr
		}
		return transport.NewPlain(raw, "client"), nil
	}

	client := NewClientSession(testConfig(), Callbacks{}, clientCmds, dial)

	serverDone := make(chan struct{})
	go func() {
		conn := <-accepted
		if conn == nil {
			close(serverDone)
			return
		}
		srv := NewServerSession(conn, testConfig(), Callbacks{}, serverCmds)
		_ = srv.Serve(context.Background())
		close(serverDone)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = client.Connect(ctx)
	require.Error(t, err)
	require.Equal(t, Broken, client.State())
}

func TestOffersNegotiateServerRequiredMissingBreaksServer(t *testing.T) {
	clientCmds := command.NewEnableMap()
	clientCmds.Set(command.Syslog, command.Forbidden)
	serverCmds := command.NewEnableMap()
	serverCmds.Set(command.Syslog, command.Required)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan *transport.Conn, 1)
	go func() {
		raw, aerr := ln.Accept()
		if aerr != nil {
			accepted <- nil
			return
		}
		accepted <- transport.NewPlain(raw, "server")
	}()

	dial := func(ctx context.Context) (*transport.Conn, error) {
		raw, derr := transport.Dial(ctx, ln.Addr().String(), transport.FamilyV4)
		if derr != nil {
			return nil, derr
		}
		return transport.NewPlain(raw, "client"), nil
	}

	client := NewClientSession(testConfig(), Callbacks{}, clientCmds, dial)

	serverBroken := make(chan State, 1)
	go func() {
		conn := <-accepted
		if conn == nil {
			serverBroken <- Disconnected
			return
		}
		srv := NewServerSession(conn, testConfig(), Callbacks{}, serverCmds)
		_ = srv.Serve(context.Background())
		serverBroken <- srv.State()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// The client's own negotiation succeeds (it required nothing), but the
	// server rejects the open because its Required command went unsatisfied.
	_ = client.Connect(ctx)

	select {
	case st := <-serverBroken:
		require.Equal(t, Broken, st)
	case <-time.After(2 * time.Second):
		t.Fatal("server session never finished")
	}
}

func TestReconnectResendsUnackedFramesInOrderUnderNewTxnrs(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	type received struct {
		connIdx int
		data    string
	}
	recv := make(chan received, 16)

	var connIdx int32
	go func() {
		for {
			raw, aerr := ln.Accept()
			if aerr != nil {
				return
			}
			idx := int(atomic.AddInt32(&connIdx, 1))
			conn := transport.NewPlain(raw, "server")
			cb := Callbacks{
				OnSyslogReceive: func(hostname, ip string, data []byte) errcode.Code {
					recv <- received{connIdx: idx, data: string(data)}
					return errcode.OK
				},
			}
			srv := NewServerSession(conn, testConfig(), cb, allowAll())
			go srv.Serve(context.Background())
		}
	}()

	dial := func(ctx context.Context) (*transport.Conn, error) {
		raw, derr := transport.Dial(ctx, ln.Addr().String(), transport.FamilyV4)
		if derr != nil {
			return nil, derr
		}
		return transport.NewPlain(raw, "client"), nil
	}

	cfg := testConfig()
	cfg.AutoRetry = true
	client := NewClientSession(cfg, Callbacks{}, allowAll(), dial)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))

	for _, msg := range []string{"one", "two", "three"} {
		_, err := client.SendSyslog(ctx, []byte(msg))
		require.NoError(t, err)
	}
	require.Equal(t, 3, client.UnackedLen())

	// The original connection's server already processed and acked these
	// three frames; the client never read the acks back (its window never
	// filled), so they're still sitting unacked client-side. Drain the
	// first connection's receives so they don't pollute the post-reconnect
	// assertions below.
	for i := 0; i < 3; i++ {
		select {
		case <-recv:
		case <-time.After(2 * time.Second):
			t.Fatal("original connection never received its syslog frames")
		}
	}

	// Simulate the link dying: tear down the client's transport and mark
	// the session Broken, the state reconnectAndResend expects to recover
	// from.
	client.conn.Close()
	client.setState(Broken)

	require.NoError(t, client.reconnectAndResend(ctx))
	require.Equal(t, ReadyToSend, client.State())
	require.Equal(t, 3, client.UnackedLen())

	// New txnrs were allocated post-reconnect: a fresh nextTxnr=1, the open
	// handshake consuming txnr 1, then the three resends rewritten in turn.
	client.mu.Lock()
	var newTxnrs []int
	for _, sb := range client.unacked {
		newTxnrs = append(newTxnrs, sb.Txnr)
	}
	client.mu.Unlock()
	require.Equal(t, []int{2, 3, 4}, newTxnrs)

	for i, want := range []string{"one", "two", "three"} {
		select {
		case got := <-recv:
			require.Equal(t, 2, got.connIdx, "resend %d should arrive on the reconnected (second) connection", i)
			require.Equal(t, want, got.data, "resent frames must stay in original order")
		case <-time.After(2 * time.Second):
			t.Fatalf("reconnected connection never received resend %d", i)
		}
	}
}

func TestNegotiatedSoftwareOfferIsInformational(t *testing.T) {
	sw := offers.Software{URL: "https://example.test", Version: "1.0", Name: "testclient"}
	cfg := testConfig()
	cfg.Software = sw
	require.Equal(t, "testclient", cfg.Software.Name)
}
