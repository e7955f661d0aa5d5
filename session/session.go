package session

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/m-lab/uuid"
	"github.com/rs/xid"

	"github.com/rsyslog/rsyslog-sub006/command"
	"github.com/rsyslog/rsyslog-sub006/errcode"
	"github.com/rsyslog/rsyslog-sub006/metrics"
	"github.com/rsyslog/rsyslog-sub006/offers"
	"github.com/rsyslog/rsyslog-sub006/transport"
	"github.com/rsyslog/rsyslog-sub006/wire"
)

// recvChunkSize is the fixed-size chunk the reactor pulls per readable
// event, per spec.md §4.7 ("default 32 KiB").
const recvChunkSize = 32 * 1024

// Config bundles the per-session knobs of spec.md §6 not already owned by
// the transport layer.
type Config struct {
	WindowSize      int
	Timeout         time.Duration
	MaxDataSize     int
	ProtocolVersion int
	Software        offers.Software
	DNSLookupMode   transport.DNSLookupMode
	AutoRetry       bool // client-only: reconnect-and-resend on Broken
}

// DefaultConfig matches spec.md §6/§7's stated defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:      128,
		Timeout:         90 * time.Second,
		MaxDataSize:     wire.DefaultMaxDataSize,
		ProtocolVersion: 0,
		Software:        offers.Software{URL: "https://github.com/rsyslog/rsyslog-sub006", Version: "0.1.0", Name: "relp-go"},
		DNSLookupMode:   transport.DNSLookupOn,
	}
}

// Callbacks is the embedder-facing surface spec.md §6 exposes.
type Callbacks struct {
	// OnSyslogReceive is invoked for each successfully received syslog frame
	// on a server session. A non-OK code causes the server to respond with
	// a non-200 status instead of "200 OK".
	OnSyslogReceive func(hostname, ip string, data []byte) errcode.Code
	// OnAuthError reports a TLS peer-auth failure.
	OnAuthError func(sess *Session, authData, message string)
	// OnError reports a per-session error.
	OnError func(sess *Session, objectInfo, message string, code errcode.Code)
	// OnGenericError reports an engine-level error with no session context
	// (bind failure, pre-session TLS setup failure, spec.md §6/§7).
	OnGenericError func(objectInfo, message string, code errcode.Code)
}

// Session is one connection's RELP protocol state (spec.md §3).
type Session struct {
	Role Role
	UUID string

	cfg Config
	cb  Callbacks

	mu       sync.Mutex
	state    State
	conn     *transport.Conn
	recv     *wire.Receiver
	nextTxnr int
	unacked  []*wire.SendBuffer
	queue    *SendQueue
	commands command.EnableMap
	opened   bool

	peerOffers   *offers.List
	peerHostname string
	peerAddr     string

	// client-only: how to (re)establish the transport, saved at
	// construction so reconnect can rebuild it identically.
	dial func(ctx context.Context) (*transport.Conn, error)
}

// newIdentity derives a session UUID from the kernel-assigned socket
// identity when the underlying connection is a plain *net.TCPConn
// (m-lab/uuid.FromTCPConn, as in eventsocket.go), falling back to a
// generated ID for listenerless/test sessions and TLS-wrapped sockets.
func newIdentity(conn *transport.Conn) string {
	if conn != nil {
		if tc, ok := conn.RawConn().(*net.TCPConn); ok {
			if id, err := uuid.FromTCPConn(tc); err == nil {
				return id
			}
		}
	}
	return xid.New().String()
}

// newSession builds the bare struct for both NewServerSession and
// NewClientSession, centralizing the shared fields.
func newSession(role Role, conn *transport.Conn, cfg Config, cb Callbacks, commands command.EnableMap) *Session {
	return &Session{
		Role:     role,
		UUID:     newIdentity(conn),
		cfg:      cfg,
		cb:       cb,
		state:    Disconnected,
		conn:     conn,
		recv:     wire.NewReceiver(cfg.MaxDataSize),
		nextTxnr: 1,
		queue:    &SendQueue{},
		commands: commands,
	}
}

// NewServerSession wraps an accepted connection. The session is not yet
// usable until Serve is running; the first frame it receives must be
// "open" or the session is aborted (spec.md §4.2).
func NewServerSession(conn *transport.Conn, cfg Config, cb Callbacks, commands command.EnableMap) *Session {
	s := newSession(RoleServer, conn, cfg, cb, commands)
	s.state = PreInit
	if conn != nil {
		s.peerAddr = conn.RemoteAddr().String()
		s.peerHostname = transport.PeerHostname(conn.RemoteAddr(), cfg.DNSLookupMode)
	}
	return s
}

// NewClientSession constructs a client session whose transport is built
// on demand (and rebuilt identically on reconnect) by dial.
func NewClientSession(cfg Config, cb Callbacks, commands command.EnableMap, dial func(ctx context.Context) (*transport.Conn, error)) *Session {
	s := newSession(RoleClient, nil, cfg, cb, commands)
	s.dial = dial
	return s
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if st == Broken {
		metrics.SessionsBroken.WithLabelValues(errcode.SessionBroken.String()).Inc()
	}
}

// breakWith marks the session Broken and records the errcode that caused it,
// for more precise accounting than the generic setState(Broken) path.
func (s *Session) breakWith(code errcode.Code) {
	s.mu.Lock()
	s.state = Broken
	s.mu.Unlock()
	metrics.SessionsBroken.WithLabelValues(code.String()).Inc()
}

// String renders a short identity/state line for logs, in the spirit of
// relpclt.c's session-info string (spec.md §4.8).
func (s *Session) String() string {
	return fmt.Sprintf("session[%s role=%s peer=%s state=%s]", s.UUID, s.Role, s.peerAddr, s.State())
}

// LogFields renders the same session-info relpclt.c logs on error, as a
// structured field set for callers building their own log.Printf lines
// (e.g. "%s peer=%s state=%s", instead of parsing String()'s fixed format).
func (s *Session) LogFields() map[string]any {
	return map[string]any{
		"uuid":    s.UUID,
		"role":    s.Role.String(),
		"peer":    s.peerAddr,
		"state":   s.State().String(),
		"unacked": s.UnackedLen(),
	}
}

// PeerAddr returns the peer's network address literal.
func (s *Session) PeerAddr() string {
	return s.peerAddr
}

func (s *Session) allocTxnr() int {
	t := s.nextTxnr
	s.nextTxnr++
	if s.nextTxnr > wire.MaxTxnr {
		s.nextTxnr = 1
	}
	return t
}

func deadlineFrom(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

func (s *Session) reportError(objectInfo, message string, code errcode.Code) {
	if s.cb.OnError != nil {
		s.cb.OnError(s, objectInfo, message, code)
	} else {
		log.Println("relp session error:", objectInfo, message, code)
	}
}

// ---- server side ----------------------------------------------------------

// Serve is the server-side reactor loop for one accepted session: read a
// chunk, feed the frame codec, dispatch completed frames, drain the send
// queue, repeat until ctx is done or the session breaks. It is meant to run
// in its own goroutine per spec.md §4.7/DESIGN.md's reactor mapping.
func (s *Session) Serve(ctx context.Context) error {
	defer s.conn.Close()
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	buf := make([]byte, recvChunkSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := s.conn.Recv(buf, deadlineFrom(s.cfg.Timeout))
		if err != nil {
			if code, ok := errcode.From(err); ok && code == errcode.TimedOut {
				continue
			}
			s.setState(Broken)
			return err
		}
		if n == 0 {
			s.setState(Disconnected)
			return nil
		}

		feedErr := s.recv.Feed(buf[:n], s.handleServerFrame)
		if feedErr != nil {
			code, _ := errcode.From(feedErr)
			if code == errcode.SessionClosed {
				// Send the close rsp that handleClose queued before tearing down.
				_ = s.drainQueue(deadlineFrom(s.cfg.Timeout))
				s.setState(Disconnected)
				return nil
			}
			s.breakWith(code)
			s.reportError(s.String(), feedErr.Error(), code)
			return feedErr
		}

		if err := s.drainQueue(deadlineFrom(s.cfg.Timeout)); err != nil {
			s.setState(Broken)
			return err
		}
	}
}

func (s *Session) drainQueue(deadline time.Time) error {
	for {
		sb := s.queue.Front()
		if sb == nil {
			return nil
		}
		n, err := s.conn.Send(sb.Bytes(), deadline)
		if n > 0 {
			sb.Advance(n)
		}
		if err != nil {
			if code, ok := errcode.From(err); ok && (code == errcode.PartialWrite || code == errcode.TimedOut) {
				return nil // retry on next iteration
			}
			return err
		}
		if sb.Done() {
			s.queue.PopFront()
			metrics.FramesSent.WithLabelValues(sb.Cmd).Inc()
		}
	}
}

func (s *Session) handleServerFrame(f wire.Frame) error {
	if !s.opened && command.Parse(f.Cmd) != command.Open {
		return errcode.New(errcode.InvalidCmd, "first frame must be open")
	}
	if f.Txnr != 0 {
		s.mu.Lock()
		expected := s.nextTxnr
		s.mu.Unlock()
		if f.Txnr != expected {
			return errcode.New(errcode.InvalidTxnr, "out-of-sequence txnr")
		}
		s.mu.Lock()
		s.nextTxnr++
		if s.nextTxnr > wire.MaxTxnr {
			s.nextTxnr = 1
		}
		s.mu.Unlock()
	}

	verb := command.Parse(f.Cmd)
	metrics.FramesReceived.WithLabelValues(verb.String()).Inc()

	switch verb {
	case command.Open:
		return s.handleOpen(f)
	case command.Close:
		return s.handleClose(f)
	case command.Syslog:
		return s.handleSyslog(f)
	default:
		return errcode.New(errcode.InvalidCmd, "unrecognized or unexpected command: "+f.Cmd)
	}
}

func (s *Session) handleOpen(f wire.Frame) error {
	peer, err := offers.Parse(f.Data)
	if err != nil {
		return err
	}
	s.peerOffers = peer

	n, err := offers.Negotiate(peer, s.cfg.ProtocolVersion, s.commands)
	if err != nil {
		return err
	}
	s.commands.FreezeUnset()

	if unsatisfied := s.commands.RequiredUnsatisfied(); len(unsatisfied) > 0 {
		msg := fmt.Sprintf("500 peer did not offer required command %v\n", unsatisfied)
		sb, sbErr := wire.BuildSendBuffer(f.Txnr, "rsp", []byte(msg), nil)
		if sbErr == nil {
			s.queue.Push(sb)
			_ = s.flushQueue(context.Background())
		}
		return errcode.New(errcode.RqdFeatMissing, fmt.Sprintf("peer did not offer required command %v", unsatisfied))
	}

	local := offers.BuildLocal(n.Version, s.commands, s.cfg.Software)
	data := append([]byte("200 OK\n"), local.Serialize()...)
	sb, err := wire.BuildSendBuffer(f.Txnr, "rsp", data, nil)
	if err != nil {
		return err
	}
	s.queue.Push(sb)
	s.opened = true
	s.setState(ReadyToSend)
	metrics.SessionsOpened.Inc()
	return nil
}

func (s *Session) handleClose(f wire.Frame) error {
	sb, err := wire.BuildSendBuffer(f.Txnr, "rsp", nil, nil)
	if err != nil {
		return err
	}
	s.queue.Push(sb)
	return errcode.New(errcode.SessionClosed, "peer closed the session")
}

func (s *Session) handleSyslog(f wire.Frame) error {
	if s.commands[command.Syslog] != command.Enabled {
		sb, err := wire.BuildSendBuffer(f.Txnr, "rsp", []byte("500 command disabled"), nil)
		if err != nil {
			return err
		}
		s.queue.Push(sb)
		return nil
	}

	code := errcode.OK
	if s.cb.OnSyslogReceive != nil {
		code = s.cb.OnSyslogReceive(s.peerHostname, s.peerAddr, f.Data)
	}
	var data []byte
	if code == errcode.OK {
		data = []byte("200 OK")
	} else {
		data = []byte(fmt.Sprintf("500 %s", code))
	}
	sb, err := wire.BuildSendBuffer(f.Txnr, "rsp", data, nil)
	if err != nil {
		return err
	}
	s.queue.Push(sb)
	return nil
}

// SendServerClose queues the unsolicited teardown hint of spec.md §4.2
// ("Server-initiated teardown sends an unsolicited serverclose hint before
// closing the transport; loss of the hint is not fatal"), best-effort.
func (s *Session) SendServerClose(deadline time.Time) {
	sb, err := wire.BuildSendBuffer(0, "serverclose", nil, nil)
	if err != nil {
		return
	}
	_, _ = s.conn.Send(sb.Bytes(), deadline)
}

// ---- client side ------------------------------------------------------

// Connect builds the transport, runs the open handshake, and leaves the
// session ReadyToSend (spec.md §4.3).
func (s *Session) Connect(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return errcode.Wrap(errcode.IoErr, err)
	}
	s.conn = conn
	s.recv = wire.NewReceiver(s.cfg.MaxDataSize)
	s.nextTxnr = 1
	s.setState(PreInit)
	return s.openHandshake(ctx)
}

func (s *Session) openHandshake(ctx context.Context) error {
	s.setState(PreInit)
	local := offers.BuildLocal(s.cfg.ProtocolVersion, s.commands, s.cfg.Software)
	s.mu.Lock()
	txnr := s.allocTxnr()
	s.mu.Unlock()
	sb, err := wire.BuildSendBuffer(txnr, "open", local.Serialize(), nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.unacked = append(s.unacked, sb)
	s.mu.Unlock()
	s.queue.Push(sb)
	s.setState(InitCmdSent)

	if err := s.flushQueue(ctx); err != nil {
		s.setState(Broken)
		return err
	}
	if err := s.waitForState(ctx, InitRspRcvd); err != nil {
		s.setState(Broken)
		return err
	}
	s.setState(ReadyToSend)
	return nil
}

// flushQueue blocks (bounded by ctx/timeout) until the send queue empties.
func (s *Session) flushQueue(ctx context.Context) error {
	for !s.queue.Empty() {
		select {
		case <-ctx.Done():
			return errcode.New(errcode.TimedOut, "context done while flushing send queue")
		default:
		}
		if err := s.drainQueue(deadlineFrom(s.cfg.Timeout)); err != nil {
			return err
		}
	}
	return nil
}

// waitForState loops reading and dispatching incoming frames (draining the
// ack backlog as it goes, per spec.md §4.3 step 1) until the session
// reaches want or Broken, or ctx's bound elapses.
func (s *Session) waitForState(ctx context.Context, want State) error {
	deadline := deadlineFrom(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	buf := make([]byte, recvChunkSize)
	for {
		cur := s.State()
		if cur == want {
			return nil
		}
		if cur == Broken {
			return errcode.New(errcode.SessionBroken, "session broken while waiting")
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return errcode.New(errcode.TimedOut, "timed out waiting for state "+want.String())
		}

		readDeadline := deadline
		if readDeadline.IsZero() || time.Until(readDeadline) > time.Second {
			readDeadline = time.Now().Add(time.Second)
		}
		n, err := s.conn.Recv(buf, readDeadline)
		if err != nil {
			if code, ok := errcode.From(err); ok && code == errcode.TimedOut {
				continue
			}
			s.setState(Broken)
			return err
		}
		if n == 0 {
			s.setState(Broken)
			return errcode.New(errcode.IoErr, "connection closed while waiting")
		}
		if err := s.recv.Feed(buf[:n], s.handleClientFrame); err != nil {
			s.setState(Broken)
			return err
		}
	}
}

func (s *Session) handleClientFrame(f wire.Frame) error {
	if f.Txnr == 0 {
		// Unsolicited hint, e.g. serverclose: the server is tearing down.
		s.setState(Broken)
		return nil
	}
	if command.Parse(f.Cmd) != command.Rsp {
		return errcode.New(errcode.InvalidCmd, "client received non-rsp command: "+f.Cmd)
	}
	return s.handleRsp(f)
}

func (s *Session) handleRsp(f wire.Frame) error {
	s.mu.Lock()
	idx := -1
	for i, sb := range s.unacked {
		if sb.Txnr == f.Txnr {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return errcode.New(errcode.InvalidTxnr, "rsp for unknown txnr")
	}
	sb := s.unacked[idx]
	s.unacked = append(s.unacked[:idx], s.unacked[idx+1:]...)
	isOpenRsp := s.state == InitCmdSent
	wasWindowFull := s.state == WindowFull
	if wasWindowFull && len(s.unacked) < s.cfg.WindowSize {
		s.state = ReadyToSend
	}
	s.mu.Unlock()

	if !sb.QueuedAt.IsZero() {
		metrics.FrameLatency.Observe(time.Since(sb.QueuedAt).Seconds())
	}
	if sb.OnRsp != nil {
		sb.OnRsp(f)
	}
	if isOpenRsp {
		return s.handleOpenRsp(f)
	}
	return checkRspStatus(f)
}

// handleOpenRsp processes the server's reply to our open command: a status
// line followed by the server's offer list (spec.md §4.4). It negotiates
// against the local command policy and fails the session if a locally
// Required command was never offered by the peer.
func (s *Session) handleOpenRsp(f wire.Frame) error {
	body := f.Data
	var statusLine string
	var rest []byte
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		statusLine = string(body[:i])
		rest = body[i+1:]
	} else {
		statusLine = string(body)
	}
	parts := strings.SplitN(statusLine, " ", 2)
	code, err := strconv.Atoi(parts[0])
	if err != nil || code != 200 {
		s.setState(Broken)
		return errcode.New(errcode.RspStateErr, "open rejected: "+statusLine)
	}

	peer, err := offers.Parse(rest)
	if err != nil {
		s.setState(Broken)
		return err
	}
	s.peerOffers = peer
	if _, err := offers.Negotiate(peer, s.cfg.ProtocolVersion, s.commands); err != nil {
		s.setState(Broken)
		return err
	}
	s.commands.FreezeUnset()
	if unsatisfied := s.commands.RequiredUnsatisfied(); len(unsatisfied) > 0 {
		s.setState(Broken)
		return errcode.New(errcode.RqdFeatMissing, fmt.Sprintf("peer did not offer required command %v", unsatisfied))
	}
	s.setState(InitRspRcvd)
	metrics.SessionsOpened.Inc()
	return nil
}

func checkRspStatus(f wire.Frame) error {
	line := f.Data
	if i := strings.IndexByte(string(line), '\n'); i >= 0 {
		line = line[:i]
	}
	parts := strings.SplitN(string(line), " ", 2)
	if len(parts) == 0 {
		return errcode.New(errcode.InvalidRspHdr, "empty rsp")
	}
	code, err := strconv.Atoi(parts[0])
	if err != nil {
		return errcode.New(errcode.InvalidRspHdr, "rsp status is not numeric")
	}
	if code != 200 {
		return errcode.New(errcode.RspStateErr, fmt.Sprintf("non-200 rsp status %d", code))
	}
	return nil
}

// ErrSessionBroken is returned by Send/Disconnect when the session is
// Broken and auto-retry is disabled (or reconnect itself failed).
var ErrSessionBroken = errcode.New(errcode.SessionBroken, "session is broken")

// Send transmits cmd/data as the next frame on this client session,
// blocking (bounded by the session timeout) until the session is
// ReadyToSend, per spec.md §4.3. If the session is Broken and AutoRetry is
// configured, it reconnects and retransmits the backlog before sending.
func (s *Session) Send(ctx context.Context, cmd string, data []byte) (int, error) {
	if s.State() == Broken {
		if !s.cfg.AutoRetry {
			return 0, ErrSessionBroken
		}
		if err := s.reconnectAndResend(ctx); err != nil {
			return 0, err
		}
	}
	if err := s.waitForState(ctx, ReadyToSend); err != nil {
		return 0, err
	}

	s.mu.Lock()
	txnr := s.allocTxnr()
	s.mu.Unlock()

	sb, err := wire.BuildSendBuffer(txnr, cmd, data, nil)
	if err != nil {
		return 0, err
	}
	sb.QueuedAt = time.Now()

	s.mu.Lock()
	s.unacked = append(s.unacked, sb)
	if len(s.unacked) >= s.cfg.WindowSize {
		s.state = WindowFull
	}
	util := float64(len(s.unacked)) / float64(s.cfg.WindowSize)
	s.mu.Unlock()
	metrics.WindowUtilization.Observe(util)

	s.queue.Push(sb)
	if err := s.flushQueue(ctx); err != nil {
		return txnr, err
	}
	return txnr, nil
}

// SendSyslog is the common case of Send with cmd="syslog".
func (s *Session) SendSyslog(ctx context.Context, data []byte) (int, error) {
	return s.Send(ctx, "syslog", data)
}

// Disconnect runs the close handshake: wait briefly for ReadyToSend, send
// close, wait for its rsp, then mark Disconnected (spec.md §4.3). Close is
// idempotent: calling it again on an already-closed session is a no-op
// returning SessionClosed.
func (s *Session) Disconnect(ctx context.Context) error {
	if s.State() == Disconnected {
		return errcode.New(errcode.SessionClosed, "already disconnected")
	}
	if err := s.waitForState(ctx, ReadyToSend); err != nil {
		// The session never became ready: no close frame is sent, the
		// connection is just torn down locally.
		s.conn.Close()
		s.setState(Disconnected)
		return nil
	}

	s.mu.Lock()
	txnr := s.allocTxnr()
	s.mu.Unlock()
	sb, err := wire.BuildSendBuffer(txnr, "close", nil, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.unacked = append(s.unacked, sb)
	s.mu.Unlock()
	s.setState(CloseCmdSent)
	s.queue.Push(sb)
	if err := s.flushQueue(ctx); err != nil {
		s.conn.Close()
		s.setState(Disconnected)
		return err
	}

	_ = s.waitForRspTxnr(ctx, txnr)
	s.setState(CloseRspRcvd)
	s.conn.Close()
	s.setState(Disconnected)
	return nil
}

// waitForRspTxnr waits until the unacked list no longer contains txnr
// (i.e. its rsp arrived), bounded by the session timeout.
func (s *Session) waitForRspTxnr(ctx context.Context, txnr int) error {
	deadline := deadlineFrom(s.cfg.Timeout)
	buf := make([]byte, recvChunkSize)
	for {
		s.mu.Lock()
		found := false
		for _, sb := range s.unacked {
			if sb.Txnr == txnr {
				found = true
				break
			}
		}
		s.mu.Unlock()
		if !found {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return errcode.New(errcode.TimedOut, "timed out waiting for close rsp")
		}
		readDeadline := time.Now().Add(time.Second)
		n, err := s.conn.Recv(buf, readDeadline)
		if err != nil {
			if code, ok := errcode.From(err); ok && code == errcode.TimedOut {
				continue
			}
			return err
		}
		if n == 0 {
			return nil
		}
		if err := s.recv.Feed(buf[:n], s.handleClientFrame); err != nil {
			return err
		}
	}
}

// reconnectAndResend implements spec.md §4.3's re-establishment: abort the
// old transport, rebuild it with the saved connect parameters, run the open
// handshake, then retransmit every unacked send buffer in order, rewriting
// each to the new session's txnr before sending. Unacked entries stay in
// the list until their new rsp arrives; this is at-least-once delivery and
// duplicates are possible if an ack was lost after the peer already
// processed the frame (spec.md §4.3, an accepted trade-off, not a bug).
func (s *Session) reconnectAndResend(ctx context.Context) (err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ReconnectAttempts.WithLabelValues(outcome).Inc()
	}()

	if s.conn != nil {
		s.conn.Close()
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return errcode.Wrap(errcode.IoErr, err)
	}
	s.conn = conn
	s.recv = wire.NewReceiver(s.cfg.MaxDataSize)
	s.mu.Lock()
	s.nextTxnr = 1
	s.mu.Unlock()

	if err := s.openHandshake(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	pending := s.unacked
	s.unacked = nil
	s.mu.Unlock()

	for _, sb := range pending {
		s.mu.Lock()
		newTxnr := s.allocTxnr()
		s.mu.Unlock()
		if err := sb.RewriteTxnr(newTxnr); err != nil {
			return err
		}
		s.mu.Lock()
		s.unacked = append(s.unacked, sb)
		s.mu.Unlock()
		s.queue.Push(sb)
	}
	return s.flushQueue(ctx)
}

// UnackedLen reports the number of frames sent but not yet acknowledged —
// exposed for tests and for cmd/relp-stats.
func (s *Session) UnackedLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unacked)
}
