// Package transport wraps a TCP connection (optionally TLS) with the
// blocking-with-deadline send/receive primitives the session and engine
// layers build on, plus the keepalive tuning, cork hint, and peer
// authentication spec.md §4.6/§5 describe.
//
// Go's net.Conn already gives every socket non-blocking, netpoller-backed
// I/O under the hood (a goroutine parked in Read/Write is descheduled, not
// spinning); transport.Conn layers spec.md's observable contract — partial
// writes reported rather than silently retried, a bounded per-call
// deadline standing in for "would block" — on top of that, rather than
// hand-rolling raw non-blocking sockets and an epoll loop. See DESIGN.md's
// "Reactor mapping" entry for the full rationale.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"
	"time"

	"github.com/rsyslog/rsyslog-sub006/errcode"
	"github.com/rsyslog/rsyslog-sub006/peerauth"
)

// AuthMode selects the post-handshake peer check spec.md §4.6 describes.
type AuthMode int

const (
	AuthNone AuthMode = iota
	AuthFingerprint
	AuthName
)

// RetryOp names the direction a stalled TLS operation is retryable in.
// Go's crypto/tls absorbs the actual retry loop inside Handshake()/Read()/
// Write(), so this is exposed for introspection (a caller inspecting a
// stalled session can see what it's blocked on) rather than driven by the
// caller, per spec.md §4.6/§9.
type RetryOp int

const (
	RetryNone RetryOp = iota
	RetryHandshake
	RetrySend
	RetryRecv
)

// KeepAlive tunes TCP keepalive probing (spec.md §6/§5, and
// original_source/src/tcp.c's relpTcpEnableKeepAlive three-way tuning).
type KeepAlive struct {
	Enabled  bool
	Probes   int
	Idle     time.Duration
	Interval time.Duration
}

// Config bundles the transport-level knobs from spec.md §6 that aren't
// already covered by session/engine configuration.
type Config struct {
	EnableTLS      bool
	TLSCompress    bool // not read by BuildTLSConfig
	DHBits         int
	AuthMode       AuthMode
	PriorityString string
	CACertFile     string
	OwnCertFile    string
	PrivKeyFile    string
	PermittedPeers []string
	KeepAlive      KeepAlive
}

// Conn is a single transport-level connection: a TCP socket, optionally
// upgraded to TLS, with the retry-op bookkeeping and peer-auth check spec.md
// requires.
type Conn struct {
	raw  net.Conn
	tls  *tls.Conn
	role string // "server" or "client", for log/error context only

	retryOp RetryOp
}

// NewPlain wraps an already-established net.Conn with no TLS.
func NewPlain(raw net.Conn, role string) *Conn {
	return &Conn{raw: raw, role: role}
}

// NewTLSServer wraps raw in a server-side TLS connection using cfg, without
// performing the handshake (call Handshake separately so the caller can
// bound it with a deadline/context).
func NewTLSServer(raw net.Conn, tlsCfg *tls.Config) *Conn {
	return &Conn{raw: raw, tls: tls.Server(raw, tlsCfg), role: "server"}
}

// NewTLSClient wraps raw in a client-side TLS connection.
func NewTLSClient(raw net.Conn, tlsCfg *tls.Config) *Conn {
	return &Conn{raw: raw, tls: tls.Client(raw, tlsCfg), role: "client"}
}

// IsTLS reports whether this connection negotiates TLS.
func (c *Conn) IsTLS() bool { return c.tls != nil }

// Handshake performs the TLS handshake (a no-op for plain connections),
// bounded by ctx. While the handshake is in progress no application-layer
// frames flow, per spec.md §4.6.
func (c *Conn) Handshake(ctx context.Context) error {
	if c.tls == nil {
		return nil
	}
	c.retryOp = RetryHandshake
	defer func() { c.retryOp = RetryNone }()

	if dl, ok := ctx.Deadline(); ok {
		if err := c.raw.SetDeadline(dl); err != nil {
			return errcode.Wrap(errcode.ErrTlsHands, err)
		}
		defer c.raw.SetDeadline(time.Time{})
	}
	if err := c.tls.HandshakeContext(ctx); err != nil {
		return errcode.Wrap(errcode.ErrTlsHands, err)
	}
	return nil
}

// conn returns the effective io.ReadWriter: the TLS conn if upgraded, else
// the raw socket.
func (c *Conn) conn() net.Conn {
	if c.tls != nil {
		return c.tls
	}
	return c.raw
}

// Recv reads up to len(buf) bytes, bounded by deadline. A zero deadline
// means no deadline. Per spec.md §4.6, a timeout is reported distinctly
// from other I/O errors so the caller can treat it as "would block" rather
// than session-fatal.
func (c *Conn) Recv(buf []byte, deadline time.Time) (int, error) {
	if err := c.conn().SetReadDeadline(deadline); err != nil {
		return 0, errcode.Wrap(errcode.IoErr, err)
	}
	n, err := c.conn().Read(buf)
	if err != nil {
		if isTimeout(err) {
			c.retryOp = RetryRecv
			return n, errcode.New(errcode.TimedOut, "read would block")
		}
		c.retryOp = RetryNone
		return n, errcode.Wrap(errcode.IoErr, err)
	}
	c.retryOp = RetryNone
	return n, nil
}

// Send writes buf, bounded by deadline, returning the number of bytes
// actually written. A partial write (n < len(buf), err == PartialWrite)
// leaves the caller's cursor advanced by n, per spec.md §5's "'Would
// block' on send leaves the write cursor advanced and is returned as a
// partial-write indication."
func (c *Conn) Send(buf []byte, deadline time.Time) (int, error) {
	if err := c.conn().SetWriteDeadline(deadline); err != nil {
		return 0, errcode.Wrap(errcode.IoErr, err)
	}
	n, err := c.conn().Write(buf)
	if err != nil {
		if isTimeout(err) {
			c.retryOp = RetrySend
			return n, errcode.Wrap(errcode.PartialWrite, err)
		}
		c.retryOp = RetryNone
		return n, errcode.Wrap(errcode.IoErr, err)
	}
	c.retryOp = RetryNone
	return n, nil
}

// RetryOp reports what the last operation was blocked on, if anything.
func (c *Conn) RetryOp() RetryOp { return c.retryOp }

// Close tears down the connection.
func (c *Conn) Close() error {
	return c.conn().Close()
}

// RemoteAddr is the peer's network address.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// RawConn exposes the underlying socket beneath any TLS layer, for callers
// that need concrete *net.TCPConn access (e.g. session identity derivation
// via m-lab/uuid.FromTCPConn).
func (c *Conn) RawConn() net.Conn { return c.raw }

// PeerCertificate returns the verified leaf certificate presented by the
// peer, if this is a TLS connection on which the handshake has completed.
func (c *Conn) PeerCertificate() *x509.Certificate {
	if c.tls == nil {
		return nil
	}
	state := c.tls.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	return state.PeerCertificates[0]
}

// Cork requests the transport enter (or leave) a batching mode before a
// known run of frames, a best-effort hint per spec.md §5 ("never affects
// correctness"). On platforms/sockets where the option isn't available,
// the failure is swallowed — same treatment as the keepalive knob.
func (c *Conn) Cork(on bool) {
	applyCork(c.raw, on)
}

// ApplyKeepAlive configures TCP keepalive probing on the underlying socket.
// Absence of the relevant OS option is a warning, not an error (spec.md §5).
func (c *Conn) ApplyKeepAlive(ka KeepAlive) error {
	if !ka.Enabled {
		return nil
	}
	return applyKeepAlive(c.raw, ka)
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// CheckPeer runs the configured post-handshake authentication check
// (spec.md §4.6) against the connection's peer certificate. ok reports
// whether the peer is permitted; the returned error, when non-nil,
// describes why (for the on-auth-error callback). AuthNone always
// succeeds.
func CheckPeer(c *Conn, mode AuthMode, permittedFingerprints []string, permittedNames []*peerauth.Pattern) (bool, error) {
	if mode == AuthNone {
		return true, nil
	}
	cert := c.PeerCertificate()
	if cert == nil {
		return false, errcode.New(errcode.AuthNoCert, "peer presented no certificate")
	}
	switch mode {
	case AuthFingerprint:
		if peerauth.MatchFingerprint(cert, permittedFingerprints) {
			return true, nil
		}
		return false, errcode.New(errcode.AuthErrFp, "peer certificate fingerprint "+peerauth.Fingerprint(cert)+" not in permitted list")
	case AuthName:
		if peerauth.MatchName(cert, permittedNames) {
			return true, nil
		}
		return false, errcode.New(errcode.AuthErrName, "no peer name matched a permitted pattern")
	default:
		return false, errcode.New(errcode.InvldAuthMd, "unknown auth mode")
	}
}
