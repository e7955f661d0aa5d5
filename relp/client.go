package relp

import (
	"context"
	"crypto/tls"
	"log"

	"github.com/rsyslog/rsyslog-sub006/errcode"
	"github.com/rsyslog/rsyslog-sub006/metrics"
	"github.com/rsyslog/rsyslog-sub006/peerauth"
	"github.com/rsyslog/rsyslog-sub006/session"
	"github.com/rsyslog/rsyslog-sub006/transport"
)

// Client is the outbound-connection facade over a single client session
// (spec.md §4.3).
type Client struct {
	cfg       Config
	sess      *session.Session
	tlsCfg    *tls.Config
	permNames []*peerauth.Pattern
}

// NewClient builds a client ready to Connect to cfg.DialAddr. cb wires the
// embedder's callbacks onto the underlying session.
func NewClient(cfg Config, cb session.Callbacks) (*Client, error) {
	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg}

	if cfg.Transport.EnableTLS {
		tlsCfg, err := transport.BuildTLSConfig(cfg.Transport, false)
		if err != nil {
			reportGenericError(cb, cfg.DialAddr, err.Error(), errcode.ErrTlsSetup)
			return nil, err
		}
		c.tlsCfg = tlsCfg
		if cfg.Transport.AuthMode == transport.AuthName {
			patterns, err := peerauth.CompileAll(cfg.Transport.PermittedPeers)
			if err != nil {
				reportGenericError(cb, cfg.DialAddr, err.Error(), errcode.ErrTlsSetup)
				return nil, err
			}
			c.permNames = patterns
		}
	}

	dial := func(ctx context.Context) (*transport.Conn, error) {
		raw, err := transport.Dial(ctx, cfg.DialAddr, cfg.ProtocolFamily)
		if err != nil {
			return nil, err
		}
		var conn *transport.Conn
		if c.tlsCfg != nil {
			conn = transport.NewTLSClient(raw, c.tlsCfg)
			if err := conn.Handshake(ctx); err != nil {
				metrics.TLSHandshakes.WithLabelValues("error").Inc()
				conn.Close()
				return nil, err
			}
			metrics.TLSHandshakes.WithLabelValues("ok").Inc()
			ok, authErr := transport.CheckPeer(conn, cfg.Transport.AuthMode, cfg.Transport.PermittedPeers, c.permNames)
			if !ok {
				metrics.AuthFailures.WithLabelValues(authModeName(cfg.Transport.AuthMode)).Inc()
				if cb.OnAuthError != nil {
					cb.OnAuthError(nil, conn.RemoteAddr().String(), authErr.Error())
				}
				conn.Close()
				return nil, authErr
			}
		} else {
			conn = transport.NewPlain(raw, "client")
		}
		if err := conn.ApplyKeepAlive(cfg.Transport.KeepAlive); err != nil {
			// Best-effort per spec.md §5; not fatal.
			_ = err
		}
		return conn, nil
	}

	c.sess = session.NewClientSession(cfg.sessionConfig(), cb, cfg.Commands, dial)
	return c, nil
}

// reportGenericError invokes cb's engine-level callback for errors with no
// session context (spec.md §6/§7: TLS setup failure during client
// construction), falling back to a log line if the embedder didn't wire one.
func reportGenericError(cb session.Callbacks, objectInfo, message string, code errcode.Code) {
	if cb.OnGenericError != nil {
		cb.OnGenericError(objectInfo, message, code)
	} else {
		log.Println("relp client error:", objectInfo, message, code)
	}
}

func authModeName(m transport.AuthMode) string {
	switch m {
	case transport.AuthFingerprint:
		return "fingerprint"
	case transport.AuthName:
		return "name"
	default:
		return "none"
	}
}

// Connect runs the open handshake.
func (c *Client) Connect(ctx context.Context) error {
	return c.sess.Connect(ctx)
}

// SendSyslog transmits data as a syslog frame, returning its assigned txnr.
func (c *Client) SendSyslog(ctx context.Context, data []byte) (int, error) {
	return c.sess.SendSyslog(ctx, data)
}

// Disconnect runs the close handshake.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.sess.Disconnect(ctx)
}

// State reports the underlying session's state.
func (c *Client) State() session.State {
	return c.sess.State()
}

// UnackedLen reports the number of frames sent but not yet acknowledged.
func (c *Client) UnackedLen() int {
	return c.sess.UnackedLen()
}
