package relp

import (
	"context"
	"crypto/tls"
	"log"
	"net"
	"sync"
	"time"

	"github.com/rsyslog/rsyslog-sub006/command"
	"github.com/rsyslog/rsyslog-sub006/errcode"
	"github.com/rsyslog/rsyslog-sub006/metrics"
	"github.com/rsyslog/rsyslog-sub006/peerauth"
	"github.com/rsyslog/rsyslog-sub006/session"
	"github.com/rsyslog/rsyslog-sub006/transport"
)

// Engine is the server-side facade: one listener accepting connections,
// each promoted to its own session.Session running in its own goroutine
// (spec.md §4.7, DESIGN.md's "Reactor mapping").
type Engine struct {
	cfg       Config
	cb        session.Callbacks
	tlsCfg    *tls.Config
	permNames []*peerauth.Pattern

	mu       sync.Mutex
	sessions map[string]*session.Session
	ln       net.Listener
	wg       sync.WaitGroup
}

// NewEngine validates and defaults cfg, returning an Engine ready for Run.
func NewEngine(cfg Config, cb session.Callbacks) (*Engine, error) {
	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		cb:       cb,
		sessions: make(map[string]*session.Session),
	}

	if cfg.Transport.EnableTLS {
		tlsCfg, err := transport.BuildTLSConfig(cfg.Transport, true)
		if err != nil {
			e.reportGenericError(cfg.ListenAddr, err.Error(), errcode.ErrTlsSetup)
			return nil, err
		}
		e.tlsCfg = tlsCfg
		if cfg.Transport.AuthMode == transport.AuthName {
			patterns, err := peerauth.CompileAll(cfg.Transport.PermittedPeers)
			if err != nil {
				e.reportGenericError(cfg.ListenAddr, err.Error(), errcode.ErrTlsSetup)
				return nil, err
			}
			e.permNames = patterns
		}
	}
	return e, nil
}

func (e *Engine) addSession(s *session.Session) {
	e.mu.Lock()
	e.sessions[s.UUID] = s
	e.mu.Unlock()
}

func (e *Engine) removeSession(s *session.Session) {
	e.mu.Lock()
	delete(e.sessions, s.UUID)
	e.mu.Unlock()
}

// Sessions returns a snapshot of the currently live sessions, for
// cmd/relp-stats.
func (e *Engine) Sessions() []*session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*session.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	return out
}

// Run binds the listener and accepts connections until ctx is cancelled or
// Shutdown is called.
func (e *Engine) Run(ctx context.Context) error {
	ln, err := transport.Listen(e.cfg.ListenAddr, e.cfg.ProtocolFamily)
	if err != nil {
		e.reportGenericError(e.cfg.ListenAddr, err.Error(), errcode.CouldNotBind)
		return err
	}
	e.ln = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				e.wg.Wait()
				return nil
			default:
				return err
			}
		}
		e.wg.Add(1)
		go e.handleConn(ctx, raw)
	}
}

func (e *Engine) handleConn(ctx context.Context, raw net.Conn) {
	defer e.wg.Done()

	conn, ok := e.upgradeAndAuth(ctx, raw)
	if !ok {
		return
	}

	commands := cloneEnableMap(e.cfg.Commands)
	sess := session.NewServerSession(conn, e.cfg.sessionConfig(), e.cb, commands)
	e.addSession(sess)
	defer e.removeSession(sess)

	if err := sess.Serve(ctx); err != nil {
		log.Println("relp session ended:", sess.String(), err)
	}
}

func (e *Engine) upgradeAndAuth(ctx context.Context, raw net.Conn) (*transport.Conn, bool) {
	if !e.cfg.Transport.EnableTLS {
		return transport.NewPlain(raw, "server"), true
	}

	conn := transport.NewTLSServer(raw, e.tlsCfg)
	if err := conn.Handshake(ctx); err != nil {
		metrics.TLSHandshakes.WithLabelValues("error").Inc()
		e.reportGenericError(raw.RemoteAddr().String(), err.Error(), errcode.ErrTlsHands)
		conn.Close()
		return nil, false
	}
	metrics.TLSHandshakes.WithLabelValues("ok").Inc()

	okAuth, authErr := transport.CheckPeer(conn, e.cfg.Transport.AuthMode, e.cfg.Transport.PermittedPeers, e.permNames)
	if !okAuth {
		metrics.AuthFailures.WithLabelValues(authModeName(e.cfg.Transport.AuthMode)).Inc()
		if e.cb.OnAuthError != nil {
			e.cb.OnAuthError(nil, conn.RemoteAddr().String(), authErr.Error())
		}
		conn.Close()
		return nil, false
	}
	return conn, true
}

// Shutdown sends the unsolicited serverclose hint to every live session and
// stops accepting new connections.
func (e *Engine) Shutdown() {
	if e.ln != nil {
		e.ln.Close()
	}
	for _, s := range e.Sessions() {
		s.SendServerClose(time.Now().Add(time.Second))
	}
}

// reportGenericError invokes the engine-level callback for errors with no
// session context (spec.md §6/§7: bind failure, pre-session TLS setup
// failure), falling back to a log line if the embedder didn't wire one.
func (e *Engine) reportGenericError(objectInfo, message string, code errcode.Code) {
	if e.cb.OnGenericError != nil {
		e.cb.OnGenericError(objectInfo, message, code)
	} else {
		log.Println("relp engine error:", objectInfo, message, code)
	}
}

func cloneEnableMap(m command.EnableMap) command.EnableMap {
	out := make(command.EnableMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
