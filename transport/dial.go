package transport

import (
	"context"
	"net"

	"github.com/rsyslog/rsyslog-sub006/errcode"
)

// ProtocolFamily biases listener bind / dial address resolution (spec.md
// §6).
type ProtocolFamily int

const (
	FamilyAny ProtocolFamily = iota
	FamilyV4
	FamilyV6
)

func (f ProtocolFamily) network() string {
	switch f {
	case FamilyV4:
		return "tcp4"
	case FamilyV6:
		return "tcp6"
	default:
		return "tcp"
	}
}

// Listen binds addr (host:port, host may be empty for all interfaces) under
// the given protocol family. A listener may be asked to bind multiple
// addresses under one logical Listener (spec.md §3); callers that want that
// call Listen once per address.
func Listen(addr string, family ProtocolFamily) (net.Listener, error) {
	l, err := net.Listen(family.network(), addr)
	if err != nil {
		return nil, errcode.Wrap(errcode.CouldNotBind, err)
	}
	return l, nil
}

// Dial connects to addr under the given protocol family, bounded by ctx.
func Dial(ctx context.Context, addr string, family ProtocolFamily) (net.Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, family.network(), addr)
	if err != nil {
		return nil, errcode.Wrap(errcode.IoErr, err)
	}
	return c, nil
}

// DNSLookupMode controls whether PeerHostname performs a reverse DNS
// lookup or just returns the address literal.
type DNSLookupMode int

const (
	DNSLookupOn DNSLookupMode = iota
	DNSLookupOff
)

// PeerHostname derives the "hostname" RELP reports for a peer, per spec.md
// §6's dnsLookupMode knob. When lookup is off (or fails), the original
// implementation falls back to the numeric address literal rather than
// leaving the field empty (original_source/src/relp.c's
// relpEngineSetDnsLookupMode path); PeerHostname does the same, returning
// the dotted-decimal or IPv6 address without port or brackets.
func PeerHostname(addr net.Addr, mode DNSLookupMode) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	if mode == DNSLookupOff {
		return host
	}
	names, err := net.LookupAddr(host)
	if err != nil || len(names) == 0 {
		return host
	}
	return names[0]
}
