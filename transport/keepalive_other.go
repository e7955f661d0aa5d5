//go:build !linux

package transport

import (
	"log"
	"net"
)

// applyKeepAlive on non-Linux platforms only toggles the portable
// net.TCPConn.SetKeepAlive switch; the fine-grained probe/idle/interval
// tuning is Linux-specific (TCP_KEEPCNT/TCP_KEEPIDLE/TCP_KEEPINTVL), exactly
// as the teacher's collector_darwin.go stub mirrors collector_linux.go's
// signature while doing nothing platform-specific.
func applyKeepAlive(raw net.Conn, ka KeepAlive) error {
	tc, ok := raw.(*net.TCPConn)
	if !ok {
		log.Println("WrnNoKeepalive: connection is not a *net.TCPConn")
		return nil
	}
	if err := tc.SetKeepAlive(true); err != nil {
		log.Println("WrnNoKeepalive:", err)
	}
	return nil
}

// applyCork is a no-op on platforms without TCP_CORK/TCP_NOPUSH wired up.
func applyCork(net.Conn, bool) {}
