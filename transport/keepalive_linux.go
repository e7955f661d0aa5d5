package transport

import (
	"log"
	"net"

	"golang.org/x/sys/unix"
)

// applyKeepAlive tunes TCP_KEEPCNT/TCP_KEEPIDLE/TCP_KEEPINTVL directly via
// golang.org/x/sys/unix, the same low-level socket-option path
// netlink.go/collector use for reading inet_diag sockets, here turned
// around to configure one.
func applyKeepAlive(raw net.Conn, ka KeepAlive) error {
	tc, ok := raw.(*net.TCPConn)
	if !ok {
		log.Println("WrnNoKeepalive: connection is not a *net.TCPConn, cannot tune keepalive")
		return nil
	}
	if err := tc.SetKeepAlive(true); err != nil {
		log.Println("WrnNoKeepalive: SetKeepAlive:", err)
		return nil
	}
	rawConn, err := tc.SyscallConn()
	if err != nil {
		log.Println("WrnNoKeepalive: SyscallConn:", err)
		return nil
	}
	ctrlErr := rawConn.Control(func(fd uintptr) {
		if ka.Probes > 0 {
			if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, ka.Probes); err != nil {
				log.Println("WrnNoKeepalive: TCP_KEEPCNT:", err)
			}
		}
		if ka.Idle > 0 {
			if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, int(ka.Idle.Seconds())); err != nil {
				log.Println("WrnNoKeepalive: TCP_KEEPIDLE:", err)
			}
		}
		if ka.Interval > 0 {
			if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, int(ka.Interval.Seconds())); err != nil {
				log.Println("WrnNoKeepalive: TCP_KEEPINTVL:", err)
			}
		}
	})
	if ctrlErr != nil {
		log.Println("WrnNoKeepalive:", ctrlErr)
	}
	return nil
}

// applyCork requests TCP_CORK before a known batch of frames, and releases
// it afterward. Best-effort: failures are logged, never returned, since
// spec.md §5 says the hint "never affects correctness".
func applyCork(raw net.Conn, on bool) {
	tc, ok := raw.(*net.TCPConn)
	if !ok {
		return
	}
	rawConn, err := tc.SyscallConn()
	if err != nil {
		return
	}
	val := 0
	if on {
		val = 1
	}
	_ = rawConn.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_CORK, val)
	})
}
