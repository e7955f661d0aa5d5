// Package session implements the per-connection RELP protocol state
// machine (spec.md §3/§4.2/§4.3): the server- and client-side open/close
// handshakes, windowed send/ack tracking, and reconnect-and-resend.
package session

// State is a session's position in the spec.md §3 state diagram:
//
//	Disconnected -> PreInit -> InitCmdSent -> InitRspRcvd -> ReadyToSend <-> WindowFull
//	                                                              |
//	                                                        CloseCmdSent -> CloseRspRcvd -> Disconnected
//	                                                              |
//	                                                           Broken (absorbing except explicit reconnect)
type State int

const (
	Disconnected State = iota
	PreInit
	InitCmdSent
	InitRspRcvd
	ReadyToSend
	WindowFull
	CloseCmdSent
	CloseRspRcvd
	Broken
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case PreInit:
		return "PreInit"
	case InitCmdSent:
		return "InitCmdSent"
	case InitRspRcvd:
		return "InitRspRcvd"
	case ReadyToSend:
		return "ReadyToSend"
	case WindowFull:
		return "WindowFull"
	case CloseCmdSent:
		return "CloseCmdSent"
	case CloseRspRcvd:
		return "CloseRspRcvd"
	case Broken:
		return "Broken"
	default:
		return "State(?)"
	}
}

// Role distinguishes which side of the handshake a Session plays.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}
