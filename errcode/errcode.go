// Package errcode defines the fixed, monotonically numbered RELP error-code
// space and a small wrapping error type that carries one of those codes
// alongside a normal Go error, so embedders that want the numeric code (for
// the on-error/on-auth-error/on-generic-error callback surface) can get it
// without every internal package having to thread a parallel return value.
package errcode

import "fmt"

// Code is one member of the RELP error-code space.
type Code int

// The RELP error-code space, in the order spec.md §6 lists it. OK is always
// zero; SessionClosed signals a normal close, not a failure.
const (
	OK Code = iota
	OutOfMemory
	InvalidFrame
	ParamError
	InvalidPort
	CouldNotBind
	AcceptErr
	SessionBroken
	SessionClosed
	InvalidCmd
	DataTooLong
	InvalidTxnr
	InvalidDatalen
	PartialWrite
	IoErr
	TimedOut
	NotFound
	NotImplemented
	InvalidRspHdr
	EndOfData
	RspStateErr
	InvalidOffer
	UnknownCmd
	CmdDisabled
	InvalidHdl
	IncompatOffers
	RqdFeatMissing
	MaliciousHname
	InvalidHname
	AddrUnknown
	InvalidParam
	ErrTlsSetup
	ErrTlsHands
	ErrNoTls
	ErrNoTlsAuth
	AuthCertInvl
	AuthNoCert
	AuthErrFp
	AuthErrName
	InvldTlsPrio
	InvldWildcard
	InvldAuthMd
	ErrEpollCtl
	ZlibErr
	WrnNoKeepalive
)

var names = map[Code]string{
	OK:             "OK",
	OutOfMemory:    "OutOfMemory",
	InvalidFrame:   "InvalidFrame",
	ParamError:     "ParamError",
	InvalidPort:    "InvalidPort",
	CouldNotBind:   "CouldNotBind",
	AcceptErr:      "AcceptErr",
	SessionBroken:  "SessionBroken",
	SessionClosed:  "SessionClosed",
	InvalidCmd:     "InvalidCmd",
	DataTooLong:    "DataTooLong",
	InvalidTxnr:    "InvalidTxnr",
	InvalidDatalen: "InvalidDatalen",
	PartialWrite:   "PartialWrite",
	IoErr:          "IoErr",
	TimedOut:       "TimedOut",
	NotFound:       "NotFound",
	NotImplemented: "NotImplemented",
	InvalidRspHdr:  "InvalidRspHdr",
	EndOfData:      "EndOfData",
	RspStateErr:    "RspStateErr",
	InvalidOffer:   "InvalidOffer",
	UnknownCmd:     "UnknownCmd",
	CmdDisabled:    "CmdDisabled",
	InvalidHdl:     "InvalidHdl",
	IncompatOffers: "IncompatOffers",
	RqdFeatMissing: "RqdFeatMissing",
	MaliciousHname: "MaliciousHname",
	InvalidHname:   "InvalidHname",
	AddrUnknown:    "AddrUnknown",
	InvalidParam:   "InvalidParam",
	ErrTlsSetup:    "ErrTlsSetup",
	ErrTlsHands:    "ErrTlsHands",
	ErrNoTls:       "ErrNoTls",
	ErrNoTlsAuth:   "ErrNoTlsAuth",
	AuthCertInvl:   "AuthCertInvl",
	AuthNoCert:     "AuthNoCert",
	AuthErrFp:      "AuthErrFp",
	AuthErrName:    "AuthErrName",
	InvldTlsPrio:   "InvldTlsPrio",
	InvldWildcard:  "InvldWildcard",
	InvldAuthMd:    "InvldAuthMd",
	ErrEpollCtl:    "ErrEpollCtl",
	ZlibErr:        "ZlibErr",
	WrnNoKeepalive: "WrnNoKeepalive",
}

// String renders the code's symbolic name, or a numeric fallback for an
// out-of-range value.
func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error wraps an underlying error with the RELP code it corresponds to.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error from a code and a message, in the manner of errors.New.
func New(code Code, msg string) error {
	return &Error{Code: code, Err: fmt.Errorf("%s", msg)}
}

// Wrap attaches code to an existing error. Wrapping a nil error returns nil.
func Wrap(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: err}
}

// From extracts the Code from err if it (or something it wraps) is an
// *Error, and reports whether one was found.
func From(err error) (Code, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return OK, false
}
