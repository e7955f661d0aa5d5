// Package wire implements the RELP frame grammar: the octet-stream parser
// that folds incoming bytes into Frames, and the SendBuffer builder that
// renders a Frame back into its wire bytes.
//
// Wire syntax (spec.md §3), SP-separated, trailing LF, data-preceding SP
// omitted when datalen is zero:
//
//	TXNR SP CMD SP DATALEN [SP DATA] '\n'
package wire

import (
	"fmt"

	"github.com/rsyslog/rsyslog-sub006/errcode"
)

const (
	// MaxTxnr is the largest legal transaction number; txnrs wrap from
	// MaxTxnr back to 1 (never 0 — that's reserved for unsolicited hints).
	MaxTxnr = 999999999
	// MaxDigits bounds both txnr and datalen to at most 9 decimal digits.
	MaxDigits = 9
	// DefaultMaxDataSize is the default frame-level data cap (128 KiB).
	DefaultMaxDataSize = 128 * 1024
)

// Frame is one fully-parsed RELP protocol data unit.
type Frame struct {
	Txnr    int
	Cmd     string
	Datalen int
	Data    []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("Frame{txnr=%d cmd=%s datalen=%d}", f.Txnr, f.Cmd, f.Datalen)
}

func validCmdByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// Build renders txnr, cmd, and data into their exact on-wire representation
// as a fresh byte slice (no reserved txnr prefix — see SendBuffer for that).
func Build(txnr int, cmd string, data []byte) ([]byte, error) {
	if txnr < 0 || txnr > MaxTxnr {
		return nil, errcode.New(errcode.InvalidTxnr, "txnr out of range")
	}
	if len(cmd) == 0 || len(cmd) > 32 {
		return nil, errcode.New(errcode.InvalidCmd, "cmd length out of range")
	}
	for i := 0; i < len(cmd); i++ {
		if !validCmdByte(cmd[i]) {
			return nil, errcode.New(errcode.InvalidCmd, "cmd must be alphabetic")
		}
	}
	if len(data) > DefaultMaxDataSize {
		return nil, errcode.New(errcode.DataTooLong, "data exceeds maxDataSize")
	}

	buf := make([]byte, 0, 16+len(cmd)+len(data))
	buf = appendDecimal(buf, txnr)
	buf = append(buf, ' ')
	buf = append(buf, cmd...)
	buf = append(buf, ' ')
	buf = appendDecimal(buf, len(data))
	if len(data) > 0 {
		buf = append(buf, ' ')
		buf = append(buf, data...)
	}
	buf = append(buf, '\n')
	return buf, nil
}

func appendDecimal(buf []byte, n int) []byte {
	if n == 0 {
		return append(buf, '0')
	}
	start := len(buf)
	for n > 0 {
		buf = append(buf, byte('0'+n%10))
		n /= 10
	}
	// reverse the digits just appended
	end := len(buf) - 1
	for i, j := start, end; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf
}
