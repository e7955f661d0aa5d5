package wire

import (
	"time"

	"github.com/rsyslog/rsyslog-sub006/errcode"
)

// reservedTxnrWidth is the number of bytes set aside for the txnr at the
// front of a SendBuffer's underlying buffer, regardless of the txnr's actual
// decimal length. Reserving the full width lets RewriteTxnr patch in a
// longer txnr later (needed for retransmit-after-reconnect, where txnrs are
// reassigned) without reallocating or shifting the rest of the buffer.
const reservedTxnrWidth = MaxDigits

// OnResponse is invoked when the rsp matching a SendBuffer's txnr arrives.
type OnResponse func(Frame)

// SendBuffer is a pre-serialized frame ready for transport: the rendered
// wire bytes (with reservedTxnrWidth bytes set aside for the txnr), a write
// cursor for partial-write resumption, and an optional response callback.
type SendBuffer struct {
	buf      []byte // full underlying buffer, txnr right-aligned in the first reservedTxnrWidth bytes
	cursor   int    // index of the next unwritten byte within buf
	Txnr     int
	Cmd      string // command verb this buffer encodes, for logging/metrics
	OnRsp    OnResponse
	QueuedAt time.Time // set by the caller when queued, for round-trip latency metrics
}

// BuildSendBuffer renders txnr/cmd/data into a SendBuffer whose txnr occupies
// a reservedTxnrWidth-byte slot, left-padded with spaces, so RewriteTxnr can
// later substitute a different txnr of up to reservedTxnrWidth digits in
// place.
func BuildSendBuffer(txnr int, cmd string, data []byte, onRsp OnResponse) (*SendBuffer, error) {
	body, err := Build(txnr, cmd, data)
	if err != nil {
		return nil, err
	}
	// body starts with the decimal txnr already rendered at minimal width;
	// re-render with the reserved prefix instead.
	txnrLen := decimalLen(txnr)
	prefixPad := reservedTxnrWidth - txnrLen
	buf := make([]byte, 0, prefixPad+len(body))
	for i := 0; i < prefixPad; i++ {
		buf = append(buf, ' ')
	}
	buf = append(buf, body...)

	return &SendBuffer{
		buf:    buf,
		cursor: prefixPad,
		Txnr:   txnr,
		Cmd:    cmd,
		OnRsp:  onRsp,
	}, nil
}

func decimalLen(n int) int {
	if n == 0 {
		return 1
	}
	l := 0
	for n > 0 {
		l++
		n /= 10
	}
	return l
}

// Bytes returns the portion of the buffer not yet written: from the current
// cursor (which starts at the first real txnr byte) to the end.
func (sb *SendBuffer) Bytes() []byte {
	return sb.buf[sb.cursor:]
}

// Advance moves the write cursor forward by n bytes, recording a partial
// write. Done reports whether the whole buffer has now been transmitted.
func (sb *SendBuffer) Advance(n int) {
	sb.cursor += n
}

// Done reports whether the entire SendBuffer has been written to the
// transport.
func (sb *SendBuffer) Done() bool {
	return sb.cursor >= len(sb.buf)
}

// RewriteTxnr patches a new txnr into an already-serialized SendBuffer in
// place, adjusting the starting cursor so the reserved prefix absorbs any
// difference in decimal length. This is the mechanism for client-side
// retransmission under a new txnr after session re-establishment; it never
// reallocates the underlying buffer. The cursor is reset to the first byte
// of the new txnr whatever was written before, so the whole frame goes out
// again; the retransmit path relies on this, since its buffers were already
// written in full on the old connection.
func (sb *SendBuffer) RewriteTxnr(newTxnr int) error {
	newLen := decimalLen(newTxnr)
	if newLen > reservedTxnrWidth {
		return errcode.New(errcode.InvalidTxnr, "new txnr too long to fit reserved prefix")
	}
	start := reservedTxnrWidth - newLen
	// Render the new txnr's digits into [start, reservedTxnrWidth).
	n := newTxnr
	for i := reservedTxnrWidth - 1; i >= start; i-- {
		if n == 0 {
			sb.buf[i] = '0'
			continue
		}
		sb.buf[i] = byte('0' + n%10)
		n /= 10
	}
	// Blank any now-unused leading bytes in the reserved region so a shorter
	// txnr doesn't leave stale digits behind if somehow re-rewritten longer
	// later.
	for i := 0; i < start; i++ {
		sb.buf[i] = ' '
	}
	sb.Txnr = newTxnr
	sb.cursor = start
	return nil
}
