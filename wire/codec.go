package wire

import (
	"github.com/rsyslog/rsyslog-sub006/errcode"
)

// recvState is the Receiver's current position in the frame grammar.
type recvState int

const (
	beginFrame recvState = iota
	inTxnr
	inCmd
	inDatalen
	inData
	inTrailer
	finished
)

// Receiver is a stateful octet consumer: feed it bytes one chunk at a time
// (as they arrive off the transport, however they happen to be split across
// reads) and it accumulates a Frame, calling back once per completed frame.
// It is not safe for concurrent use; each session owns exactly one.
type Receiver struct {
	state      recvState
	maxDataSiz int

	txnrDigits []byte
	cmdBytes   []byte
	lenDigits  []byte
	data       []byte
	dataWant   int

	txnr int
}

// NewReceiver constructs a Receiver that will reject any frame whose datalen
// exceeds maxDataSize.
func NewReceiver(maxDataSize int) *Receiver {
	if maxDataSize <= 0 {
		maxDataSize = DefaultMaxDataSize
	}
	return &Receiver{state: beginFrame, maxDataSiz: maxDataSize}
}

func (r *Receiver) reset() {
	r.state = beginFrame
	r.txnrDigits = r.txnrDigits[:0]
	r.cmdBytes = r.cmdBytes[:0]
	r.lenDigits = r.lenDigits[:0]
	r.data = nil
	r.dataWant = 0
	r.txnr = 0
}

// Feed consumes buf octet by octet, invoking onFrame for each frame that
// becomes complete along the way. It returns nil once buf is consumed, or
// an error the instant the grammar is violated or onFrame fails (spec.md's
// InvalidFrame / InvalidTxnr / InvalidDatalen / DataTooLong). A non-nil
// error leaves the Receiver in an unusable state; the caller (the session)
// must tear the connection down, matching spec.md §4.2's "any frame-level
// ... error, mark the session broken".
func (r *Receiver) Feed(buf []byte, onFrame func(Frame) error) error {
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		if err := r.feedByte(b); err != nil {
			return err
		}
		if r.state == finished {
			f := Frame{
				Txnr:    r.txnr,
				Cmd:     string(r.cmdBytes),
				Datalen: len(r.data),
				Data:    append([]byte(nil), r.data...),
			}
			r.reset()
			if err := onFrame(f); err != nil {
				return err
			}
		}
	}
	return nil
}

func atoiStrict(digits []byte) int {
	n := 0
	for _, d := range digits {
		n = n*10 + int(d-'0')
	}
	return n
}

func (r *Receiver) feedByte(b byte) error {
	switch r.state {
	case beginFrame:
		if !isDigit(b) {
			return errcode.New(errcode.InvalidFrame, "expected digit at start of frame")
		}
		r.state = inTxnr
		r.txnrDigits = append(r.txnrDigits, b)
		return nil

	case inTxnr:
		if isDigit(b) {
			if len(r.txnrDigits) >= MaxDigits {
				return errcode.New(errcode.InvalidTxnr, "txnr has too many digits")
			}
			r.txnrDigits = append(r.txnrDigits, b)
			return nil
		}
		if b != ' ' {
			return errcode.New(errcode.InvalidFrame, "expected SP after txnr")
		}
		r.txnr = atoiStrict(r.txnrDigits)
		r.state = inCmd
		return nil

	case inCmd:
		if validCmdByte(b) {
			if len(r.cmdBytes) >= 32 {
				return errcode.New(errcode.InvalidCmd, "cmd too long")
			}
			r.cmdBytes = append(r.cmdBytes, b)
			return nil
		}
		if b != ' ' {
			return errcode.New(errcode.InvalidFrame, "expected SP after cmd")
		}
		if len(r.cmdBytes) == 0 {
			return errcode.New(errcode.InvalidCmd, "empty cmd")
		}
		r.state = inDatalen
		return nil

	case inDatalen:
		if isDigit(b) {
			if len(r.lenDigits) >= MaxDigits {
				return errcode.New(errcode.InvalidDatalen, "datalen has too many digits")
			}
			r.lenDigits = append(r.lenDigits, b)
			return nil
		}
		if len(r.lenDigits) == 0 {
			return errcode.New(errcode.InvalidDatalen, "empty datalen")
		}
		datalen := atoiStrict(r.lenDigits)
		if datalen > r.maxDataSiz {
			return errcode.New(errcode.DataTooLong, "datalen exceeds maxDataSize")
		}
		r.dataWant = datalen
		r.data = make([]byte, 0, datalen)
		if datalen == 0 {
			// No SP precedes an empty data area; this byte is already the trailer.
			if b != '\n' {
				return errcode.New(errcode.InvalidFrame, "expected LF trailer after zero datalen")
			}
			r.state = finished
			return nil
		}
		if b != ' ' {
			return errcode.New(errcode.InvalidFrame, "expected SP before data")
		}
		r.state = inData
		return nil

	case inData:
		r.data = append(r.data, b)
		if len(r.data) == r.dataWant {
			r.state = inTrailer
		}
		return nil

	case inTrailer:
		if b != '\n' {
			return errcode.New(errcode.InvalidFrame, "expected LF trailer")
		}
		r.state = finished
		return nil
	}
	return errcode.New(errcode.InvalidFrame, "receiver in unknown state")
}
