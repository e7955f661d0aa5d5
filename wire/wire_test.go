package wire

import (
	"strings"
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
)

func TestBuildParseRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		txnr int
		cmd  string
		data []byte
	}{
		{"empty data", 1, "open", nil},
		{"small data", 2, "syslog", []byte("hello world")},
		{"max digits txnr", 999999999, "close", nil},
		{"binary-ish data", 7, "syslog", []byte{0, 1, 2, 250, 251, '\n' - 1}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			wire, err := Build(c.txnr, c.cmd, c.data)
			require.NoError(t, err)

			var got Frame
			rcv := NewReceiver(DefaultMaxDataSize)
			n := 0
			err = rcv.Feed(wire, func(f Frame) error {
				got = f
				n++
				return nil
			})
			require.NoError(t, err)
			require.Equal(t, 1, n)

			want := Frame{Txnr: c.txnr, Cmd: c.cmd, Datalen: len(c.data), Data: c.data}
			if diff := deep.Equal(got.Cmd, want.Cmd); diff != nil {
				t.Error(diff)
			}
			if got.Txnr != want.Txnr || got.Datalen != want.Datalen {
				t.Errorf("got %+v, want %+v", got, want)
			}
			if len(c.data) == 0 {
				if len(got.Data) != 0 {
					t.Errorf("expected empty data, got %v", got.Data)
				}
			} else if diff := deep.Equal(got.Data, want.Data); diff != nil {
				t.Error(diff)
			}
		})
	}
}

func TestZeroDatalenOmitsSP(t *testing.T) {
	wire, err := Build(3, "close", nil)
	require.NoError(t, err)
	require.Equal(t, "3 close 0\n", string(wire))
}

func TestDataTooLong(t *testing.T) {
	data := make([]byte, DefaultMaxDataSize+1)
	_, err := Build(1, "syslog", data)
	require.Error(t, err)

	// Exactly at the boundary must succeed.
	ok := make([]byte, DefaultMaxDataSize)
	_, err = Build(1, "syslog", ok)
	require.NoError(t, err)
}

func TestReceiverRejectsMalformedFrame(t *testing.T) {
	// datalen claims 5 but only 2 bytes + LF are supplied, so the data area
	// runs on into the next frame and the byte where the LF trailer belongs
	// is not LF.
	rcv := NewReceiver(DefaultMaxDataSize)
	err := rcv.Feed([]byte("1 syslog 5 hi\n2 syslog 5 hello\n"), func(Frame) error { return nil })
	require.Error(t, err)
}

func TestReceiverRejectsOversizedDatalen(t *testing.T) {
	rcv := NewReceiver(10)
	err := rcv.Feed([]byte("1 syslog 11 "), func(Frame) error { return nil })
	require.Error(t, err)
}

func TestReceiverRestartableAcrossChunkBoundaries(t *testing.T) {
	full := []byte("42 syslog 11 hello world\n")
	var got []Frame
	rcv := NewReceiver(DefaultMaxDataSize)
	for i := 0; i < len(full); i++ {
		err := rcv.Feed(full[i:i+1], func(f Frame) error {
			got = append(got, f)
			return nil
		})
		require.NoError(t, err)
	}
	require.Len(t, got, 1)
	require.Equal(t, 42, got[0].Txnr)
	require.Equal(t, "syslog", got[0].Cmd)
	require.Equal(t, "hello world", string(got[0].Data))
}

func TestReceiverMultipleFramesInOneChunk(t *testing.T) {
	full := []byte("1 open 0\n2 close 0\n")
	var got []Frame
	rcv := NewReceiver(DefaultMaxDataSize)
	err := rcv.Feed(full, func(f Frame) error {
		got = append(got, f)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "open", got[0].Cmd)
	require.Equal(t, "close", got[1].Cmd)
}

func TestBuildAcceptsMaxTxnr(t *testing.T) {
	wire, err := Build(MaxTxnr, "rsp", []byte("200 OK"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(wire), "999999999 "))
}

func TestSendBufferRewriteTxnr(t *testing.T) {
	sb, err := BuildSendBuffer(5, "syslog", []byte("hi"), nil)
	require.NoError(t, err)
	require.Equal(t, "5 syslog 2 hi\n", string(sb.Bytes()))

	require.NoError(t, sb.RewriteTxnr(123456))
	require.Equal(t, "123456 syslog 2 hi\n", string(sb.Bytes()))

	// Rewriting to a 9-digit txnr must still fit the reserved prefix.
	require.NoError(t, sb.RewriteTxnr(999999999))
	require.Equal(t, "999999999 syslog 2 hi\n", string(sb.Bytes()))

	require.Error(t, sb.RewriteTxnr(1000000000))
}

func TestSendBufferPartialWrite(t *testing.T) {
	sb, err := BuildSendBuffer(1, "open", []byte("relp_version=0"), nil)
	require.NoError(t, err)
	total := len(sb.Bytes())
	sb.Advance(3)
	require.Equal(t, total-3, len(sb.Bytes()))
	require.False(t, sb.Done())
	sb.Advance(total - 3)
	require.True(t, sb.Done())
}
