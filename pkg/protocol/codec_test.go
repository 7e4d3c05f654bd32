package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Frame{
		NewControlFrame(CmdHeartRequest),
		NewDataFrame(42, []byte("hello")),
		NewDataFrame(1, nil),
		NewWasteFrame(100),
	}
	for _, f := range cases {
		buf := Encode(f, nil)
		got, n, ok := Decode(buf)
		if !ok {
			t.Fatalf("Decode failed to parse a fully-buffered frame: %+v", f)
		}
		if n != len(buf) {
			t.Fatalf("consumed %d bytes, want %d", n, len(buf))
		}
		if got.Cmd != f.Cmd || got.StreamID != f.StreamID || !bytes.Equal(got.Data, f.Data) {
			t.Fatalf("round-trip mismatch: got %+v, want %+v", got, f)
		}
	}
}

func TestDecodeUnknownCmdBecomesWaste(t *testing.T) {
	f := Frame{Cmd: Cmd(200), StreamID: 1, Data: []byte("x")}
	buf := Encode(f, nil)
	buf[0] = 200 // Encode already writes CmdWaste; put the raw unknown value back for Decode
	got, _, ok := Decode(buf)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if got.Cmd != CmdWaste {
		t.Fatalf("got cmd %v, want CmdWaste", got.Cmd)
	}
}

func TestDecodePartialBufferIsIdempotent(t *testing.T) {
	f := NewDataFrame(7, []byte("payload bytes"))
	full := Encode(f, nil)

	for cut := 0; cut < len(full); cut++ {
		partial := full[:cut]
		_, n, ok := Decode(partial)
		if ok {
			t.Fatalf("Decode unexpectedly succeeded on %d/%d bytes", cut, len(full))
		}
		if n != 0 {
			t.Fatalf("Decode must not report consumed bytes on failure, got %d", n)
		}
		// Re-decoding the same partial slice must yield the identical result.
		_, n2, ok2 := Decode(partial)
		if ok2 != ok || n2 != n {
			t.Fatal("Decode is not idempotent on the same partial input")
		}
	}

	got, n, ok := Decode(full)
	if !ok || n != len(full) {
		t.Fatal("Decode must succeed once the full frame is present")
	}
	if !bytes.Equal(got.Data, f.Data) {
		t.Fatal("payload mismatch after feeding the remaining bytes")
	}
}

func TestDecodeConsumesOnlyOneFrameFromMultiFrameBuffer(t *testing.T) {
	a := Encode(NewDataFrame(1, []byte("a")), nil)
	b := Encode(NewDataFrame(2, []byte("bb")), nil)
	buf := append(append([]byte{}, a...), b...)

	got1, n1, ok := Decode(buf)
	if !ok || n1 != len(a) || got1.StreamID != 1 {
		t.Fatalf("first frame decode wrong: n1=%d ok=%v frame=%+v", n1, ok, got1)
	}
	got2, n2, ok := Decode(buf[n1:])
	if !ok || n2 != len(b) || got2.StreamID != 2 {
		t.Fatalf("second frame decode wrong: n2=%d ok=%v frame=%+v", n2, ok, got2)
	}
}

func TestEncodeClampsOversizedPayload(t *testing.T) {
	data := make([]byte, MaxDataLen+100)
	f := NewDataFrame(1, data)
	buf := Encode(f, nil)
	if len(buf) != HeaderSize+MaxDataLen {
		t.Fatalf("got encoded length %d, want %d", len(buf), HeaderSize+MaxDataLen)
	}
}
