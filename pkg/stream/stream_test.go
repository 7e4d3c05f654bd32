package stream

import (
	"io"
	"testing"
	"time"
)

func TestReaderFIFOOrderAndEOF(t *testing.T) {
	r := NewReader()
	r.Enqueue([]byte("abc"))
	r.Enqueue([]byte("def"))
	r.Close()

	buf := make([]byte, 2)
	n, err := r.Read(buf)
	if err != nil || string(buf[:n]) != "ab" {
		t.Fatalf("first read: n=%d err=%v buf=%q", n, err, buf[:n])
	}
	n, err = r.Read(buf)
	if err != nil || string(buf[:n]) != "cd" {
		t.Fatalf("second read: n=%d err=%v buf=%q", n, err, buf[:n])
	}
	n, err = r.Read(buf)
	if err != nil || string(buf[:n]) != "ef" {
		t.Fatalf("third read: n=%d err=%v buf=%q", n, err, buf[:n])
	}
	_, err = r.Read(buf)
	if err != io.EOF {
		t.Fatalf("expected io.EOF after drain, got %v", err)
	}
}

func TestReaderBlocksUntilEnqueueOrClose(t *testing.T) {
	r := NewReader()
	done := make(chan struct{})
	go func() {
		buf := make([]byte, 8)
		n, err := r.Read(buf)
		if err != nil || n != 3 {
			t.Errorf("unexpected read result: n=%d err=%v", n, err)
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Read returned before any data was enqueued")
	case <-time.After(30 * time.Millisecond):
	}

	r.Enqueue([]byte("xyz"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock after Enqueue")
	}
}

func TestReaderEnqueueAfterCloseIsNoop(t *testing.T) {
	r := NewReader()
	r.Close()
	r.Enqueue([]byte("dropped"))
	buf := make([]byte, 8)
	_, err := r.Read(buf)
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadExact(t *testing.T) {
	r := NewReader()
	r.Enqueue([]byte("hello"))
	r.Enqueue([]byte("world"))
	buf := make([]byte, 10)
	if err := r.ReadExact(buf); err != nil {
		t.Fatalf("ReadExact: %v", err)
	}
	if string(buf) != "helloworld" {
		t.Fatalf("got %q", buf)
	}
}

func TestReadExactFailsOnShortClose(t *testing.T) {
	r := NewReader()
	r.Enqueue([]byte("ab"))
	r.Close()
	buf := make([]byte, 5)
	if err := r.ReadExact(buf); err == nil {
		t.Fatal("expected an error when the queue closes mid-read")
	}
}

func TestSynAckSingleShot(t *testing.T) {
	sent := make(chan []byte, 1)
	st := New(1, func(streamID uint32, data []byte) error {
		sent <- data
		return nil
	})

	st.NotifySynAck(SynAckResult{Err: nil})
	// A second notification must be a no-op: it must not block or panic,
	// and must not overwrite the first result.
	st.NotifySynAck(SynAckResult{Err: io.ErrClosedPipe})

	select {
	case res := <-st.SynAck():
		if res.Err != nil {
			t.Fatalf("expected the first (nil-error) result to win, got %v", res.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("SynAck channel never resolved")
	}
}

func TestCloseWithErrorIsIdempotentAndClosesReader(t *testing.T) {
	st := New(1, func(streamID uint32, data []byte) error { return nil })
	st.CloseWithError(nil)
	st.CloseWithError(nil) // must not panic or deadlock

	if !st.Closed() {
		t.Fatal("expected stream to report closed")
	}
	buf := make([]byte, 1)
	if _, err := st.Reader().Read(buf); err != io.EOF {
		t.Fatalf("expected reader EOF after close, got %v", err)
	}

	select {
	case res := <-st.SynAck():
		if res.Err == nil {
			t.Fatal("expected a non-nil SessionClosed-equivalent error")
		}
	case <-time.After(time.Second):
		t.Fatal("SynAck channel never resolved on close")
	}
}

func TestSendDataFailsAfterClose(t *testing.T) {
	st := New(1, func(streamID uint32, data []byte) error { return nil })
	st.CloseWithError(nil)
	if err := st.SendData([]byte("x")); err == nil {
		t.Fatal("expected SendData to fail on a closed stream")
	}
}
