package stream

import (
	"io"
	"sync"

	"github.com/anytls/anytls-go/pkg/errors"
)

// Reader is a cooperative, single-consumer byte queue. The Session dispatch
// goroutine is the sole producer (Enqueue); the stream owner is the sole
// consumer (Read). It behaves like the read half of a net.Conn: Read fills
// buf from any residual bytes left over from a previous partial read, then
// pulls one chunk from the internal FIFO queue.
type Reader struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    [][]byte
	residual []byte
	closed   bool
}

// NewReader creates an empty Reader.
func NewReader() *Reader {
	r := &Reader{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Enqueue appends a payload chunk to the FIFO queue. Safe to call after
// Close, in which case the chunk is silently dropped (the stream is gone).
func (r *Reader) Enqueue(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.queue = append(r.queue, data)
	r.cond.Signal()
}

// Close marks the queue closed; pending Reads drain remaining data, then
// return EOF.
func (r *Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.cond.Broadcast()
}

// Read fills buf from residual bytes first, then from the queue. It
// returns (0, io.EOF) once the queue is closed and drained.
func (r *Reader) Read(buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.residual) == 0 && len(r.queue) == 0 && !r.closed {
		r.cond.Wait()
	}

	n := copy(buf, r.residual)
	r.residual = r.residual[n:]
	if n < len(buf) && len(r.queue) > 0 {
		r.residual = r.queue[0]
		r.queue = r.queue[1:]
		m := copy(buf[n:], r.residual)
		r.residual = r.residual[m:]
		n += m
	}
	if n == 0 && len(r.residual) == 0 && len(r.queue) == 0 && r.closed {
		return 0, io.EOF
	}
	return n, nil
}

// ReadExact reads exactly len(buf) bytes, looping over Read. It fails with
// an unexpected-EOF protocol error if the queue closes mid-read. A
// zero-byte Read (a legal empty chunk) just loops again.
func (r *Reader) ReadExact(buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := r.Read(buf[read:])
		read += n
		if err != nil {
			if err == io.EOF {
				if read == len(buf) {
					return nil
				}
				return errors.NewProtocolError("unexpected EOF reading stream")
			}
			return err
		}
	}
	return nil
}
