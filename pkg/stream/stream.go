// Package stream implements the per-flow duplex handle multiplexed inside
// an AnyTLS Session: a SYN/SYN-ACK lifecycle, an unbounded receive queue,
// and a send path that feeds the Session's egress fan-in.
package stream

import (
	"sync"

	"github.com/anytls/anytls-go/pkg/errors"
)

// SendFunc is how a Stream hands outgoing bytes to its owning Session.
// The Session supplies this at construction time; it must never block
// indefinitely on a healthy session (an unbounded or sufficiently deep
// channel send).
type SendFunc func(streamID uint32, data []byte) error

// SynAckResult is delivered exactly once to a Stream's SynAck waiter.
type SynAckResult struct {
	// Err is nil on success. Otherwise it is either the server's failure
	// reason (a KindProtocol *errors.Error) or, when the stream closed
	// before SynAck arrived, the error it was closed with (KindSessionClosed
	// for a close without a specific cause).
	Err error
}

// Stream is a single logical duplex byte-flow inside a Session.
type Stream struct {
	id     uint32
	send   SendFunc
	reader *Reader

	synAckOnce sync.Once
	synAckCh   chan SynAckResult

	mu         sync.Mutex
	closed     bool
	closeError error
}

// New creates a Stream bound to id, whose outgoing bytes are handed to send.
func New(id uint32, send SendFunc) *Stream {
	return &Stream{
		id:       id,
		send:     send,
		reader:   NewReader(),
		synAckCh: make(chan SynAckResult, 1),
	}
}

// ID returns the stream's stable identifier.
func (s *Stream) ID() uint32 { return s.id }

// Reader returns the shared receive-queue handle for consumers.
func (s *Stream) Reader() *Reader { return s.reader }

// SendData enqueues bytes for the Session's egress path. It never blocks
// on a healthy session and fails only once the stream (or its session) has
// been closed.
func (s *Stream) SendData(data []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errors.NewSessionClosedError()
	}
	return s.send(s.id, data)
}

// CloseWithError idempotently marks the stream closed, recording err (if
// this is the first call) and closing the receive queue so pending Reads
// observe EOF.
func (s *Stream) CloseWithError(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeError = err
	s.mu.Unlock()

	s.reader.Close()
	s.NotifySynAck(SynAckResult{Err: errorOrClosed(err)})
}

func errorOrClosed(err error) error {
	if err != nil {
		return err
	}
	return errors.NewSessionClosedError()
}

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CloseError returns the error recorded by the first CloseWithError call,
// or nil if the stream is still open or closed without an error.
func (s *Stream) CloseError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeError
}

// Read implements io.Reader by delegating to the receive queue, so
// adapters (SOCKS5/HTTP/UDP relay) can treat the Stream like a TCP socket.
func (s *Stream) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

// Write implements io.Writer over SendData. The egress queue retains the
// slice beyond the call, so p is copied.
func (s *Stream) Write(p []byte) (int, error) {
	if err := s.SendData(append([]byte(nil), p...)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer as an error-free CloseWithError.
func (s *Stream) Close() error {
	s.CloseWithError(nil)
	return nil
}

// NotifySynAck delivers result to the single SynAck waiter. It is a no-op
// on every call after the first: the SYN-ACK slot is single-shot.
func (s *Stream) NotifySynAck(result SynAckResult) {
	s.synAckOnce.Do(func() {
		s.synAckCh <- result
	})
}

// SynAck returns the channel that resolves exactly once, either when the
// server's SynAck frame arrives or the stream/session closes first.
func (s *Stream) SynAck() <-chan SynAckResult {
	return s.synAckCh
}
