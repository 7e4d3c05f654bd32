package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/anytls/anytls-go/pkg/constants"
	anyerrors "github.com/anytls/anytls-go/pkg/errors"
	"github.com/anytls/anytls-go/pkg/stream"
)

// Close idempotently tears the session down: see closeWithError.
func (s *Session) Close() error {
	s.closeWithError(nil)
	return nil
}

// closeWithError tears the session down. It is idempotent: only the first
// caller performs the teardown. err (if non-nil) is recorded for Err and
// is also the error every stream is closed with (an Alert's text, a
// heartbeat timeout, a transport failure); with a nil err the streams are
// closed with a session-closed error.
func (s *Session) closeWithError(err error) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if err != nil {
			s.closeErr.Store(err)
		}
		close(s.closeNotify)

		var cause error = anyerrors.NewSessionClosedError()
		if err != nil {
			cause = err
		}
		s.closeAllStreams(cause)

		s.conn.SetWriteDeadline(time.Now().Add(constants.WriterShutdownGrace))
		_ = s.conn.Close()

		s.metrics.SessionsActive.Dec()

		if err != nil {
			s.logger.Debug("session closed", zap.Error(err))
		} else {
			s.logger.Debug("session closed")
		}
	})
}

// closeAllStreams closes every registered stream with cause and drops the
// receiver table. Safe to call multiple times; streams ignore a second
// CloseWithError.
func (s *Session) closeAllStreams(cause error) {
	s.streamsMu.Lock()
	toClose := make([]*stream.Stream, 0, len(s.streams))
	for id, st := range s.streams {
		toClose = append(toClose, st)
		delete(s.streams, id)
	}
	s.streamsMu.Unlock()

	for _, st := range toClose {
		st.CloseWithError(cause)
		s.metrics.StreamsOpen.Dec()
	}
}

// Err returns the error that caused the session to close, if any.
func (s *Session) Err() error {
	if v := s.closeErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}
