package session

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/anytls/anytls-go/pkg/constants"
	anyerrors "github.com/anytls/anytls-go/pkg/errors"
	"github.com/anytls/anytls-go/pkg/padding"
	"github.com/anytls/anytls-go/pkg/protocol"
	"github.com/anytls/anytls-go/pkg/settings"
	"github.com/anytls/anytls-go/pkg/stream"
)

// recvLoop reads into a grow-only buffer, decodes frames until the
// decoder needs more data, and dispatches each one. It is the sole owner
// of the transport's read half.
func (s *Session) recvLoop() {
	defer s.closeWithError(nil)

	buf := make([]byte, 0, 64*1024)
	tmp := make([]byte, 32*1024)

	for {
		s.readerMu.Lock()
		n, err := s.conn.Read(tmp)
		s.readerMu.Unlock()
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for {
				f, consumed, ok := protocol.Decode(buf)
				if !ok {
					break
				}
				buf = buf[consumed:]
				if stop := s.dispatch(f); stop {
					return
				}
			}
		}
		if err != nil {
			if anyerrors.IsGracefulClose(err) {
				s.logger.Debug("transport closed gracefully")
			} else {
				s.logger.Debug("transport read failed", zap.Error(err))
				s.closeWithError(anyerrors.NewIOError("read", err))
			}
			return
		}
	}
}

// dispatch handles one decoded frame. It returns true when the session
// must terminate (an Alert was received).
func (s *Session) dispatch(f protocol.Frame) bool {
	s.metrics.FramesTotal.WithLabelValues(f.Cmd.String()).Inc()

	switch f.Cmd {
	case protocol.CmdPush:
		s.dispatchPush(f)
	case protocol.CmdSyn:
		s.dispatchSyn(f)
	case protocol.CmdSynAck:
		s.dispatchSynAck(f)
	case protocol.CmdFin:
		s.dispatchFin(f)
	case protocol.CmdSettings:
		s.dispatchSettings(f)
	case protocol.CmdServerSettings:
		s.dispatchServerSettings(f)
	case protocol.CmdUpdatePaddingScheme:
		s.dispatchUpdatePaddingScheme(f)
	case protocol.CmdAlert:
		s.dispatchAlert(f)
		return true
	case protocol.CmdHeartRequest:
		s.dispatchHeartRequest(f)
	case protocol.CmdHeartResponse:
		s.dispatchHeartResponse()
	case protocol.CmdWaste:
		// discard
	}
	return false
}

func (s *Session) dispatchPush(f protocol.Frame) {
	st, ok := s.lookupStream(f.StreamID)
	if !ok {
		s.logger.Debug("push for unknown stream, dropping", zap.Uint32("stream_id", f.StreamID))
		return
	}
	st.Reader().Enqueue(f.Data)
}

func (s *Session) dispatchSyn(f protocol.Frame) {
	if s.Role != RoleServer {
		s.logger.Debug("received Syn on client session, ignoring (protocol violation)")
		return
	}
	st := stream.New(f.StreamID, s.enqueueSend)
	s.registerStream(st)
	if s.newStreamSink != nil {
		select {
		case s.newStreamSink <- st:
		case <-s.closeNotify:
		}
	}
}

func (s *Session) dispatchSynAck(f protocol.Frame) {
	if s.Role != RoleClient {
		return
	}
	st, ok := s.lookupStream(f.StreamID)
	if !ok {
		return
	}
	if len(f.Data) == 0 {
		st.NotifySynAck(stream.SynAckResult{Err: nil})
		return
	}
	st.NotifySynAck(stream.SynAckResult{Err: anyerrors.NewProtocolError(string(f.Data))})
}

func (s *Session) dispatchFin(f protocol.Frame) {
	st, ok := s.removeStream(f.StreamID)
	if !ok {
		return
	}
	st.CloseWithError(nil)
}

func (s *Session) dispatchSettings(f protocol.Frame) {
	if s.Role != RoleServer {
		return
	}
	m := settings.FromBytes(f.Data)
	if v, ok := m[settings.KeyVersion]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.peerVersion.Store(int32(n))
		}
	}

	if peerMD5, ok := m[settings.KeyPaddingMD5]; ok {
		current := s.padding.Load()
		if current == nil || current.MD5() != peerMD5 {
			raw := []byte(padding.DefaultScheme)
			if current != nil {
				raw = current.Raw()
			}
			_ = s.writeFrame(protocol.Frame{Cmd: protocol.CmdUpdatePaddingScheme, Data: raw})
		}
	}

	reply := settings.Map{settings.KeyVersion: strconv.Itoa(constants.ProtocolVersion)}
	for k, v := range s.serverSettings {
		reply[k] = v
	}
	_ = s.writeFrame(protocol.Frame{Cmd: protocol.CmdServerSettings, Data: reply.ToBytes()})
}

func (s *Session) dispatchServerSettings(f protocol.Frame) {
	if s.Role != RoleClient {
		return
	}
	m := settings.FromBytes(f.Data)
	if v, ok := m[settings.KeyVersion]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.peerVersion.Store(int32(n))
		}
	}
}

func (s *Session) dispatchUpdatePaddingScheme(f protocol.Frame) {
	if s.Role != RoleClient {
		return
	}
	factory, err := padding.NewFactory(f.Data)
	if err != nil {
		s.logger.Warn("rejecting invalid padding scheme update", zap.Error(err))
		return
	}
	padding.SetDefault(factory)
	s.padding.Store(factory)
}

func (s *Session) dispatchAlert(f protocol.Frame) {
	msg := string(f.Data)
	s.logger.Warn("received alert, closing session", zap.String("message", msg))
	s.closeWithError(anyerrors.NewProtocolError(msg))
}

func (s *Session) dispatchHeartRequest(f protocol.Frame) {
	_ = s.writeFrame(protocol.Frame{Cmd: protocol.CmdHeartResponse, StreamID: f.StreamID})
}

func (s *Session) dispatchHeartResponse() {
	if s.heartbeat != nil {
		s.heartbeat.lastResponse.Store(time.Now().UnixNano())
	}
}
