package session

import (
	"go.uber.org/zap"

	"github.com/anytls/anytls-go/pkg/padding"
	"github.com/anytls/anytls-go/pkg/protocol"
)

// writeFrame encodes f, then either appends it to the startup buffer or
// drains that buffer in front of the new bytes and performs a single
// padded write.
func (s *Session) writeFrame(f protocol.Frame) error {
	encoded := protocol.Encode(f, nil)
	s.metrics.FramesTotal.WithLabelValues(f.Cmd.String()).Inc()

	if s.buffering.Load() {
		s.bufferMu.Lock()
		s.buffer = append(s.buffer, encoded...)
		s.bufferMu.Unlock()
		return nil
	}

	s.bufferMu.Lock()
	var out []byte
	if len(s.buffer) > 0 {
		out = s.buffer
		s.buffer = nil
	}
	s.bufferMu.Unlock()
	out = append(out, encoded...)

	return s.writeWithPadding(out)
}

// DisableBuffering stops new writeFrame calls from appending to the
// startup buffer. The very next writeFrame call drains the buffered
// Settings/Syn bytes in front of the caller's first Push, producing one
// obfuscated record group. Only the caller disables buffering; the
// Session never does it on its own.
func (s *Session) DisableBuffering() {
	s.buffering.Store(false)
}

// writeWithPadding applies the padding schedule for this role (if
// enabled) before writing to the transport, serialized by writerMu so one
// call's segments are never interleaved with another's.
func (s *Session) writeWithPadding(buf []byte) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if !s.sendPadding {
		return s.rawWrite(buf)
	}

	factory := s.padding.Load()
	pkt := int(s.pktCounter.Add(1) - 1)
	if factory == nil || pkt >= factory.Stop() {
		return s.rawWrite(buf)
	}

	sizes := factory.GenerateRecordPayloadSizes(pkt)
	if len(sizes) == 0 {
		return s.rawWrite(buf)
	}

	segments := padding.Apply(sizes, buf)
	for _, seg := range segments {
		if isWasteSegment(seg) {
			s.metrics.PaddingWasteBytes.Add(float64(len(seg)))
		}
		if err := s.rawWrite(seg); err != nil {
			return err
		}
	}
	return nil
}

// isWasteSegment reports whether seg is a complete synthetic Waste frame
// produced by the padding schedule, as opposed to a raw payload split
// whose first byte happens to be zero: it must carry the literal Waste
// command byte, decode cleanly, and consume the whole segment.
func isWasteSegment(seg []byte) bool {
	if len(seg) < protocol.HeaderSize || seg[0] != byte(protocol.CmdWaste) {
		return false
	}
	f, n, ok := protocol.Decode(seg)
	return ok && n == len(seg) && f.Cmd == protocol.CmdWaste && f.StreamID == 0
}

// rawWrite performs one atomic transport write. Callers must hold writerMu.
func (s *Session) rawWrite(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	_, err := s.conn.Write(buf)
	return err
}

// egressLoop is the single goroutine draining the per-Stream send fan-in
// channel and turning each item into a Push frame.
func (s *Session) egressLoop() {
	for {
		select {
		case item, ok := <-s.egressCh:
			if !ok {
				return
			}
			if err := s.writeFrame(protocol.NewDataFrame(item.streamID, item.data)); err != nil {
				s.logger.Debug("egress write failed, closing session", zap.Error(err))
				s.closeWithError(err)
				return
			}
		case <-s.closeNotify:
			return
		}
	}
}

// enqueueSend is the stream.SendFunc bound into every Stream this Session
// creates: it feeds the shared egress channel.
func (s *Session) enqueueSend(streamID uint32, data []byte) error {
	select {
	case s.egressCh <- egressItem{streamID: streamID, data: data}:
		return nil
	case <-s.closeNotify:
		return protocolErr("session closed")
	}
}

// writeDataFrame writes a single Push frame directly (bypassing the
// egress channel), used by the client facade to send the destination
// address as the first Push riding along with the buffered Settings+Syn.
func (s *Session) writeDataFrame(streamID uint32, data []byte) error {
	return s.writeFrame(protocol.NewDataFrame(streamID, data))
}
