package session

import (
	"strconv"
	"time"

	"github.com/anytls/anytls-go/pkg/constants"
	anyerrors "github.com/anytls/anytls-go/pkg/errors"
	"github.com/anytls/anytls-go/pkg/protocol"
	"github.com/anytls/anytls-go/pkg/settings"
	"github.com/anytls/anytls-go/pkg/stream"
)

// SendSettings composes and writes the startup Settings frame. Callers
// invoke this once, immediately after NewClient, before the first
// OpenStream.
func (s *Session) SendSettings() error {
	m := settings.Map{
		settings.KeyVersion:    strconv.Itoa(constants.ProtocolVersion),
		settings.KeyPaddingMD5: s.PaddingFactory().MD5(),
	}
	if s.clientLabel != "" {
		m[settings.KeyClient] = s.clientLabel
	}
	return s.writeFrame(protocol.Frame{Cmd: protocol.CmdSettings, Data: m.ToBytes()})
}

// OpenStream allocates a stream id, registers the Stream, and sends a
// Syn control frame. The caller is expected to write
// the SOCKS5-format destination address as the first Push on the
// returned Stream, then wait on its SynAck channel.
func (s *Session) OpenStream() (*stream.Stream, error) {
	if s.IsClosed() {
		return nil, anyerrors.NewSessionClosedError()
	}

	id := s.nextStreamID.Add(1)
	st := stream.New(id, s.enqueueSend)
	s.registerStream(st)

	if err := s.writeFrame(protocol.Frame{Cmd: protocol.CmdSyn, StreamID: id}); err != nil {
		s.removeStream(id)
		return nil, err
	}
	return st, nil
}

// WaitSynAck blocks for a Stream's SynAck result, up to SynAckTimeout. On
// timeout it closes the stream locally and frees its slot, surfacing a
// protocol error.
func (s *Session) WaitSynAck(st *stream.Stream) error {
	select {
	case res := <-st.SynAck():
		return res.Err
	case <-time.After(constants.SynAckTimeout):
		s.removeStream(st.ID())
		st.CloseWithError(anyerrors.NewProtocolError("SYN-ACK timeout"))
		return anyerrors.NewProtocolError("SYN-ACK timeout")
	}
}

// WriteDataFrame writes a single Push frame directly to the transport,
// bypassing the egress fan-in channel. Used by the client facade to send
// the destination address as the first Push, and available to any caller
// that wants an out-of-band, ordering-sensitive write.
func (s *Session) WriteDataFrame(streamID uint32, data []byte) error {
	return s.writeDataFrame(streamID, data)
}
