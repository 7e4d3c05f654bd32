package session

import "github.com/anytls/anytls-go/pkg/protocol"

// SendSynAckSuccess writes an empty-payload SynAck, the server-side
// acknowledgement that a Syn'd stream is ready for use. Sent for every
// stream id without exception.
func (s *Session) SendSynAckSuccess(streamID uint32) error {
	return s.writeFrame(protocol.Frame{Cmd: protocol.CmdSynAck, StreamID: streamID})
}

// SendSynAckFailure writes a SynAck carrying reason as its UTF-8 payload,
// telling the client the stream could not be established.
func (s *Session) SendSynAckFailure(streamID uint32, reason string) error {
	return s.writeFrame(protocol.Frame{Cmd: protocol.CmdSynAck, StreamID: streamID, Data: []byte(reason)})
}
