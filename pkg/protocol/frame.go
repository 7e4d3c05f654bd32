// Package protocol implements the AnyTLS wire frame: a 7-byte header
// (cmd, stream_id, data_len) followed by data_len bytes of payload.
package protocol

import "fmt"

// Cmd identifies the kind of a Frame. Unknown values decode as CmdWaste.
type Cmd uint8

// Frame command values, authoritative per the wire format.
const (
	CmdWaste               Cmd = 0
	CmdSyn                 Cmd = 1
	CmdPush                Cmd = 2
	CmdFin                 Cmd = 3
	CmdSettings            Cmd = 4
	CmdAlert               Cmd = 5
	CmdUpdatePaddingScheme Cmd = 6
	CmdSynAck              Cmd = 7
	CmdHeartRequest        Cmd = 8
	CmdHeartResponse       Cmd = 9
	CmdServerSettings      Cmd = 10
)

func (c Cmd) String() string {
	switch c {
	case CmdWaste:
		return "Waste"
	case CmdSyn:
		return "Syn"
	case CmdPush:
		return "Push"
	case CmdFin:
		return "Fin"
	case CmdSettings:
		return "Settings"
	case CmdAlert:
		return "Alert"
	case CmdUpdatePaddingScheme:
		return "UpdatePaddingScheme"
	case CmdSynAck:
		return "SynAck"
	case CmdHeartRequest:
		return "HeartRequest"
	case CmdHeartResponse:
		return "HeartResponse"
	case CmdServerSettings:
		return "ServerSettings"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

// normalize maps any value outside the known command set to CmdWaste, per
// the wire format's forward-compatibility rule.
func normalize(c Cmd) Cmd {
	switch c {
	case CmdWaste, CmdSyn, CmdPush, CmdFin, CmdSettings, CmdAlert,
		CmdUpdatePaddingScheme, CmdSynAck, CmdHeartRequest, CmdHeartResponse, CmdServerSettings:
		return c
	default:
		return CmdWaste
	}
}

// HeaderSize is the fixed size, in bytes, of a Frame header.
const HeaderSize = 7

// MaxDataLen is the largest payload a single Frame may carry.
const MaxDataLen = 65535

// Frame is the unit exchanged on an AnyTLS connection.
type Frame struct {
	Cmd      Cmd
	StreamID uint32
	Data     []byte
}

// NewControlFrame builds a zero-stream, zero-payload control frame.
func NewControlFrame(cmd Cmd) Frame {
	return Frame{Cmd: cmd, StreamID: 0}
}

// NewDataFrame builds a Push frame carrying data for streamID.
func NewDataFrame(streamID uint32, data []byte) Frame {
	return Frame{Cmd: CmdPush, StreamID: streamID, Data: data}
}

// NewWasteFrame builds a padding frame whose payload is payloadLen zero bytes.
func NewWasteFrame(payloadLen int) Frame {
	if payloadLen < 0 {
		payloadLen = 0
	}
	return Frame{Cmd: CmdWaste, StreamID: 0, Data: make([]byte, payloadLen)}
}
