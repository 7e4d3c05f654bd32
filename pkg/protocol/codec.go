package protocol

import "encoding/binary"

// Encode appends the wire representation of f to out and returns the
// extended slice. The codec never fails: an unrecognized Cmd is written
// as CmdWaste, and callers decide what a zero-length Push means.
func Encode(f Frame, out []byte) []byte {
	if len(f.Data) > MaxDataLen {
		f.Data = f.Data[:MaxDataLen]
	}
	header := make([]byte, HeaderSize)
	header[0] = byte(normalize(f.Cmd))
	binary.BigEndian.PutUint32(header[1:5], f.StreamID)
	binary.BigEndian.PutUint16(header[5:7], uint16(len(f.Data)))
	out = append(out, header...)
	out = append(out, f.Data...)
	return out
}

// Decode attempts to consume one complete frame from the front of buf.
// It returns the frame, the number of bytes consumed, and whether a frame
// was actually produced. When the buffer holds less than a full frame
// (header or payload), it returns (Frame{}, 0, false) and leaves buf
// untouched so the caller can feed it more bytes and retry.
func Decode(buf []byte) (Frame, int, bool) {
	if len(buf) < HeaderSize {
		return Frame{}, 0, false
	}
	cmd := Cmd(buf[0])
	streamID := binary.BigEndian.Uint32(buf[1:5])
	dataLen := int(binary.BigEndian.Uint16(buf[5:7]))
	total := HeaderSize + dataLen
	if len(buf) < total {
		return Frame{}, 0, false
	}
	data := make([]byte, dataLen)
	copy(data, buf[HeaderSize:total])
	return Frame{Cmd: normalize(cmd), StreamID: streamID, Data: data}, total, true
}
