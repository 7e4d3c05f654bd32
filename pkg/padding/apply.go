package padding

import "github.com/anytls/anytls-go/pkg/protocol"

// Apply expands a planned size schedule against payload into the ordered
// list of byte segments that must be written to the transport. For each
// planned size, given the remaining unsent payload:
//
//  1. size == CheckMark: stop if payload is exhausted, otherwise continue.
//  2. remaining > size: emit exactly size bytes of payload (may split a
//     frame mid-wire; the codec reassembles because it is length-prefixed).
//  3. 0 < remaining <= size: emit the remainder plus a synthetic Waste
//     frame of payload length max(0, size-remaining-7), omitted entirely
//     when that is zero. Payload emission stops here, but the schedule
//     keeps running: later entries produce pure Waste frames until a
//     check mark (or the end of the schedule) cuts them off.
//  4. remaining == 0: emit a pure Waste frame of total on-wire length size.
//
// If the schedule is exhausted before the payload is, any unconsumed
// payload is appended as a final, unpadded segment so no bytes are lost.
func Apply(sizes []int, payload []byte) [][]byte {
	var segments [][]byte
	remaining := payload
	for _, size := range sizes {
		if size == CheckMark {
			if len(remaining) == 0 {
				return segments
			}
			continue
		}
		if size <= 0 {
			continue
		}
		r := len(remaining)
		switch {
		case r > size:
			segments = append(segments, remaining[:size])
			remaining = remaining[size:]
		case r > 0:
			segments = append(segments, remaining)
			remaining = nil
			if wasteLen := size - r - protocol.HeaderSize; wasteLen > 0 {
				segments = append(segments, encodeWaste(wasteLen))
			}
		default: // r == 0
			wasteLen := size - protocol.HeaderSize
			if wasteLen < 0 {
				wasteLen = 0
			}
			segments = append(segments, encodeWaste(wasteLen))
		}
	}
	if len(remaining) > 0 {
		segments = append(segments, remaining)
	}
	return segments
}

func encodeWaste(payloadLen int) []byte {
	return protocol.Encode(protocol.NewWasteFrame(payloadLen), nil)
}
