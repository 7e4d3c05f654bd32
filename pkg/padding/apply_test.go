package padding

import (
	"bytes"
	"testing"

	"github.com/anytls/anytls-go/pkg/protocol"
)

// extractPayload reconstructs the original payload bytes from Apply's
// segments. Every segment is either a verbatim payload slice or a complete
// Waste frame produced by encodeWaste, whose first wire byte is the
// literal (unnormalized) CmdWaste value 0; the test payload below never
// contains a zero byte, so that byte alone disambiguates the two cases
// without relying on Decode's forward-compatibility normalization.
func extractPayload(t *testing.T, segments [][]byte) []byte {
	t.Helper()
	var out []byte
	for _, seg := range segments {
		if len(seg) >= protocol.HeaderSize && seg[0] == byte(protocol.CmdWaste) {
			if _, n, ok := protocol.Decode(seg); ok && n == len(seg) {
				continue // pure padding frame, contributes nothing to the payload
			}
		}
		out = append(out, seg...)
	}
	return out
}

func TestApplyConservesPayloadBytes(t *testing.T) {
	f := MustNewFactory([]byte(DefaultScheme))
	payload := bytes.Repeat([]byte("x"), 2000)

	for pkt := 0; pkt < 10; pkt++ {
		sizes := f.GenerateRecordPayloadSizes(pkt)
		segments := Apply(sizes, payload)
		got := extractPayload(t, segments)
		if !bytes.Equal(got, payload) {
			t.Fatalf("pkt=%d: payload not conserved: got %d bytes, want %d", pkt, len(got), len(payload))
		}
	}
}

func TestApplyUnmodifiedWhenNoSchedule(t *testing.T) {
	payload := []byte("unmodified")
	segments := Apply(nil, payload)
	if len(segments) != 1 || !bytes.Equal(segments[0], payload) {
		t.Fatalf("expected payload to pass through unmodified, got %v", segments)
	}
}

func TestApplyCheckMarkStopsOnExhaustedPayload(t *testing.T) {
	sizes := []int{5, CheckMark, 500}
	payload := []byte("hello") // exactly 5 bytes, consumed by the first token
	segments := Apply(sizes, payload)
	// After emitting the 5-byte segment, the check-mark finds payload
	// exhausted and Apply must stop, never reaching the size=500 token.
	if len(segments) != 1 {
		t.Fatalf("expected exactly 1 segment, got %d: %v", len(segments), segments)
	}
}

func TestApplyEmitsWasteWhenPayloadExhausted(t *testing.T) {
	sizes := []int{50}
	segments := Apply(sizes, nil)
	if len(segments) != 1 {
		t.Fatalf("expected exactly 1 waste segment, got %d", len(segments))
	}
	fr, n, ok := protocol.Decode(segments[0])
	if !ok || n != len(segments[0]) || fr.Cmd != protocol.CmdWaste {
		t.Fatalf("expected a complete Waste frame, got ok=%v frame=%+v", ok, fr)
	}
}

func TestApplyPadsFinalPayloadSegmentToScheduledSize(t *testing.T) {
	payload := []byte("hello")
	segments := Apply([]int{20}, payload)
	// 5 payload bytes, then a Waste frame of payload 20-5-7=8, so the
	// scheduled 20 bytes land on the wire exactly.
	if len(segments) != 2 {
		t.Fatalf("expected payload + waste, got %d segments", len(segments))
	}
	total := len(segments[0]) + len(segments[1])
	if total != 20 {
		t.Fatalf("emitted %d bytes for a scheduled size of 20", total)
	}
	fr, n, ok := protocol.Decode(segments[1])
	if !ok || n != len(segments[1]) || fr.Cmd != protocol.CmdWaste || len(fr.Data) != 8 {
		t.Fatalf("expected an 8-byte-payload Waste frame, got ok=%v frame=%+v", ok, fr)
	}
}

func TestApplyContinuesWithWasteTailUntilCheckMark(t *testing.T) {
	sizes := []int{5, 100, CheckMark, 100}
	payload := []byte("hello")
	segments := Apply(sizes, payload)
	// The first token consumes the whole payload with no room left for a
	// waste frame; the second emits a pure 100-byte waste record; the
	// check mark then finds the payload exhausted and cuts the schedule
	// off before the final token.
	if len(segments) != 2 {
		t.Fatalf("expected payload + one waste segment, got %d: %v", len(segments), segments)
	}
	if !bytes.Equal(segments[0], payload) {
		t.Fatal("first segment must be the verbatim payload")
	}
	fr, n, ok := protocol.Decode(segments[1])
	if !ok || n != 100 || fr.Cmd != protocol.CmdWaste {
		t.Fatalf("expected a 100-byte-total Waste frame, got ok=%v n=%d frame=%+v", ok, n, fr)
	}
}

func TestApplySplitsWhenRemainingExceedsSize(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), 10)
	segments := Apply([]int{4}, payload)
	// The 4-byte split, then the schedule runs out and the 6 unconsumed
	// bytes flush as a final unpadded segment.
	if len(segments) != 2 || len(segments[0]) != 4 {
		t.Fatalf("expected a 4-byte segment plus the unconsumed tail, got %v", segments)
	}
	if !bytes.Equal(segments[0], payload[:4]) || !bytes.Equal(segments[1], payload[4:]) {
		t.Fatal("segment bytes mismatch")
	}
}
