package padding

import (
	"testing"
)

func TestDefaultSchemeParses(t *testing.T) {
	f, err := NewFactory([]byte(DefaultScheme))
	if err != nil {
		t.Fatalf("DefaultScheme failed to parse: %v", err)
	}
	if f.Stop() != 8 {
		t.Fatalf("stop = %d, want 8", f.Stop())
	}
	idx := f.sortedPktIndexes()
	want := []int{0, 1, 2, 3, 4, 5, 6, 7}
	if len(idx) != len(want) {
		t.Fatalf("got packet indexes %v, want %v", idx, want)
	}
	for i, v := range want {
		if idx[i] != v {
			t.Fatalf("got packet indexes %v, want %v", idx, want)
		}
	}
}

func TestGenerateRecordPayloadSizesCheckMark(t *testing.T) {
	f := MustNewFactory([]byte(DefaultScheme))
	sizes := f.GenerateRecordPayloadSizes(2)
	foundCheck := false
	for _, s := range sizes {
		if s == CheckMark {
			foundCheck = true
		} else if s <= 0 {
			t.Fatalf("non-checkmark size must be positive, got %d", s)
		}
	}
	if !foundCheck {
		t.Fatal("packet 2 of the default scheme must contain a check-mark token")
	}
}

func TestGenerateRecordPayloadSizesUnknownPacketIsUnmodified(t *testing.T) {
	f := MustNewFactory([]byte(DefaultScheme))
	if sizes := f.GenerateRecordPayloadSizes(999); sizes != nil {
		t.Fatalf("expected nil (unmodified write) for an out-of-range packet, got %v", sizes)
	}
}

func TestMD5IsDeterministic(t *testing.T) {
	f1 := MustNewFactory([]byte(DefaultScheme))
	f2 := MustNewFactory([]byte(DefaultScheme))
	if f1.MD5() != f2.MD5() {
		t.Fatal("MD5 of identical raw scheme bytes must match")
	}
	other := MustNewFactory([]byte("stop=1\n0=30-30\n"))
	if f1.MD5() == other.MD5() {
		t.Fatal("MD5 of different schemes must differ")
	}
}

func TestNewFactorySkipsMalformedLines(t *testing.T) {
	raw := []byte("stop=3\nnotanumber=junk\n0=30-30\n1=bad-range\n2=10-5\n")
	f, err := NewFactory(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Stop() != 3 {
		t.Fatalf("stop = %d, want 3", f.Stop())
	}
	if sizes := f.GenerateRecordPayloadSizes(0); len(sizes) != 1 || sizes[0] != 30 {
		t.Fatalf("packet 0 = %v, want [30]", sizes)
	}
	// "1=bad-range" and "2=10-5" (hi<lo) are malformed and should be dropped
	// entirely, leaving no byPkt entry.
	if sizes := f.GenerateRecordPayloadSizes(1); sizes != nil {
		t.Fatalf("packet 1 should have no entries, got %v", sizes)
	}
	if sizes := f.GenerateRecordPayloadSizes(2); sizes != nil {
		t.Fatalf("packet 2 should have no entries, got %v", sizes)
	}
}

func TestNewFactoryRejectsEmptyScheme(t *testing.T) {
	if _, err := NewFactory(nil); err == nil {
		t.Fatal("expected an error for an empty scheme")
	}
}

func TestSampleRangeStaysInBounds(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v := sampleRange(100, 104)
		if v < 100 || v > 104 {
			t.Fatalf("sampleRange returned %d, out of [100,104]", v)
		}
	}
	if v := sampleRange(5, 5); v != 5 {
		t.Fatalf("sampleRange(5,5) = %d, want 5", v)
	}
}
