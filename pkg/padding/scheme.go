// Package padding implements the AnyTLS padding scheduler: a declarative
// scheme mapping the index of an early outgoing write to a sequence of
// target record-payload sizes, used to reshape TLS record boundaries so
// they don't fingerprint as "TLS-in-TLS".
package padding

import (
	"crypto/md5"
	"encoding/hex"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/anytls/anytls-go/pkg/errors"
)

// CheckMark is the sentinel value returned in a schedule to mean "stop
// emitting for this write if the payload is already exhausted".
const CheckMark = -1

// DefaultScheme is the scheme baked into the binary, used until a server
// pushes an UpdatePaddingScheme frame with a different one.
const DefaultScheme = `stop=8
0=30-30
1=100-400
2=400-500,c,500-1000,c,500-1000,c,500-1000,c,500-1000
3=9-9,500-1000
4=500-1000
5=500-1000
6=500-1000
7=500-1000
`

type token struct {
	lo, hi  int
	isCheck bool
}

// Factory is an immutable, parsed padding scheme. A new Factory replaces
// the previous one wholesale; it is never mutated in place.
type Factory struct {
	raw    []byte
	stop   int
	byPkt  map[int][]token
	md5Hex string
}

// NewFactory parses raw scheme bytes: a "stop=<N>" line and
// "<pkt>=<token>(,<token>)*" lines, where a token is an inclusive range
// "<lo>-<hi>" or the check mark "c". Unparsable lines and tokens are
// skipped, so an entirely unrecognized scheme still yields a Factory; only
// an empty raw returns an errors.KindPaddingScheme error.
func NewFactory(raw []byte) (*Factory, error) {
	if len(raw) == 0 {
		return nil, errors.NewPaddingSchemeError("empty padding scheme")
	}
	f := &Factory{
		raw:   append([]byte(nil), raw...),
		byPkt: make(map[int][]token),
	}
	sum := md5.Sum(raw)
	f.md5Hex = hex.EncodeToString(sum[:])

	lines := strings.Split(string(raw), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "stop" {
			n, err := strconv.Atoi(val)
			if err == nil && n >= 0 {
				f.stop = n
			}
			continue
		}
		pkt, err := strconv.Atoi(key)
		if err != nil || pkt < 0 {
			continue
		}
		var toks []token
		for _, part := range strings.Split(val, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if part == "c" {
				toks = append(toks, token{isCheck: true})
				continue
			}
			dash := strings.IndexByte(part, '-')
			if dash < 0 {
				continue
			}
			lo, err1 := strconv.Atoi(strings.TrimSpace(part[:dash]))
			hi, err2 := strconv.Atoi(strings.TrimSpace(part[dash+1:]))
			if err1 != nil || err2 != nil {
				continue
			}
			if lo <= 0 || hi <= 0 || hi < lo {
				continue
			}
			toks = append(toks, token{lo: lo, hi: hi})
		}
		if len(toks) > 0 {
			f.byPkt[pkt] = toks
		}
	}
	return f, nil
}

// MustNewFactory parses raw and panics on failure; used only for the
// baked-in DefaultScheme, which is a compile-time constant and therefore
// always valid.
func MustNewFactory(raw []byte) *Factory {
	f, err := NewFactory(raw)
	if err != nil {
		panic(err)
	}
	return f
}

// Raw returns the exact bytes the Factory was constructed from.
func (f *Factory) Raw() []byte { return append([]byte(nil), f.raw...) }

// MD5 returns the hex digest of Raw(), used in the Settings handshake to
// detect whether client and server schemes already agree.
func (f *Factory) MD5() string { return f.md5Hex }

// Stop returns the first packet index beyond which padding no longer applies.
func (f *Factory) Stop() int { return f.stop }

// GenerateRecordPayloadSizes returns the target sizes for the pktIndex-th
// outgoing write. CheckMark (-1) marks a "stop if payload exhausted"
// checkpoint. An empty result means "write the payload unmodified".
func (f *Factory) GenerateRecordPayloadSizes(pktIndex int) []int {
	toks, ok := f.byPkt[pktIndex]
	if !ok {
		return nil
	}
	sizes := make([]int, 0, len(toks))
	for _, t := range toks {
		if t.isCheck {
			sizes = append(sizes, CheckMark)
			continue
		}
		sizes = append(sizes, sampleRange(t.lo, t.hi))
	}
	return sizes
}

func sampleRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rand.Intn(hi-lo+1)
}

// sortedPktIndexes is exposed for tests that want deterministic iteration.
func (f *Factory) sortedPktIndexes() []int {
	idx := make([]int, 0, len(f.byPkt))
	for k := range f.byPkt {
		idx = append(idx, k)
	}
	sort.Ints(idx)
	return idx
}
