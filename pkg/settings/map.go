// Package settings implements the line-oriented key=value metadata blob
// carried by Settings and ServerSettings frames.
package settings

import "strings"

// Map is an unordered string->string metadata bag.
type Map map[string]string

// New returns an empty Map.
func New() Map { return make(Map) }

// ToBytes serializes m as lines of "key=value" separated by '\n', with a
// trailing newline. Key order is not guaranteed.
func (m Map) ToBytes() []byte {
	var b strings.Builder
	for k, v := range m {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// FromBytes parses the wire form, trimming whitespace around keys and
// values and silently dropping malformed lines (no '=', or an empty key).
func FromBytes(data []byte) Map {
	m := New()
	for _, line := range strings.Split(string(data), "\n") {
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
		if key == "" {
			continue
		}
		m[key] = val
	}
	return m
}

// Well-known keys recognized by either peer; unknown keys are ignored.
const (
	KeyVersion                  = "v"
	KeyClient                   = "client"
	KeyPaddingMD5               = "padding-md5"
	KeyIdleSessionCheckInterval = "idle_session_check_interval"
	KeyIdleSessionTimeout       = "idle_session_timeout"
	KeyMinIdleSession           = "min_idle_session"
)
