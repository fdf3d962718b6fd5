package host

import (
	"strings"
	"unicode/utf8"
)

// utf8Splitter turns a byte stream into strings that never end inside a
// multi-byte sequence. An incomplete tail (at most three bytes) is carried
// into the next chunk; invalid bytes become U+FFFD.
type utf8Splitter struct {
	carry []byte
}

func (u *utf8Splitter) feed(p []byte) string {
	buf := append(u.carry, p...)
	cut := incompleteTail(buf)
	u.carry = append([]byte(nil), buf[cut:]...)
	return strings.ToValidUTF8(string(buf[:cut]), "�")
}

// flush returns whatever is still carried.
func (u *utf8Splitter) flush() string {
	s := strings.ToValidUTF8(string(u.carry), "�")
	u.carry = nil
	return s
}

// incompleteTail returns the index where a trailing, not yet complete UTF-8
// sequence starts, or len(b) when b ends on a boundary.
func incompleteTail(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}
