package utils

import (
	"time"
	"unicode/utf8"
)

// NowMillis returns the current time in Unix milliseconds, the timestamp
// unit used by every wire payload.
func NowMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// TruncateRunes clips s to at most max runes.
func TruncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
