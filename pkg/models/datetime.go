package models

import (
	"strconv"
	"strings"
	"time"
)

// EpochMillis encodes t the way the DateTime scalar serializes it.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// ParseEpoch accepts an integer count of milliseconds or its decimal string
// form. Anything else reports ok=false.
func ParseEpoch(v interface{}) (t time.Time, ok bool) {
	switch n := v.(type) {
	case int:
		return time.UnixMilli(int64(n)).UTC(), true
	case int32:
		return time.UnixMilli(int64(n)).UTC(), true
	case int64:
		return time.UnixMilli(n).UTC(), true
	case float64:
		return time.UnixMilli(int64(n)).UTC(), true
	case string:
		ms, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	case time.Time:
		return n.UTC(), true
	case *time.Time:
		if n == nil {
			return time.Time{}, false
		}
		return n.UTC(), true
	}
	return time.Time{}, false
}
