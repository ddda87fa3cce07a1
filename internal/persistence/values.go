package persistence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Drivers disagree on the Go types they return: sqlite yields int64 for
// booleans and strings or []byte for timestamps of untyped columns. These
// helpers normalize them.

func asString(v any) (string, bool) {
	switch tv := v.(type) {
	case string:
		return tv, true
	case []byte:
		return string(tv), true
	}
	return "", false
}

func asInt(v any) (int64, bool) {
	switch tv := v.(type) {
	case int64:
		return tv, true
	case int:
		return int64(tv), true
	case int32:
		return int64(tv), true
	case int16:
		return int64(tv), true
	case int8:
		return int64(tv), true
	case float64:
		return int64(tv), true
	case []byte, string:
		s, _ := asString(tv)
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch tv := v.(type) {
	case float64:
		return tv, true
	case float32:
		return float64(tv), true
	case []byte, string:
		s, _ := asString(tv)
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	if n, ok := asInt(v); ok {
		return float64(n), true
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	switch tv := v.(type) {
	case bool:
		return tv, true
	case []byte, string:
		s, _ := asString(tv)
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		return b, err == nil
	}
	if n, ok := asInt(v); ok {
		return n != 0, true
	}
	return false, false
}

var timeLayouts = append([]string{time.RFC3339Nano}, sqlite3.SQLiteTimestampFormats...)

func asTime(v any) (time.Time, bool, error) {
	switch tv := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return tv.UTC(), true, nil
	case []byte, string:
		s, _ := asString(tv)
		s = strings.TrimSpace(s)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true, nil
			}
		}
		return time.Time{}, false, fmt.Errorf("invalid timestamp '%s'", s)
	}
	return time.Time{}, false, fmt.Errorf("cannot read a timestamp from %T", v)
}
