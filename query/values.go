package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

func isEmpty(v any) bool {
	return v == nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// stringify renders a record value the way string matching sees it. Times
// keep their offset, matching their JSON encoding.
func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case time.Time:
		return s.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}

var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseInstant interprets a date value. Numbers are epoch milliseconds.
func parseInstant(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, true
	case *time.Time:
		if d == nil {
			return time.Time{}, false
		}
		return *d, true
	case string:
		for _, layout := range instantLayouts {
			if t, err := time.Parse(layout, d); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}
	if ms, ok := toFloat(v); ok {
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	return time.Time{}, false
}

// normalize round-trips a value through JSON so that structurally equal
// values compare equal regardless of their Go types (int vs float64,
// struct vs map).
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
