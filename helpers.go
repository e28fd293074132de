package docauth

import (
	"fmt"
	"strconv"
	"time"
)

// NormalizeTime converts the shapes a timestamp field can come back from a
// store in into a time.Time. Numbers are milliseconds since the epoch, which
// is how older credential documents recorded expiry. nil yields the zero time.
func NormalizeTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return *t, nil
	case int64:
		return time.UnixMilli(t), nil
	case int:
		return time.UnixMilli(int64(t)), nil
	case float64:
		return time.UnixMilli(int64(t)), nil
	case string:
		if t == "" {
			return time.Time{}, nil
		}
		if ms, err := strconv.ParseInt(t, 10, 64); err == nil {
			return time.UnixMilli(ms), nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized timestamp %q: %w", t, err)
		}
		return parsed, nil
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
}

// TimePtr returns nil for the zero time
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
