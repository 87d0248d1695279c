package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// epochMillisFloor separates epoch seconds from epoch milliseconds.
// 1e12 ms is 2001-09-09; 1e12 s is far beyond any realistic login time.
const epochMillisFloor = 1e12

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp is an instant decoded from whatever the producer wrote: an ISO
// string, epoch seconds, epoch milliseconds, or a store-native
// {seconds, nanos} object. Values that cannot be decoded leave it invalid
// rather than failing the surrounding document.
type Timestamp struct {
	t     time.Time
	valid bool
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t, valid: !t.IsZero()}
}

// Time returns the instant and whether one was present and parsable.
func (ts Timestamp) Time() (time.Time, bool) {
	return ts.t, ts.valid
}

// Valid reports whether the timestamp holds an instant.
func (ts Timestamp) Valid() bool { return ts.valid }

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if !ts.valid {
		return []byte("null"), nil
	}
	return json.Marshal(ts.t.UTC().Format(time.RFC3339Nano))
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	*ts = Timestamp{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if t, ok := ParseTimestampString(s); ok {
			*ts = NewTimestamp(t)
		}
	case '{':
		var native struct {
			Seconds     *float64 `json:"seconds"`
			Nanos       float64  `json:"nanos"`
			USeconds    *float64 `json:"_seconds"`
			UNanos      float64  `json:"_nanoseconds"`
			Nanoseconds float64  `json:"nanoseconds"`
		}
		if err := json.Unmarshal(b, &native); err != nil {
			return nil
		}
		switch {
		case native.Seconds != nil:
			nanos := native.Nanos
			if nanos == 0 {
				nanos = native.Nanoseconds
			}
			*ts = NewTimestamp(time.Unix(int64(*native.Seconds), int64(nanos)))
		case native.USeconds != nil:
			*ts = NewTimestamp(time.Unix(int64(*native.USeconds), int64(native.UNanos)))
		}
	default:
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return nil
		}
		if t, ok := fromEpoch(f); ok {
			*ts = NewTimestamp(t)
		}
	}
	return nil
}

// ParseTimestampString parses ISO-like layouts and numeric epoch strings.
func ParseTimestampString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// EpochMillis converts an epoch-milliseconds value.
func EpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func fromEpoch(f float64) (time.Time, bool) {
	if f <= 0 {
		return time.Time{}, false
	}
	if f >= epochMillisFloor {
		return time.UnixMilli(int64(f)), true
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec), true
}
