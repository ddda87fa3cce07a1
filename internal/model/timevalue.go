package model

import (
	"fmt"
	"strings"
	"time"
)

// TimeInstant is a single point in time.
type TimeInstant struct {
	t time.Time
}

// NewTimeInstant creates a TimeInstant.
func NewTimeInstant(t time.Time) TimeInstant {
	return TimeInstant{t: t.UTC()}
}

// Now returns the current time as a TimeInstant.
func Now() TimeInstant {
	return NewTimeInstant(time.Now())
}

// ParseTimeInstant parses an RFC 3339 timestamp.
func ParseTimeInstant(s string) (TimeInstant, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return TimeInstant{}, fmt.Errorf("invalid time instant '%s': %w", s, err)
	}
	return NewTimeInstant(t), nil
}

// Time returns the instant as time.Time.
func (ti TimeInstant) Time() time.Time { return ti.t }

// Equal reports whether both instants denote the same moment.
func (ti TimeInstant) Equal(o TimeInstant) bool { return ti.t.Equal(o.t) }

func (ti TimeInstant) String() string { return ti.t.Format(time.RFC3339Nano) }

// TimeInterval is a half open interval [start, end).
type TimeInterval struct {
	start time.Time
	end   time.Time
}

// NewTimeInterval creates a TimeInterval. The end must not be before the start.
func NewTimeInterval(start, end time.Time) (TimeInterval, error) {
	if end.Before(start) {
		return TimeInterval{}, fmt.Errorf("interval end %s is before start %s", end, start)
	}
	return TimeInterval{start: start.UTC(), end: end.UTC()}, nil
}

// ParseTimeInterval parses the ISO 8601 form start/end.
func ParseTimeInterval(s string) (TimeInterval, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return TimeInterval{}, fmt.Errorf("invalid time interval '%s'", s)
	}
	start, err := ParseTimeInstant(parts[0])
	if err != nil {
		return TimeInterval{}, err
	}
	end, err := ParseTimeInstant(parts[1])
	if err != nil {
		return TimeInterval{}, err
	}
	return NewTimeInterval(start.t, end.t)
}

// Start returns the start of the interval.
func (iv TimeInterval) Start() time.Time { return iv.start }

// End returns the end of the interval.
func (iv TimeInterval) End() time.Time { return iv.end }

// Equal reports whether both intervals have the same bounds.
func (iv TimeInterval) Equal(o TimeInterval) bool {
	return iv.start.Equal(o.start) && iv.end.Equal(o.end)
}

func (iv TimeInterval) String() string {
	return iv.start.Format(time.RFC3339Nano) + "/" + iv.end.Format(time.RFC3339Nano)
}

// TimeValue holds either a TimeInstant or a TimeInterval.
type TimeValue struct {
	instant    TimeInstant
	interval   TimeInterval
	isInterval bool
}

// TimeValueOf wraps an instant.
func TimeValueOf(ti TimeInstant) TimeValue {
	return TimeValue{instant: ti}
}

// TimeValueOfInterval wraps an interval.
func TimeValueOfInterval(iv TimeInterval) TimeValue {
	return TimeValue{interval: iv, isInterval: true}
}

// AsTimeValue converts a TimeInstant, TimeInterval or TimeValue to a TimeValue.
func AsTimeValue(v any) (TimeValue, bool) {
	switch tv := v.(type) {
	case TimeValue:
		return tv, true
	case TimeInstant:
		return TimeValueOf(tv), true
	case TimeInterval:
		return TimeValueOfInterval(tv), true
	}
	return TimeValue{}, false
}

// IsInterval reports which variant is held.
func (tv TimeValue) IsInterval() bool { return tv.isInterval }

// Instant returns the instant variant.
func (tv TimeValue) Instant() TimeInstant { return tv.instant }

// Interval returns the interval variant.
func (tv TimeValue) Interval() TimeInterval { return tv.interval }

// Start returns the start of the interval, or the instant.
func (tv TimeValue) Start() time.Time {
	if tv.isInterval {
		return tv.interval.start
	}
	return tv.instant.t
}

// End returns the end of the interval, or the instant.
func (tv TimeValue) End() time.Time {
	if tv.isInterval {
		return tv.interval.end
	}
	return tv.instant.t
}

// Equal compares variant and value.
func (tv TimeValue) Equal(o TimeValue) bool {
	if tv.isInterval != o.isInterval {
		return false
	}
	if tv.isInterval {
		return tv.interval.Equal(o.interval)
	}
	return tv.instant.Equal(o.instant)
}

func (tv TimeValue) String() string {
	if tv.isInterval {
		return tv.interval.String()
	}
	return tv.instant.String()
}
