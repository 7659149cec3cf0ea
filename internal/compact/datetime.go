package compact

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrDateOutOfRange is returned when a calendar day cannot be packed into a CompactDate.
var ErrDateOutOfRange = errors.New("compact: date out of range")

// CompactDate is a calendar day packed as days elapsed since 2010-01-01.
// Zero is reserved as the undefined sentinel.
type CompactDate uint16

// CompactTime is a time of day packed as minutes since midnight.
type CompactTime uint16

const (
	// DateUndefined is the all-zero pattern of a never-written date.
	DateUndefined CompactDate = 0
	// TimeUndefined is the sentinel for a never-written time of day.
	TimeUndefined CompactTime = 0xFFFF

	minutesPerDay = 24 * 60
)

var dateEpoch = time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewDate packs the calendar day of t (in t's own location).
func NewDate(t time.Time) (CompactDate, error) {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	days := int(day.Sub(dateEpoch).Hours() / 24)
	if days < 1 || days > 0xFFFF {
		return DateUndefined, fmt.Errorf("%w: %s", ErrDateOutOfRange, day.Format(time.DateOnly))
	}
	return CompactDate(days), nil
}

// MustDate is NewDate for constants and tests; it panics on out-of-range input.
func MustDate(year int, month time.Month, day int) CompactDate {
	d, err := NewDate(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
	if err != nil {
		panic(err)
	}
	return d
}

// DecodeDate reads a big-endian CompactDate from the first two bytes of b.
func DecodeDate(b []byte) CompactDate {
	return CompactDate(binary.BigEndian.Uint16(b))
}

// Encode returns the two on-card bytes.
func (d CompactDate) Encode() [2]byte {
	var out [2]byte
	binary.BigEndian.PutUint16(out[:], uint16(d))
	return out
}

// IsUndefined reports whether d is the sentinel.
func (d CompactDate) IsUndefined() bool {
	return d == DateUndefined
}

// Time returns midnight UTC of the day, or the zero time when undefined.
func (d CompactDate) Time() time.Time {
	if d.IsUndefined() {
		return time.Time{}
	}
	return dateEpoch.AddDate(0, 0, int(d))
}

// Before reports whether d is strictly earlier than the calendar day of t.
// An undefined date is always before.
func (d CompactDate) Before(t time.Time) bool {
	if d.IsUndefined() {
		return true
	}
	today, err := NewDate(t)
	if err != nil {
		// t beyond the representable range is later than any stored date;
		// t before it is earlier than any stored date.
		return t.After(dateEpoch)
	}
	return d < today
}

func (d CompactDate) String() string {
	if d.IsUndefined() {
		return "undefined"
	}
	return d.Time().Format(time.DateOnly)
}

// NewTime packs the minute of t's wall clock.
func NewTime(t time.Time) CompactTime {
	return CompactTime(t.Hour()*60 + t.Minute())
}

// DecodeTime reads a big-endian CompactTime; out-of-range values decode as undefined.
func DecodeTime(b []byte) CompactTime {
	v := binary.BigEndian.Uint16(b)
	if v >= minutesPerDay {
		return TimeUndefined
	}
	return CompactTime(v)
}

// Encode returns the two on-card bytes.
func (c CompactTime) Encode() [2]byte {
	var out [2]byte
	binary.BigEndian.PutUint16(out[:], uint16(c))
	return out
}

// IsUndefined reports whether c is the sentinel.
func (c CompactTime) IsUndefined() bool {
	return c >= minutesPerDay
}

// Clock returns the hour and minute.
func (c CompactTime) Clock() (hour, minute int) {
	if c.IsUndefined() {
		return 0, 0
	}
	return int(c) / 60, int(c) % 60
}

func (c CompactTime) String() string {
	if c.IsUndefined() {
		return "undefined"
	}
	h, m := c.Clock()
	return fmt.Sprintf("%02d:%02d", h, m)
}

// Timestamp combines a date and a time of day into a wall-clock instant in loc.
// ok is false when either part is undefined.
func Timestamp(d CompactDate, c CompactTime, loc *time.Location) (ts time.Time, ok bool) {
	if d.IsUndefined() || c.IsUndefined() {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	y, m, day := d.Time().Date()
	h, mm := c.Clock()
	return time.Date(y, m, day, h, mm, 0, 0, loc), true
}
