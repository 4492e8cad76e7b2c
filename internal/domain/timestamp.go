package domain

import (
	"fmt"
	"math"
	"time"
)

// UnknownStrikeTime is shown when the strike time unit cannot be inferred.
const UnknownStrikeTime = "??:??:??"

// TimeUnit is the inferred unit of a raw strike time.
type TimeUnit int

const (
	UnitUnknown TimeUnit = iota
	UnitSeconds
	UnitMicroseconds
	UnitNanoseconds
)

func (u TimeUnit) String() string {
	switch u {
	case UnitSeconds:
		return "seconds"
	case UnitMicroseconds:
		return "microseconds"
	case UnitNanoseconds:
		return "nanoseconds"
	default:
		return "unknown"
	}
}

// magnitudeBand maps raw values in (lower, upper] to a unit.
type magnitudeBand struct {
	lower uint64
	upper uint64
	unit  TimeUnit
}

// magnitudeBands is evaluated in order; the first band containing the value
// wins. Present-day Unix times in seconds, microseconds and nanoseconds land
// in distinct bands.
var magnitudeBands = []magnitudeBand{
	{lower: 1e15, upper: math.MaxUint64, unit: UnitNanoseconds},
	{lower: 1e12, upper: 1e15, unit: UnitMicroseconds},
	{lower: 1e9, upper: 1e12, unit: UnitSeconds},
}

// InferTimeUnit guesses the unit of a raw strike time from its magnitude.
// Zero (absent) and values up to 10^9 are UnitUnknown.
func InferTimeUnit(raw uint64) TimeUnit {
	for _, b := range magnitudeBands {
		if raw > b.lower && raw <= b.upper {
			return b.unit
		}
	}
	return UnitUnknown
}

// StrikeTime converts a raw strike time to a time in loc. ok is false when
// the unit is unknown or the result falls outside years 1 to 9999.
func StrikeTime(raw uint64, loc *time.Location) (t time.Time, unit TimeUnit, ok bool) {
	unit = InferTimeUnit(raw)
	switch unit {
	case UnitNanoseconds:
		t = time.Unix(int64(raw/1e9), int64(raw%1e9))
	case UnitMicroseconds:
		t = time.Unix(int64(raw/1e6), int64(raw%1e6)*1e3)
	case UnitSeconds:
		t = time.Unix(int64(raw), 0)
	default:
		return time.Time{}, unit, false
	}
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	if y := t.Year(); y < 1 || y > 9999 {
		return time.Time{}, unit, false
	}
	return t, unit, true
}

// NormalizeStrikeTime formats a raw strike time as HH:MM:SS in loc.
//
// An unknown unit gives UnknownStrikeTime. A time that cannot be shown as a
// calendar time gives the relative form "~Ns ago" built from delaySeconds.
func NormalizeStrikeTime(raw uint64, delaySeconds float64, loc *time.Location) string {
	t, unit, ok := StrikeTime(raw, loc)
	switch {
	case unit == UnitUnknown:
		return UnknownStrikeTime
	case !ok:
		return fmt.Sprintf("~%.0fs ago", delaySeconds)
	default:
		return t.Format(time.TimeOnly)
	}
}
