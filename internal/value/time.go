package value

import (
	"fmt"
	stdtime "time"
)

// Time is a time of day in the local timezone. It carries no date and no
// sub-second component; comparisons therefore happen at second resolution.
type Time struct {
	hour   int
	minute int
	second int
}

// NewTime builds a Time from clock components. Components outside the
// 0-23/0-59/0-59 ranges are rejected.
func NewTime(hour, minute, second int) (Time, error) {
	if hour < 0 || hour > 23 {
		return Time{}, fmt.Errorf("hour %d is out of range", hour)
	}
	if minute < 0 || minute > 59 {
		return Time{}, fmt.Errorf("minute %d is out of range", minute)
	}
	if second < 0 || second > 59 {
		return Time{}, fmt.Errorf("second %d is out of range", second)
	}
	return Time{hour: hour, minute: minute, second: second}, nil
}

// TimeNow returns the current local time of day.
func TimeNow() Time {
	return TimeOfDay(stdtime.Now())
}

// TimeOfDay extracts the local time of day from a full timestamp,
// truncating sub-second precision.
func TimeOfDay(t stdtime.Time) Time {
	local := t.Local()
	return Time{hour: local.Hour(), minute: local.Minute(), second: local.Second()}
}

func (t Time) Hour() int   { return t.hour }
func (t Time) Minute() int { return t.minute }
func (t Time) Second() int { return t.second }

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.hour, t.minute, t.second)
}

// Compare orders two times of day on the clock.
func (t Time) Compare(other Time) int {
	switch {
	case t.hour != other.hour:
		return cmpInt(t.hour, other.hour)
	case t.minute != other.minute:
		return cmpInt(t.minute, other.minute)
	default:
		return cmpInt(t.second, other.second)
	}
}

func (t Time) Before(other Time) bool { return t.Compare(other) < 0 }
func (t Time) After(other Time) bool  { return t.Compare(other) > 0 }

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
