package timezone

import "time"

// Load returns the named location, an empty name means the machine's local
// time zone.
func Load(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// Clock pins "now" to one location so that Year()/Month()/Day() do not
// depend on where the process happens to run.
type Clock struct {
	Location *time.Location
	now      func() time.Time
}

func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return Clock{Location: loc, now: time.Now}
}

// FixedClock always reports t, converted into loc.
func FixedClock(loc *time.Location, t time.Time) Clock {
	c := NewClock(loc)
	c.now = func() time.Time { return t }
	return c
}

func (c Clock) Now() time.Time {
	now := c.now
	if now == nil {
		now = time.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc)
}

func (c Clock) Today() time.Time {
	return StartOfDay(c.Now())
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// AddDays moves by calendar days, so DST changes never shift the hour.
func AddDays(day time.Time, n int) time.Time {
	return day.AddDate(0, 0, n)
}
