package custody

import (
	"time"
)

// CivilDate truncates t to a civil date: UTC midnight of its year/month/day.
func CivilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate reads a "YYYY-MM-DD" string into a civil date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, validationf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// ParseClock validates an "HH:MM" (or "HH:MM:SS") time of day and returns
// its canonical "HH:MM" form.
func ParseClock(s string) (string, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04"), nil
		}
	}
	return "", validationf("invalid time %q, expected HH:MM", s)
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// defaultHandoff returns the handoff time and location filled when a day
// transitions to a handoff without caller-provided metadata: noon at a
// neutral location on weekends, 17:00 at daycare on weekdays.
func defaultHandoff(d time.Time) (string, string) {
	if isWeekend(d) {
		return "12:00", "other"
	}
	return "17:00", "daycare"
}

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}
