package breaks

import "time"

// BusinessDaysBetween counts the business days separating two dates,
// skipping Saturdays and Sundays. The count is symmetric and zero for
// equal dates; holidays are out of scope for bucketing purposes.
func BusinessDaysBetween(a, b time.Time) int {
	if a.Equal(b) {
		return 0
	}
	if b.Before(a) {
		a, b = b, a
	}

	days := 0
	for d := a.AddDate(0, 0, 1); !d.After(b); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}
