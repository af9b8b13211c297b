package subscriptions

import "time"

// AddMonthsClamped advances t by months calendar months. When the target month
// is shorter than t's day, the result lands on that month's last day, so
// Jan 31 + 1 month is Feb 28 (Feb 29 in leap years). Time of day and location
// are preserved.
func AddMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	ty, tm, _ := firstOfTarget.Date()
	if last := daysIn(ty, tm, t.Location()); d > last {
		d = last
	}
	return time.Date(ty, tm, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// periodFor returns the period that starts after n full cycles from anchor.
// Deriving every period from the anchor keeps month-end anchors from drifting
// (Jan 31 -> Feb 28 -> Mar 31).
func periodFor(anchor time.Time, months, n int) (time.Time, time.Time) {
	return AddMonthsClamped(anchor, months*n), AddMonthsClamped(anchor, months*(n+1))
}

func daysIn(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}
