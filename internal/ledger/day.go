package ledger

import "time"

const dayLayout = "2006-01-02"

func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DayKey formats the calendar day of t in t's location.
func DayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// SameDay reports whether t falls on the calendar day of ref, in ref's location.
func SameDay(t, ref time.Time) bool {
	y1, m1, d1 := t.In(ref.Location()).Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
