// Package billing holds the membership billing date computation. The full
// invoicing and proration lifecycle lives in the billing platform; this
// service only needs to stamp the next charge date on new memberships.
package billing

import "time"

// NextBillingDate returns the next charge date for a membership that started
// (or last billed) at the given instant. Billing is monthly, anchored to the
// start day; a start on the 31st bills on the last day of shorter months.
func NextBillingDate(from time.Time) time.Time {
	from = from.UTC()
	year, month, day := from.Date()

	next := time.Date(year, month+1, 1, from.Hour(), from.Minute(), from.Second(), 0, time.UTC)
	lastDay := daysIn(next.Year(), next.Month())
	if day > lastDay {
		day = lastDay
	}
	return time.Date(next.Year(), next.Month(), day, from.Hour(), from.Minute(), from.Second(), 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
