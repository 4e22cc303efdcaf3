package billing

import "time"

// resetBoundary returns the start of the current usage window for a limit:
// the most recent anniversary of the billing-cycle anchor at or before now.
// ResetNever yields the zero time so all usage ever tracked counts. A zero
// anchor behaves like an anchor at the start of the calendar period.
func resetBoundary(reset ResetPeriod, anchor, now time.Time) time.Time {
	anchor = anchor.UTC()
	now = now.UTC()

	switch reset {
	case ResetDaily:
		b := time.Date(now.Year(), now.Month(), now.Day(),
			anchor.Hour(), anchor.Minute(), anchor.Second(), 0, time.UTC)
		if b.After(now) {
			b = b.AddDate(0, 0, -1)
		}
		return b
	case ResetMonthly:
		b := monthlyAnniversary(anchor, now.Year(), now.Month())
		if b.After(now) {
			prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
			b = monthlyAnniversary(anchor, prev.Year(), prev.Month())
		}
		return b
	case ResetYearly:
		b := yearlyAnniversary(anchor, now.Year())
		if b.After(now) {
			b = yearlyAnniversary(anchor, now.Year()-1)
		}
		return b
	default:
		return time.Time{}
	}
}

// monthlyAnniversary places the anchor's day-of-month into the given month,
// clamping to the month's length (an anchor on the 31st resets on Feb 28).
func monthlyAnniversary(anchor time.Time, year int, month time.Month) time.Time {
	day := anchor.Day()
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day,
		anchor.Hour(), anchor.Minute(), anchor.Second(), 0, time.UTC)
}

func yearlyAnniversary(anchor time.Time, year int) time.Time {
	return monthlyAnniversary(anchor, year, anchor.Month())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
