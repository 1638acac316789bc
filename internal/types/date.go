package types

import (
	"time"
)

// BillingPeriodStart normalizes any timestamp to the first of its calendar
// month in UTC. Obligations are keyed on this value, so every caller must
// normalize before touching the ledger.
func BillingPeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextBillingPeriod returns the first of the month following the given period.
// time.AddDate handles month-boundary issues since the input is always day 1.
func NextBillingPeriod(period time.Time) time.Time {
	return BillingPeriodStart(period).AddDate(0, 1, 0)
}

// BillingPeriodEnd returns the last instant of the period's calendar month.
func BillingPeriodEnd(period time.Time) time.Time {
	return NextBillingPeriod(period).Add(-time.Nanosecond)
}

// DueDateForPeriod returns the due date for a monthly obligation: the
// configured day of the obligation's month, clamped to the month length.
func DueDateForPeriod(period time.Time, dueDay int) time.Time {
	start := BillingPeriodStart(period)
	if dueDay < 1 {
		dueDay = 1
	}
	lastDay := BillingPeriodEnd(start).Day()
	if dueDay > lastDay {
		dueDay = lastDay
	}
	return time.Date(start.Year(), start.Month(), dueDay, 0, 0, 0, 0, time.UTC)
}
