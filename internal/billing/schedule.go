package billing

import "time"

// cardAttemptOffsets are the day-offsets before a subscription's end date at
// which off-session card charges are attempted: a week out, then closer in,
// with a final attempt on the expiry day itself.
var cardAttemptOffsets = []int{7, 3, 1, 0}

// NextCardAttemptDate returns the next scheduled card renewal attempt: the
// earliest remaining offset strictly later than currentAttempt. It returns
// nil once the schedule is exhausted, at which point the caller disables
// auto-renew instead of retrying past expiry.
func NextCardAttemptDate(endDate time.Time, currentAttempt time.Time) *time.Time {
	for _, offset := range cardAttemptOffsets {
		candidate := endDate.AddDate(0, 0, -offset)
		if candidate.After(currentAttempt) {
			return &candidate
		}
	}
	return nil
}

// TermMonthsFromDates derives a term length from the calendar interval
// between two dates. Last-resort fallback when no structured term field
// exists anywhere upstream; callers log its use as a data-quality warning.
func TermMonthsFromDates(start, end time.Time) int {
	if !end.After(start) {
		return 1
	}
	months := wholeMonthsBetween(start, end)
	if months < 1 {
		return 1
	}
	return months
}

// AdvanceTerm applies one renewal cycle to a subscription's dates:
// the new end is termMonths after the old end, or after now when the
// subscription had already lapsed past its end date.
func AdvanceTerm(oldEnd time.Time, now time.Time, termMonths int) (newEnd, renewalDate time.Time) {
	base := oldEnd
	if now.After(base) {
		base = now
	}
	newEnd = base.AddDate(0, termMonths, 0)
	renewalDate = newEnd.AddDate(0, 0, -7)
	return newEnd, renewalDate
}
