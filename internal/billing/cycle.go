package billing

import (
	"time"

	ierr "github.com/subflow/subflow/internal/errors"
)

// MMUCycle describes one calendar-month slice of a multi-month term that is
// fulfilled by hand, one month at a time.
type MMUCycle struct {
	// CycleIndex is 1-based: the first month of the term is cycle 1.
	CycleIndex int       `json:"cycle_index"`
	CycleTotal int       `json:"cycle_total"`
	CycleStart time.Time `json:"cycle_start"`
	CycleEnd   time.Time `json:"cycle_end"`
}

// GetMMUCycleInfo computes which calendar-month cycle of the term `now` falls
// in. A whole calendar month only counts as elapsed once now's day-of-month
// has reached termStartAt's. Returns nil once the index would exceed the
// term length: the term is complete and no task should be generated.
func GetMMUCycleInfo(termStartAt time.Time, termMonths int, now time.Time) (*MMUCycle, error) {
	if termStartAt.IsZero() {
		return nil, ierr.NewError("term_start_at is required").Mark(ierr.ErrValidation)
	}
	if termMonths <= 0 {
		return nil, ierr.NewError("term_months must be positive").Mark(ierr.ErrValidation)
	}
	if now.Before(termStartAt) {
		return nil, nil
	}

	elapsed := wholeMonthsBetween(termStartAt, now)

	cycleIndex := elapsed + 1
	if cycleIndex > termMonths {
		return nil, nil
	}

	return &MMUCycle{
		CycleIndex: cycleIndex,
		CycleTotal: termMonths,
		CycleStart: termStartAt.AddDate(0, cycleIndex-1, 0),
		CycleEnd:   termStartAt.AddDate(0, cycleIndex, 0),
	}, nil
}

// ShouldCreateMMUTask reports whether the upgrade task for a cycle should be
// cut: true once now is within leadDays of the cycle end.
func ShouldCreateMMUTask(cycleEnd time.Time, now time.Time, leadDays int) bool {
	return !now.Before(cycleEnd.AddDate(0, 0, -leadDays))
}

// wholeMonthsBetween counts whole calendar months from start to now. The
// current month counts only when now's day-of-month is not earlier than
// start's.
func wholeMonthsBetween(start, now time.Time) int {
	months := (now.Year()-start.Year())*12 + int(now.Month()) - int(start.Month())
	if now.Day() < start.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
