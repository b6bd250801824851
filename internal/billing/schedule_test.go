package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextCardAttemptDate(t *testing.T) {
	endDate := date(2024, time.June, 30)

	t.Run("walks the offset schedule in order", func(t *testing.T) {
		attempt := date(2024, time.June, 1)
		expected := []time.Time{
			date(2024, time.June, 23), // 7 days before expiry
			date(2024, time.June, 27), // 3 days
			date(2024, time.June, 29), // 1 day
			date(2024, time.June, 30), // expiry day
		}

		for _, want := range expected {
			next := NextCardAttemptDate(endDate, attempt)
			require.NotNil(t, next)
			assert.Equal(t, want, *next)
			attempt = *next
		}

		assert.Nil(t, NextCardAttemptDate(endDate, attempt))
	})

	t.Run("always strictly after the current attempt", func(t *testing.T) {
		attempt := date(2024, time.June, 1)
		for {
			next := NextCardAttemptDate(endDate, attempt)
			if next == nil {
				break
			}
			assert.True(t, next.After(attempt))
			attempt = *next
		}
	})

	t.Run("exhausted on or after expiry day", func(t *testing.T) {
		assert.Nil(t, NextCardAttemptDate(endDate, date(2024, time.June, 30)))
		assert.Nil(t, NextCardAttemptDate(endDate, date(2024, time.July, 5)))
	})

	t.Run("late first attempt skips earlier offsets", func(t *testing.T) {
		next := NextCardAttemptDate(endDate, date(2024, time.June, 28))
		require.NotNil(t, next)
		assert.Equal(t, date(2024, time.June, 29), *next)
	})
}

func TestAdvanceTerm(t *testing.T) {
	t.Run("extends from old end when renewed on time", func(t *testing.T) {
		oldEnd := date(2024, time.June, 30)
		now := date(2024, time.June, 25)

		newEnd, renewalDate := AdvanceTerm(oldEnd, now, 3)
		assert.Equal(t, date(2024, time.September, 30), newEnd)
		assert.Equal(t, date(2024, time.September, 23), renewalDate)
	})

	t.Run("extends from now when already lapsed", func(t *testing.T) {
		oldEnd := date(2024, time.June, 30)
		now := date(2024, time.July, 10)

		newEnd, renewalDate := AdvanceTerm(oldEnd, now, 1)
		assert.Equal(t, date(2024, time.August, 10), newEnd)
		assert.Equal(t, date(2024, time.August, 3), renewalDate)
	})
}
