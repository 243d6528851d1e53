package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPreviousMonth(t *testing.T) {
	cases := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), "2026-01"},
		{time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC), "2026-01"},
		{time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), "2025-12"},
		{time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), "2026-02"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PreviousMonth(tc.now), tc.now.String())
	}
}

func TestEnsureMonthSettleable(t *testing.T) {
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	assert.NoError(t, EnsureMonthSettleable("2026-01", now))
	assert.NoError(t, EnsureMonthSettleable("2024-06", now))

	assert.ErrorIs(t, EnsureMonthSettleable("2026-02", now), ErrMonthNotClosed)
	assert.ErrorIs(t, EnsureMonthSettleable("2026-03", now), ErrMonthNotClosed)
	assert.ErrorIs(t, EnsureMonthSettleable("2027-01", now), ErrMonthNotClosed)

	for _, month := range []string{"", "2026", "2026-13", "2026-00", "feb-2026"} {
		assert.ErrorIs(t, EnsureMonthSettleable(month, now), ErrMonthMalformed, month)
	}
}
