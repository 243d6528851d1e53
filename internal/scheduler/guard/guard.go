// Package guard holds the pure scheduling predicates so they can be
// tested without a database or a running scheduler.
package guard

import (
	"errors"
	"regexp"
	"time"
)

var (
	ErrMonthNotClosed = errors.New("month_not_closed")
	ErrMonthMalformed = errors.New("month_malformed")
)

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// PreviousMonth returns the settlement month immediately before now.
func PreviousMonth(now time.Time) string {
	return now.UTC().AddDate(0, -1, -(now.UTC().Day() - 1)).Format("2006-01")
}

// EnsureMonthSettleable rejects calculation for months that have not
// finished yet; settling a month mid-flight would bake in partial
// revenue.
func EnsureMonthSettleable(month string, now time.Time) error {
	if !monthPattern.MatchString(month) {
		return ErrMonthMalformed
	}
	if month >= now.UTC().Format("2006-01") {
		return ErrMonthNotClosed
	}
	return nil
}
