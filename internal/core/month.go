package core

import "time"

// MonthRange returns the inclusive bounds of a month in loc: the first day at
// 00:00:00.000 and the last day at 23:59:59.999. monthIndex is 0-based.
func MonthRange(monthIndex, year int, loc *time.Location) (TimeRange, error) {
	if monthIndex < 0 || monthIndex > 11 {
		return TimeRange{}, ErrInvalidMonth
	}
	if loc == nil {
		loc = time.Local
	}
	start := time.Date(year, time.Month(monthIndex+1), 1, 0, 0, 0, 0, loc)
	// Day 0 of the next month is the last day of this one.
	lastDay := time.Date(year, time.Month(monthIndex+2), 0, 0, 0, 0, 0, loc)
	end := time.Date(lastDay.Year(), lastDay.Month(), lastDay.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
	return TimeRange{Start: start, End: end}, nil
}

// FilterByMonth keeps the expenses created within the month, preserving order.
// An invalid month index yields an empty result.
func FilterByMonth(expenses []Expense, monthIndex, year int, loc *time.Location) []Expense {
	r, err := MonthRange(monthIndex, year, loc)
	if err != nil {
		return []Expense{}
	}
	return FilterByRange(expenses, r)
}

// FilterByRange keeps the expenses created within r, preserving order.
func FilterByRange(expenses []Expense, r TimeRange) []Expense {
	out := []Expense{}
	for _, e := range expenses {
		if r.Contains(e.CreatedAt) {
			out = append(out, e)
		}
	}
	return out
}

// MonthName returns the English name for a 0-based month index.
func MonthName(monthIndex int) string {
	if monthIndex < 0 || monthIndex > 11 {
		return ""
	}
	return time.Month(monthIndex + 1).String()
}
