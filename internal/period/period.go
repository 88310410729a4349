package period

import "time"

// Resolve maps a calendar date to the quarter-end whose statements should
// already be published by that date: months 1-4 see the prior year's Q4,
// 5-8 see Q1, 9-10 see Q2, and 11-12 see Q3. The result is a UTC midnight
// period-end date.
func Resolve(today time.Time) time.Time {
	year := today.Year()
	switch month := today.Month(); {
	case month <= 4:
		return quarterEnd(year-1, 12, 31)
	case month <= 8:
		return quarterEnd(year, 3, 31)
	case month <= 10:
		return quarterEnd(year, 6, 30)
	default:
		return quarterEnd(year, 9, 30)
	}
}

func quarterEnd(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
