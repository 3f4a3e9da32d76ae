package marketdata

import "time"

// DateRange is an inclusive window of calendar days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Days is the number of calendar days covered, both ends included.
func (r DateRange) Days() int {
	return int(r.To.Sub(r.From).Hours()/24) + 1
}

// SplitDateRange cuts [from, to] into consecutive windows of at most
// chunkDays days. Providers cap how much history one request may return,
// so long imports are fetched window by window.
func SplitDateRange(from, to time.Time, chunkDays int) []DateRange {
	if from.After(to) || chunkDays <= 0 {
		return nil
	}

	var windows []DateRange
	for start := from; !start.After(to); start = start.AddDate(0, 0, chunkDays) {
		end := min(start.AddDate(0, 0, chunkDays-1), to)
		windows = append(windows, DateRange{From: start, To: end})
	}
	return windows
}
