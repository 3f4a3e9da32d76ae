package marketdata

import (
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// micBySuffix maps Yahoo ticker suffixes to ISO 10383 exchange codes.
var micBySuffix = map[string]string{
	".L":  "xlon",
	".PA": "xpar",
	".DE": "xfra",
	".AS": "xams",
	".MI": "xmil",
	".MC": "xmad",
	".SW": "xswx",
	".TO": "xtse",
	".T":  "xtks",
	".HK": "xhkg",
	".AX": "xasx",
}

// ExchangeMIC returns the exchange code for a ticker, defaulting to NYSE.
func ExchangeMIC(ticker string) string {
	if i := strings.LastIndex(ticker, "."); i > 0 {
		if mic, ok := micBySuffix[strings.ToUpper(ticker[i:])]; ok {
			return mic
		}
	}
	return "xnys"
}

// LastTradingDay returns the most recent business day on or before now on
// the ticker's exchange, as a UTC midnight date. Weekends are skipped when no
// calendar is available.
func LastTradingDay(ticker string, now time.Time) time.Time {
	cal := calendar.GetCalendar(ExchangeMIC(ticker))
	if cal == nil {
		cal = calendar.GetCalendar("xnys")
	}

	d := now
	if cal != nil && cal.Loc != nil {
		d = now.In(cal.Loc)
	}
	for range 14 {
		if isTradingDay(cal, d) {
			break
		}
		d = d.AddDate(0, 0, -1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func isTradingDay(cal *calendar.Calendar, d time.Time) bool {
	if cal == nil {
		wd := d.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return cal.IsBusinessDay(d)
}
