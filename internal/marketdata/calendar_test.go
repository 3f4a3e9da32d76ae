package marketdata

import (
	"testing"
	"time"
)

func TestExchangeMIC(t *testing.T) {
	tests := []struct {
		ticker string
		want   string
	}{
		{"AAPL", "xnys"},
		{"VOD.L", "xlon"},
		{"7203.T", "xtks"},
		{"BRK.B", "xnys"},
		{"^GSPC", "xnys"},
	}
	for _, tt := range tests {
		if got := ExchangeMIC(tt.ticker); got != tt.want {
			t.Errorf("ExchangeMIC(%q) = %q, want %q", tt.ticker, got, tt.want)
		}
	}
}

func TestLastTradingDay_SkipsWeekend(t *testing.T) {
	// Sunday 2024-03-10 noon in New York.
	now := time.Date(2024, 3, 10, 17, 0, 0, 0, time.UTC)
	got := LastTradingDay("AAPL", now)
	want := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestLastTradingDay_WeekdayIsItself(t *testing.T) {
	// Wednesday 2024-03-13 afternoon in New York.
	now := time.Date(2024, 3, 13, 19, 0, 0, 0, time.UTC)
	got := LastTradingDay("AAPL", now)
	want := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestLastTradingDay_SkipsHoliday(t *testing.T) {
	// Christmas 2024 fell on a Wednesday; NYSE was closed.
	now := time.Date(2024, 12, 25, 18, 0, 0, 0, time.UTC)
	got := LastTradingDay("AAPL", now)
	want := time.Date(2024, 12, 24, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}
