package market

import (
	"testing"
	"time"
)

func mustHours(t *testing.T) Hours {
	t.Helper()
	h, err := USEquities()
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	return h
}

func TestIsOpen(t *testing.T) {
	h := mustHours(t)
	loc := h.Location

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", time.Date(2024, 3, 12, 9, 29, 59, 0, loc), false},
		{"at open", time.Date(2024, 3, 12, 9, 30, 0, 0, loc), true},
		{"midday", time.Date(2024, 3, 12, 12, 0, 0, 0, loc), true},
		{"at close", time.Date(2024, 3, 12, 16, 0, 0, 0, loc), false},
		{"saturday", time.Date(2024, 3, 16, 12, 0, 0, 0, loc), false},
		{"sunday", time.Date(2024, 3, 17, 12, 0, 0, 0, loc), false},
	}
	for _, tc := range cases {
		if got := h.IsOpen(tc.at); got != tc.want {
			t.Errorf("%s: IsOpen(%v) = %v, want %v", tc.name, tc.at, got, tc.want)
		}
	}
}

func TestIsOpenConvertsFromUTC(t *testing.T) {
	h := mustHours(t)

	// 14:00 UTC on a March weekday after the DST switch is 10:00 EDT.
	if !h.IsOpen(time.Date(2024, 3, 12, 14, 0, 0, 0, time.UTC)) {
		t.Error("Expected market to be open at 14:00 UTC")
	}
	// 13:00 UTC is 09:00 EDT.
	if h.IsOpen(time.Date(2024, 3, 12, 13, 0, 0, 0, time.UTC)) {
		t.Error("Expected market to be closed at 13:00 UTC")
	}
}

func TestDateUsesMarketTimezone(t *testing.T) {
	h := mustHours(t)

	// 02:00 UTC on the 13th is still the 12th in New York.
	got := h.Date(time.Date(2024, 3, 13, 2, 0, 0, 0, time.UTC))
	if got != "2024-03-12" {
		t.Errorf("Expected 2024-03-12, got %s", got)
	}
}
