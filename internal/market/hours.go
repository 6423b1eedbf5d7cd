package market

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Hours describes a regular weekday trading session in a fixed timezone.
type Hours struct {
	Location *time.Location
	Open     time.Duration // offset from local midnight
	Close    time.Duration
}

func NewHours(loc *time.Location, openHour, openMinute, closeHour, closeMinute int) Hours {
	return Hours{
		Location: loc,
		Open:     time.Duration(openHour)*time.Hour + time.Duration(openMinute)*time.Minute,
		Close:    time.Duration(closeHour)*time.Hour + time.Duration(closeMinute)*time.Minute,
	}
}

// USEquities is 09:30-16:00 America/New_York.
func USEquities() (Hours, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return Hours{}, fmt.Errorf("load market timezone: %w", err)
	}
	return NewHours(loc, 9, 30, 16, 0), nil
}

func (h Hours) In(t time.Time) time.Time {
	if h.Location == nil {
		return t
	}
	return t.In(h.Location)
}

// IsOpen reports whether t falls on a weekday inside [open, close).
func (h Hours) IsOpen(t time.Time) bool {
	local := h.In(t)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	offset := local.Sub(midnight)
	return offset >= h.Open && offset < h.Close
}

// Date is t's calendar date in the market timezone, formatted YYYY-MM-DD.
func (h Hours) Date(t time.Time) string {
	return h.In(t).Format(dateLayout)
}

func (h Hours) String() string {
	return fmt.Sprintf("Mon-Fri %s-%s %s", clock(h.Open), clock(h.Close), h.In(time.Now()).Format("MST"))
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
