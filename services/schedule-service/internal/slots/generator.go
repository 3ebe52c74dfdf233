package slots

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var timeOfDayLayouts = []string{"15:04", "15:04:05"}

// Window is a time-of-day range on some calendar date, e.g. {"09:00", "12:00"}.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ParseWindow combines date with the window bounds into UTC instants.
func ParseWindow(date string, w Window) (Interval, error) {
	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), time.UTC)
	if err != nil {
		return Interval{}, InvalidInterval("invalid date %q", date)
	}
	start, err := atTimeOfDay(day, w.Start)
	if err != nil {
		return Interval{}, err
	}
	end, err := atTimeOfDay(day, w.End)
	if err != nil {
		return Interval{}, err
	}
	if !start.Before(end) {
		return Interval{}, InvalidInterval("window start %s must be before end %s", w.Start, w.End)
	}
	return Interval{Start: start, End: end}, nil
}

func atTimeOfDay(day time.Time, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeOfDayLayouts {
		t, err := time.ParseInLocation(layout, raw, time.UTC)
		if err != nil {
			continue
		}
		return day.Add(time.Duration(t.Hour())*time.Hour +
			time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second), nil
	}
	return time.Time{}, InvalidInterval("invalid time of day %q", raw)
}

// Tile splits window into back-to-back intervals of length d in ascending order.
// A trailing remainder shorter than d is dropped.
func Tile(window Interval, d time.Duration) []Interval {
	if d <= 0 {
		return nil
	}
	var out []Interval
	for cursor := window.Start; !cursor.Add(d).After(window.End); cursor = cursor.Add(d) {
		out = append(out, Interval{Start: cursor, End: cursor.Add(d)})
	}
	return out
}

// Slot lengths outside [MinDuration, MaxDuration] are rejected.
const (
	MinDuration = time.Minute
	MaxDuration = 24 * time.Hour
)

func checkDuration(d time.Duration) error {
	if d <= 0 {
		return InvalidArgument("duration must be positive")
	}
	if d < MinDuration || d > MaxDuration {
		return InvalidArgument("duration must be between %v and %v", MinDuration, MaxDuration)
	}
	return nil
}

// Generate parses the window on date and tiles it.
func Generate(date string, w Window, d time.Duration) ([]Interval, error) {
	if err := checkDuration(d); err != nil {
		return nil, err
	}
	window, err := ParseWindow(date, w)
	if err != nil {
		return nil, err
	}
	return Tile(window, d), nil
}
