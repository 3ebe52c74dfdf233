package slots

import (
	"strings"
	"time"
)

type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusBooked    Status = "BOOKED"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus accepts the three statuses case-insensitively, plus OCCUPIED as a
// legacy spelling of BOOKED.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(StatusAvailable):
		return StatusAvailable, nil
	case string(StatusBooked), "OCCUPIED":
		return StatusBooked, nil
	case string(StatusCancelled):
		return StatusCancelled, nil
	}
	return "", InvalidArgument("invalid status %q", raw)
}

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether neither interval lies entirely before the other.
// Intervals that only touch at a boundary do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

type Slot struct {
	ID      string    `json:"id"`
	OwnerID string    `json:"ownerId"`
	Start   time.Time `json:"startTime"`
	End     time.Time `json:"endTime"`
	Status  Status    `json:"status"`
}

func (s Slot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

// Elapsed reports whether the slot ended before now.
func (s Slot) Elapsed(now time.Time) bool {
	return s.End.Before(now)
}

// Stale slots are elapsed and were never claimed.
func (s Slot) Stale(now time.Time) bool {
	return s.Status == StatusAvailable && s.Elapsed(now)
}

// ProviderAvailability is one entry of the available-provider search.
type ProviderAvailability struct {
	ProviderID     string `json:"providerId"`
	Name           string `json:"name"`
	AvailableSlots []Slot `json:"availableSlots"`
}
