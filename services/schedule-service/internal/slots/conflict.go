package slots

import "context"

// HasConflict reports whether candidate overlaps any existing slot of ownerID.
// Cancelled slots still block: their range is not released for rebooking.
func HasConflict(ctx context.Context, store Store, ownerID string, candidate Interval) (bool, error) {
	existing, err := store.FindOverlapping(ctx, ownerID, candidate)
	if err != nil {
		return false, err
	}
	for _, s := range existing {
		if s.Interval().Overlaps(candidate) {
			return true, nil
		}
	}
	return false, nil
}
