package repository

import "context"

// WatermarkStore persists the "last seen" timestamp of each listing in epoch
// milliseconds, per user and device. Two devices of the same user do not share
// a watermark, and neither do two users on the same device id.
// Writes are last-write-wins.
type WatermarkStore interface {
	// Get returns the stored watermark and whether one exists.
	Get(ctx context.Context, uid, deviceID, listingID string) (int64, bool, error)
	Set(ctx context.Context, uid, deviceID, listingID string, seenAtMillis int64) error
	Close() error
}
