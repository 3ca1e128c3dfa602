package repository

import (
	"context"
	"time"

	"unitrade/internal/domain/entity"
)

// MessagesFunc receives the full ordered message log of a listing.
type MessagesFunc func(messages []*entity.Message, err error)

// LatestFunc receives, per listing id, the newest message timestamp among
// messages not authored by the excluded uid. Listings with no such message are
// absent from the map.
type LatestFunc func(latest map[string]time.Time, err error)

type MessageRepository interface {
	// Append assigns the ID and stores the message. Messages are never updated.
	Append(ctx context.Context, message *entity.Message) error
	// ListOrdered returns the messages of a listing by CreatedAt ascending.
	ListOrdered(ctx context.Context, listingID string) ([]*entity.Message, error)
	SubscribeOrdered(ctx context.Context, listingID string, fn MessagesFunc) (Unsubscribe, error)

	// LatestFromOthers is the aggregated unread query over a set of listings.
	LatestFromOthers(ctx context.Context, listingIDs []string, excludeUID string) (map[string]time.Time, error)
	SubscribeLatestFromOthers(ctx context.Context, listingIDs []string, excludeUID string, fn LatestFunc) (Unsubscribe, error)
}
