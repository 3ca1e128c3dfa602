package repository

import (
	"context"

	"unitrade/internal/domain/entity"
)

// Unsubscribe releases one realtime subscription. It is safe to call more than
// once and never affects any other subscription.
type Unsubscribe func()

// ListingFilter narrows a listing query. Zero values mean "no filter".
// Results are always ordered by CreatedAt descending.
type ListingFilter struct {
	Category entity.Category
	SellerID string
}

// ListingsFunc receives the full current result set of a listing subscription.
// A non-nil error ends the subscription.
type ListingsFunc func(listings []*entity.Listing, err error)

// ListingFunc receives the current state of a single listing. A nil listing
// with a nil error means the document does not exist (deleted).
type ListingFunc func(listing *entity.Listing, err error)

type ListingRepository interface {
	// Create assigns the ID and stores a new, unsold listing.
	Create(ctx context.Context, listing *entity.Listing) error
	GetByID(ctx context.Context, id string) (*entity.Listing, error)
	List(ctx context.Context, filter ListingFilter) ([]*entity.Listing, error)

	// MarkSold atomically flips isSold to true and records the buyer, only if
	// the listing is still unsold. Otherwise it returns PermissionDenied and
	// leaves the stored state untouched.
	MarkSold(ctx context.Context, id, buyerID string) (*entity.Listing, error)

	// DeleteActive removes the listing only while it is unsold and owned by
	// sellerID. Otherwise it returns PermissionDenied.
	DeleteActive(ctx context.Context, id, sellerID string) error

	Subscribe(ctx context.Context, filter ListingFilter, fn ListingsFunc) (Unsubscribe, error)
	SubscribeOne(ctx context.Context, id string, fn ListingFunc) (Unsubscribe, error)
}
