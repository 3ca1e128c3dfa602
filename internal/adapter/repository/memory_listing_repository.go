package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"unitrade/internal/domain/entity"
	"unitrade/internal/domain/repository"
	"unitrade/pkg/errors"
)

// memoryListingRepository keeps listings in process memory and pushes every
// change to subscribers synchronously. It backs STORE_DRIVER=memory and the
// use-case tests. Subscriber callbacks must not write to the same repository.
type memoryListingRepository struct {
	mu       sync.Mutex
	listings map[string]*entity.Listing
	subs     map[int]*listingSubscription
	nextSub  int

	// deliverMu serializes mutate+notify so subscribers never observe an older
	// snapshot after a newer one.
	deliverMu sync.Mutex
}

type listingSubscription struct {
	filter repository.ListingFilter
	docID  string
	many   repository.ListingsFunc
	one    repository.ListingFunc
}

func NewMemoryListingRepository() repository.ListingRepository {
	return &memoryListingRepository{
		listings: make(map[string]*entity.Listing),
		subs:     make(map[int]*listingSubscription),
	}
}

func (r *memoryListingRepository) Create(ctx context.Context, listing *entity.Listing) error {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	if listing.ID == "" {
		listing.ID = uuid.New().String()
	}
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = time.Now()
	}
	listing.IsSold = false
	listing.BuyerID = ""

	r.mu.Lock()
	r.listings[listing.ID] = listing.Clone()
	pending := r.collectLocked(listing.ID)
	r.mu.Unlock()

	pending.deliver()
	return nil
}

func (r *memoryListingRepository) GetByID(ctx context.Context, id string) (*entity.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	listing, ok := r.listings[id]
	if !ok {
		return nil, errors.NotFound("Listing", nil)
	}
	return listing.Clone(), nil
}

func (r *memoryListingRepository) List(ctx context.Context, filter repository.ListingFilter) ([]*entity.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queryLocked(filter), nil
}

func (r *memoryListingRepository) MarkSold(ctx context.Context, id, buyerID string) (*entity.Listing, error) {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	r.mu.Lock()
	listing, ok := r.listings[id]
	if !ok {
		r.mu.Unlock()
		return nil, errors.NotFound("Listing", nil)
	}
	if listing.IsSold {
		r.mu.Unlock()
		return nil, errors.PermissionDenied("Listing is already sold", nil)
	}
	listing.IsSold = true
	listing.BuyerID = buyerID
	sold := listing.Clone()
	pending := r.collectLocked(id)
	r.mu.Unlock()

	pending.deliver()
	return sold, nil
}

func (r *memoryListingRepository) DeleteActive(ctx context.Context, id, sellerID string) error {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	r.mu.Lock()
	listing, ok := r.listings[id]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("Listing", nil)
	}
	if listing.SellerID != sellerID || listing.IsSold {
		r.mu.Unlock()
		return errors.PermissionDenied("Only the seller may delete an unsold listing", nil)
	}
	delete(r.listings, id)
	pending := r.collectLocked(id)
	r.mu.Unlock()

	pending.deliver()
	return nil
}

func (r *memoryListingRepository) Subscribe(ctx context.Context, filter repository.ListingFilter, fn repository.ListingsFunc) (repository.Unsubscribe, error) {
	return r.subscribe(&listingSubscription{filter: filter, many: fn})
}

func (r *memoryListingRepository) SubscribeOne(ctx context.Context, id string, fn repository.ListingFunc) (repository.Unsubscribe, error) {
	return r.subscribe(&listingSubscription{docID: id, one: fn})
}

func (r *memoryListingRepository) subscribe(sub *listingSubscription) (repository.Unsubscribe, error) {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = sub
	initial := notifications{r.snapshotLocked(sub)}
	r.mu.Unlock()

	initial.deliver()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	}, nil
}

type notifications []func()

func (n notifications) deliver() {
	for _, fn := range n {
		fn()
	}
}

// collectLocked prepares the callbacks of every subscription that a change to
// listing id can affect. Collection subscriptions always get a fresh result set.
func (r *memoryListingRepository) collectLocked(id string) notifications {
	var out notifications
	for _, sub := range r.subs {
		if sub.docID != "" && sub.docID != id {
			continue
		}
		out = append(out, r.snapshotLocked(sub))
	}
	return out
}

func (r *memoryListingRepository) snapshotLocked(sub *listingSubscription) func() {
	if sub.one != nil {
		current := r.listings[sub.docID].Clone()
		fn := sub.one
		return func() { fn(current, nil) }
	}
	result := r.queryLocked(sub.filter)
	fn := sub.many
	return func() { fn(result, nil) }
}

func (r *memoryListingRepository) queryLocked(filter repository.ListingFilter) []*entity.Listing {
	result := make([]*entity.Listing, 0, len(r.listings))
	for _, l := range r.listings {
		if !filter.Category.IsAll() && l.Category != filter.Category {
			continue
		}
		if filter.SellerID != "" && l.SellerID != filter.SellerID {
			continue
		}
		result = append(result, l.Clone())
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}
