package usecase

import (
	"context"
	"io"
	"time"

	"unitrade/internal/domain/entity"
	"unitrade/internal/domain/repository"
	"unitrade/internal/domain/service"
	"unitrade/internal/infrastructure/metrics"
	"unitrade/internal/infrastructure/ratelimit"
	"unitrade/pkg/errors"
	"unitrade/pkg/logger"
)

type ListingUseCase struct {
	listingRepo repository.ListingRepository
	images      ImageStorage
	policy      service.ListingPolicy
	rateLimiter *ratelimit.RateLimiter
	now         func() time.Time
}

func NewListingUseCase(
	listingRepo repository.ListingRepository,
	images ImageStorage,
	policy service.ListingPolicy,
	rateLimiter *ratelimit.RateLimiter,
) *ListingUseCase {
	return &ListingUseCase{
		listingRepo: listingRepo,
		images:      images,
		policy:      policy,
		rateLimiter: rateLimiter,
		now:         time.Now,
	}
}

type CreateListingInput struct {
	Name     string
	Price    *int64
	Category entity.Category
	// Image is an already hosted reference. ImageFile, when set, is uploaded
	// and replaces it.
	Image     string
	ImageFile io.Reader
}

func (uc *ListingUseCase) Create(ctx context.Context, session *entity.Session, input CreateListingInput) (*entity.Listing, error) {
	uid := session.UID()
	if uid == "" {
		return nil, errors.Unauthorized("Sign in to create a listing", nil)
	}

	if input.Category == "" {
		input.Category = entity.DefaultListingCategory
	}

	image := input.Image
	if input.ImageFile != nil {
		image = "upload"
	}
	if err := uc.policy.ValidateNewListing(service.NewListingInput{
		Name:     input.Name,
		Price:    input.Price,
		Category: input.Category,
		Image:    image,
	}); err != nil {
		return nil, err
	}

	if err := uc.allow(uid, ratelimit.ActionCreateListing); err != nil {
		return nil, err
	}

	if input.ImageFile != nil {
		url, err := uc.images.UploadImage(ctx, input.ImageFile, "listings/"+uid)
		if err != nil {
			return nil, err
		}
		image = url
	}

	listing := &entity.Listing{
		Name:      input.Name,
		Price:     *input.Price,
		Category:  input.Category,
		Image:     image,
		SellerID:  uid,
		CreatedAt: uc.now(),
	}

	if err := uc.listingRepo.Create(ctx, listing); err != nil {
		logger.LogListingError(listing.ID, "create", err)
		return nil, err
	}

	metrics.ListingTransitions.WithLabelValues(metrics.TransitionCreated).Inc()
	logger.Info("Listing created: listingID=%s, sellerID=%s, category=%s", listing.ID, uid, listing.Category)
	return listing, nil
}

// Buy needs an explicit confirmation from the buyer. Of two concurrent buyers
// exactly one wins; the other gets PermissionDenied.
func (uc *ListingUseCase) Buy(ctx context.Context, session *entity.Session, listingID string, confirmed bool) (*entity.Listing, error) {
	uid := session.UID()
	if uid == "" {
		return nil, errors.Unauthorized("Sign in to buy", nil)
	}
	if !confirmed {
		return nil, errors.Validation("Purchase must be confirmed", nil)
	}
	if err := uc.allow(uid, ratelimit.ActionBuyListing); err != nil {
		return nil, err
	}

	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if !uc.policy.CanBuy(listing, uid) {
		metrics.PermissionDenied.WithLabelValues("buy").Inc()
		if listing.IsSold {
			return nil, errors.PermissionDenied("Listing is already sold", nil)
		}
		return nil, errors.PermissionDenied("Sellers cannot buy their own listing", nil)
	}

	sold, err := uc.listingRepo.MarkSold(ctx, listingID, uid)
	if err != nil {
		if errors.Is(err, errors.CodePermissionDenied) {
			metrics.PermissionDenied.WithLabelValues("buy").Inc()
		}
		logger.LogListingError(listingID, "buy", err)
		return nil, err
	}

	metrics.ListingTransitions.WithLabelValues(metrics.TransitionSold).Inc()
	logger.Info("Listing sold: listingID=%s, buyerID=%s", listingID, uid)
	return sold, nil
}

func (uc *ListingUseCase) Delete(ctx context.Context, session *entity.Session, listingID string) error {
	uid := session.UID()
	if uid == "" {
		return errors.Unauthorized("Sign in to delete a listing", nil)
	}

	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return err
	}

	if !uc.policy.CanDelete(listing, uid) {
		metrics.PermissionDenied.WithLabelValues("delete").Inc()
		return errors.PermissionDenied("Only the seller may delete an unsold listing", nil)
	}

	if err := uc.listingRepo.DeleteActive(ctx, listingID, uid); err != nil {
		if errors.Is(err, errors.CodePermissionDenied) {
			metrics.PermissionDenied.WithLabelValues("delete").Inc()
		}
		logger.LogListingError(listingID, "delete", err)
		return err
	}

	metrics.ListingTransitions.WithLabelValues(metrics.TransitionDeleted).Inc()
	logger.Info("Listing deleted: listingID=%s, sellerID=%s", listingID, uid)

	if uc.images != nil {
		if err := uc.images.DeleteImage(ctx, listing.Image); err != nil {
			logger.Warn("Failed to delete image of listing %s: %v", listingID, err)
		}
	}
	return nil
}

func (uc *ListingUseCase) Get(ctx context.Context, listingID string) (*entity.Listing, error) {
	return uc.listingRepo.GetByID(ctx, listingID)
}

// List returns listings of one category, newest first. The all category (or
// an empty one) returns everything.
func (uc *ListingUseCase) List(ctx context.Context, category entity.Category) ([]*entity.Listing, error) {
	return uc.listingRepo.List(ctx, repository.ListingFilter{Category: category})
}

func (uc *ListingUseCase) ListBySeller(ctx context.Context, session *entity.Session) ([]*entity.Listing, error) {
	uid := session.UID()
	if uid == "" {
		return nil, errors.Unauthorized("Sign in to see your listings", nil)
	}
	return uc.listingRepo.List(ctx, repository.ListingFilter{SellerID: uid})
}

// WatchListings is the live form of List. fn gets the full result set on every
// change.
func (uc *ListingUseCase) WatchListings(ctx context.Context, category entity.Category, fn repository.ListingsFunc) (repository.Unsubscribe, error) {
	unsub, err := uc.listingRepo.Subscribe(ctx, repository.ListingFilter{Category: category}, fn)
	if err != nil {
		return nil, err
	}
	return tracked("listings", unsub), nil
}

func (uc *ListingUseCase) WatchSellerListings(ctx context.Context, session *entity.Session, fn repository.ListingsFunc) (repository.Unsubscribe, error) {
	uid := session.UID()
	if uid == "" {
		return nil, errors.Unauthorized("Sign in to see your listings", nil)
	}
	unsub, err := uc.listingRepo.Subscribe(ctx, repository.ListingFilter{SellerID: uid}, fn)
	if err != nil {
		return nil, err
	}
	return tracked("my_listings", unsub), nil
}

func (uc *ListingUseCase) allow(uid, action string) error {
	if uc.rateLimiter == nil {
		return nil
	}
	if ok, wait := uc.rateLimiter.Allow(uid, action); !ok {
		logger.Warn("Rate limited: userID=%s, action=%s, wait=%v", uid, action, wait)
		return errors.TooManyRequests("Too many requests, try again in " + wait.Round(time.Second).String())
	}
	return nil
}
