package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"unitrade/internal/domain/entity"
	"unitrade/internal/domain/repository"
	"unitrade/pkg/errors"
	"unitrade/pkg/logger"
)

// ListingsCollection keeps the web client's document shape. Messages written
// by that client carry no listingId field; reads resolve the listing from the
// document path instead.
const ListingsCollection = "products"

type firestoreListingRepository struct {
	client *firestore.Client
}

func NewFirestoreListingRepository(client *firestore.Client) repository.ListingRepository {
	return &firestoreListingRepository{
		client: client,
	}
}

func (r *firestoreListingRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(ListingsCollection)
}

func (r *firestoreListingRepository) Create(ctx context.Context, listing *entity.Listing) error {
	doc := r.collection().NewDoc()
	listing.ID = doc.ID
	listing.IsSold = false
	listing.BuyerID = ""

	if _, err := doc.Create(ctx, listing); err != nil {
		return errors.StoreUnavailable("Failed to create listing", err)
	}
	return nil
}

func (r *firestoreListingRepository) GetByID(ctx context.Context, id string) (*entity.Listing, error) {
	doc, err := r.collection().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Listing", err)
		}
		return nil, errors.StoreUnavailable("Failed to get listing", err)
	}
	return decodeListing(doc)
}

func (r *firestoreListingRepository) List(ctx context.Context, filter repository.ListingFilter) ([]*entity.Listing, error) {
	iter := r.query(filter).Documents(ctx)
	defer iter.Stop()

	var listings []*entity.Listing
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.StoreUnavailable("Failed to iterate listings", err)
		}
		listing, err := decodeListing(doc)
		if err != nil {
			logger.Warn("Skipping malformed listing %s: %v", doc.Ref.ID, err)
			continue
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

// MarkSold runs as a transaction so that of two concurrent buyers exactly one
// is recorded; the loser sees PermissionDenied.
func (r *firestoreListingRepository) MarkSold(ctx context.Context, id, buyerID string) (*entity.Listing, error) {
	ref := r.collection().Doc(id)
	var sold *entity.Listing

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Listing", err)
			}
			return err
		}
		listing, err := decodeListing(doc)
		if err != nil {
			return err
		}
		if listing.IsSold {
			return errors.PermissionDenied("Listing is already sold", nil)
		}

		listing.IsSold = true
		listing.BuyerID = buyerID
		sold = listing

		return tx.Update(ref, []firestore.Update{
			{Path: "isSold", Value: true},
			{Path: "buyerId", Value: buyerID},
		})
	})
	if err != nil {
		return nil, storeError("Failed to mark listing sold", err)
	}
	return sold, nil
}

func (r *firestoreListingRepository) DeleteActive(ctx context.Context, id, sellerID string) error {
	ref := r.collection().Doc(id)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Listing", err)
			}
			return err
		}
		listing, err := decodeListing(doc)
		if err != nil {
			return err
		}
		if listing.SellerID != sellerID || listing.IsSold {
			return errors.PermissionDenied("Only the seller may delete an unsold listing", nil)
		}
		return tx.Delete(ref)
	})
	if err != nil {
		return storeError("Failed to delete listing", err)
	}
	return nil
}

func (r *firestoreListingRepository) Subscribe(ctx context.Context, filter repository.ListingFilter, fn repository.ListingsFunc) (repository.Unsubscribe, error) {
	return watchQuery(ctx, r.query(filter), func(docs []*firestore.DocumentSnapshot, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		listings := make([]*entity.Listing, 0, len(docs))
		for _, doc := range docs {
			listing, err := decodeListing(doc)
			if err != nil {
				logger.Warn("Skipping malformed listing %s: %v", doc.Ref.ID, err)
				continue
			}
			listings = append(listings, listing)
		}
		fn(listings, nil)
	}), nil
}

func (r *firestoreListingRepository) SubscribeOne(ctx context.Context, id string, fn repository.ListingFunc) (repository.Unsubscribe, error) {
	return watchDocument(ctx, r.collection().Doc(id), func(doc *firestore.DocumentSnapshot, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		if !doc.Exists() {
			fn(nil, nil)
			return
		}
		listing, err := decodeListing(doc)
		fn(listing, err)
	}), nil
}

func (r *firestoreListingRepository) query(filter repository.ListingFilter) firestore.Query {
	query := r.collection().Query
	if !filter.Category.IsAll() {
		query = query.Where("category", "==", string(filter.Category))
	}
	if filter.SellerID != "" {
		query = query.Where("sellerId", "==", filter.SellerID)
	}
	return query.OrderBy("createdAt", firestore.Desc)
}

func decodeListing(doc *firestore.DocumentSnapshot) (*entity.Listing, error) {
	var listing entity.Listing
	if err := doc.DataTo(&listing); err != nil {
		return nil, errors.StoreUnavailable("Failed to parse listing data", err)
	}
	listing.ID = doc.Ref.ID
	return &listing, nil
}

// storeError keeps AppErrors raised inside a transaction and wraps anything
// else coming back from Firestore.
func storeError(message string, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.StoreUnavailable(message, err)
}
