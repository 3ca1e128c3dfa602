package service

import (
	"strings"
	"time"

	"unitrade/internal/domain/entity"
	"unitrade/pkg/errors"
)

// ListingPolicy holds every permission predicate of the marketplace. The use
// cases decide through it for both HTTP and the realtime channel.
//
// The zero value is the baseline behavior: a seller may buy their own listing
// and category/price are not checked on creation.
type ListingPolicy struct {
	AllowSelfPurchase       bool
	StrictListingValidation bool
}

func NewListingPolicy(allowSelfPurchase, strictValidation bool) ListingPolicy {
	return ListingPolicy{
		AllowSelfPurchase:       allowSelfPurchase,
		StrictListingValidation: strictValidation,
	}
}

// CanDelete: only the seller, only while the listing is active.
func (p ListingPolicy) CanDelete(l *entity.Listing, uid string) bool {
	if l == nil || uid == "" {
		return false
	}
	return l.SellerID == uid && !l.IsSold
}

// CanBuy: any authenticated viewer while the listing is active.
func (p ListingPolicy) CanBuy(l *entity.Listing, uid string) bool {
	if l == nil || uid == "" || l.IsSold {
		return false
	}
	if !p.AllowSelfPurchase && l.SellerID == uid {
		return false
	}
	return true
}

// CanRead: everyone while active, only the seller and buyer once sold.
func (p ListingPolicy) CanRead(l *entity.Listing, uid string) bool {
	if l == nil || uid == "" {
		return false
	}
	if !l.IsSold {
		return true
	}
	return l.IsParticipant(uid)
}

// CanSend uses the same predicate as CanRead.
func (p ListingPolicy) CanSend(l *entity.Listing, uid string) bool {
	return p.CanRead(l, uid)
}

func (p ListingPolicy) Permissions(l *entity.Listing, uid string) entity.Permissions {
	if l == nil {
		return entity.Permissions{}
	}
	return entity.Permissions{
		IsSeller:  uid != "" && l.SellerID == uid,
		IsBuyer:   uid != "" && l.IsSold && l.BuyerID == uid,
		CanBuy:    p.CanBuy(l, uid),
		CanDelete: p.CanDelete(l, uid),
		CanRead:   p.CanRead(l, uid),
		CanSend:   p.CanSend(l, uid),
	}
}

// NewListingInput is what a seller submits. Price is nil when it was not
// provided at all, which differs from an explicit zero.
type NewListingInput struct {
	Name     string
	Price    *int64
	Category entity.Category
	Image    string
}

// ValidateNewListing enforces the creation preconditions: name, price and
// image must be present. Category membership and price sign are only checked
// under StrictListingValidation.
func (p ListingPolicy) ValidateNewListing(in NewListingInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return errors.Validation("name is required", nil)
	}
	if in.Price == nil {
		return errors.Validation("price is required", nil)
	}
	if in.Image == "" {
		return errors.Validation("image is required", nil)
	}
	if p.StrictListingValidation {
		if *in.Price < 0 {
			return errors.Validation("price must not be negative", nil)
		}
		if !in.Category.IsListable() {
			return errors.Validation("category is not one of the listed categories", nil)
		}
	}
	return nil
}

// ValidateMessageText rejects text that is empty after trimming.
func ValidateMessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.Validation("text is required", nil)
	}
	return nil
}

// IsUnread reports whether the newest message from someone else is newer than
// the watermark. A missing watermark is passed as 0 (epoch).
func IsUnread(latestOther time.Time, watermarkMillis int64) bool {
	if latestOther.IsZero() {
		return false
	}
	return latestOther.UnixMilli() > watermarkMillis
}
