package entity

import (
	"time"
)

// ListingState is the lifecycle state of a listing. Sold is terminal.
type ListingState string

const (
	ListingActive ListingState = "active"
	ListingSold   ListingState = "sold"
)

// Listing is a single item offered for sale. Field names on the wire match the
// documents the web client already writes to the "products" collection.
type Listing struct {
	ID        string    `json:"id" firestore:"-"`
	Name      string    `json:"name" firestore:"name"`
	Price     int64     `json:"price" firestore:"price"`
	Category  Category  `json:"category" firestore:"category"`
	Image     string    `json:"image" firestore:"image"`
	SellerID  string    `json:"seller_id" firestore:"sellerId"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`

	// BuyerID is set if and only if IsSold is true.
	IsSold  bool   `json:"is_sold" firestore:"isSold"`
	BuyerID string `json:"buyer_id,omitempty" firestore:"buyerId,omitempty"`
}

func (l *Listing) State() ListingState {
	if l.IsSold {
		return ListingSold
	}
	return ListingActive
}

// IsParticipant reports whether uid is the seller or the recorded buyer.
func (l *Listing) IsParticipant(uid string) bool {
	if uid == "" {
		return false
	}
	return uid == l.SellerID || (l.IsSold && uid == l.BuyerID)
}

// Clone returns a copy that callers may mutate freely.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
