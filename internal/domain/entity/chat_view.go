package entity

// Permissions is what a viewer may do with a listing in its current state.
type Permissions struct {
	IsSeller  bool `json:"is_seller"`
	IsBuyer   bool `json:"is_buyer"`
	CanBuy    bool `json:"can_buy"`
	CanDelete bool `json:"can_delete"`
	CanRead   bool `json:"can_read"`
	CanSend   bool `json:"can_send"`
}

// ChatView is the listing detail as one viewer sees it. Messages is empty
// whenever Permissions.CanRead is false.
type ChatView struct {
	Listing     *Listing    `json:"listing,omitempty"`
	Permissions Permissions `json:"permissions"`
	Messages    []*Message  `json:"messages"`
	NotFound    bool        `json:"not_found,omitempty"`
}

// SellerListing is a row of the seller's own-listings dashboard.
type SellerListing struct {
	*Listing
	Unread bool `json:"unread"`
}
