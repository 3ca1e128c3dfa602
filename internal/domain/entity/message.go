package entity

import "time"

// Message is one chat line under a listing. Messages are append-only.
// SenderDisplayName and SenderPhotoURL are a snapshot of the sender's profile
// at send time and are never refreshed.
type Message struct {
	ID                string    `json:"id" firestore:"-"`
	ListingID         string    `json:"listing_id" firestore:"listingId"`
	Text              string    `json:"text" firestore:"text"`
	CreatedAt         time.Time `json:"created_at" firestore:"createdAt"`
	SenderUID         string    `json:"sender_uid" firestore:"uid"`
	SenderDisplayName string    `json:"sender_display_name" firestore:"sender"`
	SenderPhotoURL    string    `json:"sender_photo_url,omitempty" firestore:"senderPhoto"`
}

// Millis is the message timestamp in epoch milliseconds, the unit the unread
// watermark is stored in.
func (m *Message) Millis() int64 {
	return m.CreatedAt.UnixMilli()
}
