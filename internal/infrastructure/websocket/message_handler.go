package websocket

import (
	"encoding/json"
	"strings"

	"unitrade/internal/domain/entity"
	"unitrade/pkg/errors"
	"unitrade/pkg/logger"
)

// Client to server frame types.
const (
	MessageTypePing            = "ping"
	MessageTypeWatchListings   = "watch_listings"
	MessageTypeWatchMyListings = "watch_my_listings"
	MessageTypeWatchListing    = "watch_listing"
	MessageTypeWatchUnread     = "watch_unread"
	MessageTypeUnwatch         = "unwatch"
	MessageTypeSendMessage     = "send_message"
	MessageTypeMarkSeen        = "mark_seen"
)

// Server to client frame types.
const (
	MessageTypePong        = "pong"
	MessageTypeListings    = "listings"
	MessageTypeMyListings  = "my_listings"
	MessageTypeChat        = "chat"
	MessageTypeUnread      = "unread"
	MessageTypeMessageSent = "message_sent"
	MessageTypeError       = "error"
)

// inFrame is what clients send. Key names the subscription a watch frame
// creates; it defaults per type so a client can replace a watch by re-sending.
type inFrame struct {
	Type string          `json:"type"`
	Key  string          `json:"key,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Type      string      `json:"type"`
	Key       string      `json:"key,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type watchListingsData struct {
	Category entity.Category `json:"category"`
}

type listingData struct {
	ListingID string `json:"listing_id"`
}

type unwatchData struct {
	Key string `json:"key"`
}

type sendMessageData struct {
	ListingID string `json:"listing_id"`
	Text      string `json:"text"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HandleClientMessage processes one incoming frame.
func (m *Manager) HandleClientMessage(client *Client, messageBytes []byte) {
	var frame inFrame
	if err := json.Unmarshal(messageBytes, &frame); err != nil {
		logger.Debug("WebSocket: bad frame from %s: %v", client.Session.UID(), err)
		client.pushError("", errors.Validation("Invalid message format", err))
		return
	}

	switch frame.Type {
	case MessageTypePing:
		client.push(outFrame{Type: MessageTypePong, Key: frame.Key})

	case MessageTypeWatchListings:
		m.handleWatchListings(client, frame)

	case MessageTypeWatchMyListings:
		m.handleWatchMyListings(client, frame)

	case MessageTypeWatchListing:
		m.handleWatchListing(client, frame)

	case MessageTypeWatchUnread:
		m.handleWatchUnread(client, frame)

	case MessageTypeUnwatch:
		m.handleUnwatch(client, frame)

	case MessageTypeSendMessage:
		m.handleSendMessage(client, frame)

	case MessageTypeMarkSeen:
		m.handleMarkSeen(client, frame)

	default:
		logger.Debug("WebSocket: unknown frame type %q from %s", frame.Type, client.Session.UID())
		client.pushError(frame.Key, errors.Validation("Unknown message type", nil))
	}
}

func (m *Manager) handleWatchListings(client *Client, frame inFrame) {
	var data watchListingsData
	if !decode(client, frame, &data) {
		return
	}
	if !data.Category.IsAll() && !data.Category.IsListable() {
		client.pushError(frame.Key, errors.Validation("unknown category", nil))
		return
	}
	key := keyOr(frame.Key, "listings")

	unsub, err := m.listings.WatchListings(client.ctx, data.Category, func(listings []*entity.Listing, err error) {
		if err != nil {
			client.pushError(key, err)
			return
		}
		client.push(outFrame{Type: MessageTypeListings, Key: key, Data: listings})
	})
	if err != nil {
		client.pushError(key, err)
		return
	}
	client.Watch(key, unsub)
}

func (m *Manager) handleWatchMyListings(client *Client, frame inFrame) {
	key := keyOr(frame.Key, "my_listings")

	unsub, err := m.listings.WatchSellerListings(client.ctx, client.Session, func(listings []*entity.Listing, err error) {
		if err != nil {
			client.pushError(key, err)
			return
		}
		client.push(outFrame{Type: MessageTypeMyListings, Key: key, Data: listings})
	})
	if err != nil {
		client.pushError(key, err)
		return
	}
	client.Watch(key, unsub)
}

// handleWatchListing follows a listing's detail view and marks it seen, the
// same as opening it over HTTP.
func (m *Manager) handleWatchListing(client *Client, frame inFrame) {
	var data listingData
	if !decode(client, frame, &data) {
		return
	}
	if data.ListingID == "" {
		client.pushError(frame.Key, errors.Validation("listing_id is required", nil))
		return
	}
	key := keyOr(frame.Key, "chat:"+data.ListingID)

	unsub, err := m.chat.WatchChat(client.ctx, client.Session, data.ListingID, func(view *entity.ChatView, err error) {
		if err != nil {
			client.pushError(key, err)
			return
		}
		client.push(outFrame{Type: MessageTypeChat, Key: key, Data: view})
	})
	if err != nil {
		client.pushError(key, err)
		return
	}
	client.Watch(key, unsub)

	if err := m.chat.MarkSeen(client.ctx, client.Session, data.ListingID); err != nil {
		logger.Warn("WebSocket: failed to mark %s seen: %v", data.ListingID, err)
	}
}

func (m *Manager) handleWatchUnread(client *Client, frame inFrame) {
	key := keyOr(frame.Key, "unread")

	unsub, err := m.chat.WatchUnread(client.ctx, client.Session, func(rows []*entity.SellerListing, err error) {
		if err != nil {
			client.pushError(key, err)
			return
		}
		client.push(outFrame{Type: MessageTypeUnread, Key: key, Data: rows})
	})
	if err != nil {
		client.pushError(key, err)
		return
	}
	client.Watch(key, unsub)
}

// handleUnwatch takes the key from the frame or from data.key.
func (m *Manager) handleUnwatch(client *Client, frame inFrame) {
	key := frame.Key
	if key == "" {
		var data unwatchData
		if !decode(client, frame, &data) {
			return
		}
		key = data.Key
	}
	if !client.Unwatch(key) {
		client.pushError(key, errors.NotFound("Subscription", nil))
	}
}

func (m *Manager) handleSendMessage(client *Client, frame inFrame) {
	var data sendMessageData
	if !decode(client, frame, &data) {
		return
	}

	message, err := m.chat.Send(client.ctx, client.Session, data.ListingID, data.Text)
	if err != nil {
		client.pushError(frame.Key, err)
		return
	}
	client.push(outFrame{Type: MessageTypeMessageSent, Key: frame.Key, Data: message})
}

func (m *Manager) handleMarkSeen(client *Client, frame inFrame) {
	var data listingData
	if !decode(client, frame, &data) {
		return
	}
	if data.ListingID == "" {
		client.pushError(frame.Key, errors.Validation("listing_id is required", nil))
		return
	}
	if err := m.chat.MarkSeen(client.ctx, client.Session, data.ListingID); err != nil {
		client.pushError(frame.Key, err)
	}
}

func decode(client *Client, frame inFrame, v interface{}) bool {
	if len(frame.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		client.pushError(frame.Key, errors.Validation("Invalid "+frame.Type+" data", err))
		return false
	}
	return true
}

func keyOr(key, fallback string) string {
	if k := strings.TrimSpace(key); k != "" {
		return k
	}
	return fallback
}

func (c *Client) pushError(key string, err error) {
	data := errorData{Code: errors.CodeInternal, Message: "An unexpected error occurred"}
	if appErr, ok := errors.As(err); ok {
		data = errorData{Code: appErr.Code, Message: appErr.Message}
	} else {
		logger.Error("WebSocket: unexpected error for %s: %v", c.Session.UID(), err)
	}
	c.push(outFrame{Type: MessageTypeError, Key: key, Data: data})
}
