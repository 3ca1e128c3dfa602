package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"unitrade/internal/domain/entity"
	"unitrade/internal/domain/repository"
	"unitrade/internal/domain/service"
	"unitrade/internal/infrastructure/metrics"
	"unitrade/internal/infrastructure/ratelimit"
	"unitrade/pkg/errors"
	"unitrade/pkg/logger"
)

// ChatUseCase gates the per-listing chat and keeps the unread watermarks.
type ChatUseCase struct {
	listingRepo repository.ListingRepository
	messageRepo repository.MessageRepository
	watermarks  repository.WatermarkStore
	profiles    IdentityProvider
	policy      service.ListingPolicy
	rateLimiter *ratelimit.RateLimiter
	seen        *seenNotifier
	now         func() time.Time
}

func NewChatUseCase(
	listingRepo repository.ListingRepository,
	messageRepo repository.MessageRepository,
	watermarks repository.WatermarkStore,
	profiles IdentityProvider,
	policy service.ListingPolicy,
	rateLimiter *ratelimit.RateLimiter,
) *ChatUseCase {
	return &ChatUseCase{
		listingRepo: listingRepo,
		messageRepo: messageRepo,
		watermarks:  watermarks,
		profiles:    profiles,
		policy:      policy,
		rateLimiter: rateLimiter,
		seen:        newSeenNotifier(),
		now:         time.Now,
	}
}

// OpenChat is the listing detail view. Opening it marks the chat as seen on
// the viewer's device.
func (uc *ChatUseCase) OpenChat(ctx context.Context, session *entity.Session, listingID string) (*entity.ChatView, error) {
	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	view := uc.view(listing, session.UID(), nil)
	if view.Permissions.CanRead {
		messages, err := uc.messageRepo.ListOrdered(ctx, listingID)
		if err != nil {
			return nil, err
		}
		view.Messages = messages
	}

	if err := uc.MarkSeen(ctx, session, listingID); err != nil {
		logger.Warn("Failed to mark listing %s seen: %v", listingID, err)
	}
	return view, nil
}

func (uc *ChatUseCase) Messages(ctx context.Context, session *entity.Session, listingID string) ([]*entity.Message, error) {
	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !uc.policy.CanRead(listing, session.UID()) {
		metrics.PermissionDenied.WithLabelValues("read").Inc()
		return nil, errors.PermissionDenied("Only the buyer and seller can read a sold listing's chat", nil)
	}
	return uc.messageRepo.ListOrdered(ctx, listingID)
}

// Send appends a message with a snapshot of the sender's current profile and
// moves the sender's watermark to the message time.
func (uc *ChatUseCase) Send(ctx context.Context, session *entity.Session, listingID, text string) (*entity.Message, error) {
	uid := session.UID()
	if uid == "" {
		return nil, errors.Unauthorized("Sign in to send messages", nil)
	}
	if err := service.ValidateMessageText(text); err != nil {
		return nil, err
	}

	if uc.rateLimiter != nil {
		if ok, wait := uc.rateLimiter.Allow(uid, ratelimit.ActionSendMessage); !ok {
			logger.Warn("Send rate limited: userID=%s, wait=%v", uid, wait)
			return nil, errors.TooManyRequests("You are sending messages too quickly")
		}
	}

	// Re-read right before the append so a sale that landed since the view
	// was rendered is honored.
	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !uc.policy.CanSend(listing, uid) {
		metrics.PermissionDenied.WithLabelValues("send").Inc()
		logger.Info("Send rejected: listingID=%s, userID=%s", listingID, uid)
		return nil, errors.PermissionDenied("Only the buyer and seller can message about a sold listing", nil)
	}

	profile := uc.currentProfile(ctx, session)
	message := &entity.Message{
		ListingID:         listingID,
		Text:              text,
		CreatedAt:         uc.now(),
		SenderUID:         uid,
		SenderDisplayName: profile.DisplayName,
		SenderPhotoURL:    profile.PhotoURL,
	}

	if err := uc.messageRepo.Append(ctx, message); err != nil {
		logger.Error("Failed to append message to listing %s: %v", listingID, err)
		return nil, err
	}
	metrics.MessagesSent.Inc()

	if err := uc.markSeenAt(ctx, session, listingID, message.Millis()); err != nil {
		logger.Warn("Failed to advance watermark for listing %s: %v", listingID, err)
	}
	return message, nil
}

func (uc *ChatUseCase) currentProfile(ctx context.Context, session *entity.Session) entity.Identity {
	if uc.profiles != nil {
		if fresh, err := uc.profiles.GetUser(ctx, session.UID()); err == nil {
			return *fresh
		}
	}
	return session.Identity
}

// MarkSeen sets the watermark of (user, device, listing) to now.
func (uc *ChatUseCase) MarkSeen(ctx context.Context, session *entity.Session, listingID string) error {
	return uc.markSeenAt(ctx, session, listingID, uc.now().UnixMilli())
}

func (uc *ChatUseCase) markSeenAt(ctx context.Context, session *entity.Session, listingID string, millis int64) error {
	if err := uc.watermarks.Set(ctx, session.UID(), session.Device(), listingID, millis); err != nil {
		return err
	}
	uc.seen.notify(seenKey(session), listingID)
	return nil
}

// ComputeUnread reports whether someone else wrote in a sold listing's chat
// after the viewer last looked at it on this device. Active listings never
// carry the badge.
func (uc *ChatUseCase) ComputeUnread(ctx context.Context, session *entity.Session, listing *entity.Listing) (bool, error) {
	if listing == nil || !listing.IsSold {
		return false, nil
	}
	latest, err := uc.messageRepo.LatestFromOthers(ctx, []string{listing.ID}, session.UID())
	if err != nil {
		return false, err
	}
	return uc.unread(ctx, session, listing.ID, latest)
}

// UnreadForSeller is the seller's dashboard: own listings, newest first, with
// unread flags computed by one aggregated query over the sold ones.
func (uc *ChatUseCase) UnreadForSeller(ctx context.Context, session *entity.Session) ([]*entity.SellerListing, error) {
	uid := session.UID()
	if uid == "" {
		return nil, errors.Unauthorized("Sign in to see your listings", nil)
	}

	listings, err := uc.listingRepo.List(ctx, repository.ListingFilter{SellerID: uid})
	if err != nil {
		return nil, err
	}

	latest, err := uc.messageRepo.LatestFromOthers(ctx, soldIDs(listings), uid)
	if err != nil {
		return nil, err
	}
	return uc.sellerRows(ctx, session, listings, latest)
}

func (uc *ChatUseCase) sellerRows(ctx context.Context, session *entity.Session, listings []*entity.Listing, latest map[string]time.Time) ([]*entity.SellerListing, error) {
	rows := make([]*entity.SellerListing, 0, len(listings))
	for _, l := range listings {
		row := &entity.SellerListing{Listing: l}
		if l.IsSold {
			unread, err := uc.unread(ctx, session, l.ID, latest)
			if err != nil {
				return nil, err
			}
			row.Unread = unread
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (uc *ChatUseCase) unread(ctx context.Context, session *entity.Session, listingID string, latest map[string]time.Time) (bool, error) {
	watermark, _, err := uc.watermarks.Get(ctx, session.UID(), session.Device(), listingID)
	if err != nil {
		return false, err
	}
	return service.IsUnread(latest[listingID], watermark), nil
}

// ChatViewFunc receives the recomputed view after every listing or message
// change. A deleted listing yields a view with NotFound set.
type ChatViewFunc func(view *entity.ChatView, err error)

// WatchChat follows one listing and its messages. Access is recomputed on every
// update, so a viewer who loses access stops receiving messages at once.
// fn is called with the watch's lock held and must not call back into it.
func (uc *ChatUseCase) WatchChat(ctx context.Context, session *entity.Session, listingID string, fn ChatViewFunc) (repository.Unsubscribe, error) {
	w := &chatWatch{uc: uc, uid: session.UID(), fn: fn}

	listingUnsub, err := uc.listingRepo.SubscribeOne(ctx, listingID, w.onListing)
	if err != nil {
		return nil, err
	}
	messageUnsub, err := uc.messageRepo.SubscribeOrdered(ctx, listingID, w.onMessages)
	if err != nil {
		listingUnsub()
		return nil, err
	}

	return tracked("chat", w.close, listingUnsub, messageUnsub), nil
}

type chatWatch struct {
	uc  *ChatUseCase
	uid string
	fn  ChatViewFunc

	mu           sync.Mutex
	closed       bool
	listingKnown bool
	listing      *entity.Listing
	messages     []*entity.Message
}

func (w *chatWatch) onListing(listing *entity.Listing, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if err != nil {
		w.fn(nil, err)
		return
	}
	w.listingKnown = true
	w.listing = listing
	w.emitLocked()
}

func (w *chatWatch) onMessages(messages []*entity.Message, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if err != nil {
		w.fn(nil, err)
		return
	}
	w.messages = messages
	if w.listingKnown {
		w.emitLocked()
	}
}

func (w *chatWatch) emitLocked() {
	if w.listing == nil {
		w.fn(&entity.ChatView{NotFound: true}, nil)
		return
	}
	w.fn(w.uc.view(w.listing, w.uid, w.messages), nil)
}

func (w *chatWatch) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

func (uc *ChatUseCase) view(listing *entity.Listing, uid string, messages []*entity.Message) *entity.ChatView {
	view := &entity.ChatView{
		Listing:     listing,
		Permissions: uc.policy.Permissions(listing, uid),
		Messages:    []*entity.Message{},
	}
	if view.Permissions.CanRead && messages != nil {
		view.Messages = messages
	}
	return view
}

// SellerListingsFunc receives the seller's dashboard rows with unread flags.
type SellerListingsFunc func(rows []*entity.SellerListing, err error)

// WatchUnread keeps the seller's dashboard live. It holds one aggregated
// latest-message subscription over the sold listings and replaces it whenever
// that set changes. A MarkSeen from the same device re-evaluates the flags.
func (uc *ChatUseCase) WatchUnread(ctx context.Context, session *entity.Session, fn SellerListingsFunc) (repository.Unsubscribe, error) {
	uid := session.UID()
	if uid == "" {
		return nil, errors.Unauthorized("Sign in to see your listings", nil)
	}

	w := &unreadWatch{ctx: ctx, uc: uc, session: session, fn: fn, latest: map[string]time.Time{}}

	seenUnsub := uc.seen.subscribe(seenKey(session), w.onSeen)
	listingUnsub, err := uc.listingRepo.Subscribe(ctx, repository.ListingFilter{SellerID: uid}, w.onListings)
	if err != nil {
		seenUnsub()
		return nil, err
	}

	return tracked("unread", seenUnsub, w.close, listingUnsub), nil
}

type unreadWatch struct {
	ctx     context.Context
	uc      *ChatUseCase
	session *entity.Session
	fn      SellerListingsFunc

	mu          sync.Mutex
	closed      bool
	listings    []*entity.Listing
	listingsSet bool
	latest      map[string]time.Time
	soldKey     string
	generation  int
	latestUnsub repository.Unsubscribe
}

func (w *unreadWatch) onListings(listings []*entity.Listing, err error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if err != nil {
		w.fn(nil, err)
		w.mu.Unlock()
		return
	}

	w.listings = listings
	w.listingsSet = true
	ids := soldIDs(listings)
	key := strings.Join(ids, ",")

	if key == w.soldKey && w.latestUnsub != nil {
		w.emitLocked()
		w.mu.Unlock()
		return
	}

	old := w.latestUnsub
	w.latestUnsub = nil
	w.soldKey = key
	w.generation++
	generation := w.generation
	w.emitLocked()
	w.mu.Unlock()

	if old != nil {
		old()
	}

	// The store may deliver the first result before returning, so the lock
	// is not held here.
	unsub, err := w.uc.messageRepo.SubscribeLatestFromOthers(w.ctx, ids, w.session.UID(), func(latest map[string]time.Time, err error) {
		w.onLatest(generation, latest, err)
	})
	if err != nil {
		w.mu.Lock()
		if !w.closed {
			w.fn(nil, err)
		}
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	if w.closed || w.generation != generation {
		w.mu.Unlock()
		unsub()
		return
	}
	w.latestUnsub = unsub
	w.mu.Unlock()
}

func (w *unreadWatch) onLatest(generation int, latest map[string]time.Time, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.generation != generation {
		return
	}
	if err != nil {
		w.fn(nil, err)
		return
	}
	w.latest = latest
	w.emitLocked()
}

func (w *unreadWatch) onSeen(string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || !w.listingsSet {
		return
	}
	w.emitLocked()
}

func (w *unreadWatch) emitLocked() {
	rows, err := w.uc.sellerRows(w.ctx, w.session, w.listings, w.latest)
	w.fn(rows, err)
}

func (w *unreadWatch) close() {
	w.mu.Lock()
	w.closed = true
	unsub := w.latestUnsub
	w.latestUnsub = nil
	w.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// soldIDs returns the ids of sold listings in a stable order.
func soldIDs(listings []*entity.Listing) []string {
	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		if l.IsSold {
			ids = append(ids, l.ID)
		}
	}
	sort.Strings(ids)
	return ids
}
