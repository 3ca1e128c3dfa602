package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"unitrade/internal/domain/entity"
	"unitrade/internal/domain/repository"
)

type memoryMessageRepository struct {
	mu       sync.Mutex
	messages map[string][]*entity.Message
	subs     map[int]*messageSubscription
	nextSub  int

	deliverMu sync.Mutex
}

type messageSubscription struct {
	listingID string
	ordered   repository.MessagesFunc

	listingIDs map[string]struct{}
	excludeUID string
	latest     repository.LatestFunc
}

func (s *messageSubscription) covers(listingID string) bool {
	if s.ordered != nil {
		return s.listingID == listingID
	}
	_, ok := s.listingIDs[listingID]
	return ok
}

func NewMemoryMessageRepository() repository.MessageRepository {
	return &memoryMessageRepository{
		messages: make(map[string][]*entity.Message),
		subs:     make(map[int]*messageSubscription),
	}
}

func (r *memoryMessageRepository) Append(ctx context.Context, message *entity.Message) error {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	stored := *message

	r.mu.Lock()
	r.messages[message.ListingID] = append(r.messages[message.ListingID], &stored)
	var pending notifications
	for _, sub := range r.subs {
		if sub.covers(message.ListingID) {
			pending = append(pending, r.snapshotLocked(sub))
		}
	}
	r.mu.Unlock()

	pending.deliver()
	return nil
}

func (r *memoryMessageRepository) ListOrdered(ctx context.Context, listingID string) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orderedLocked(listingID), nil
}

func (r *memoryMessageRepository) SubscribeOrdered(ctx context.Context, listingID string, fn repository.MessagesFunc) (repository.Unsubscribe, error) {
	return r.subscribe(&messageSubscription{listingID: listingID, ordered: fn})
}

func (r *memoryMessageRepository) LatestFromOthers(ctx context.Context, listingIDs []string, excludeUID string) (map[string]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latestLocked(toSet(listingIDs), excludeUID), nil
}

func (r *memoryMessageRepository) SubscribeLatestFromOthers(ctx context.Context, listingIDs []string, excludeUID string, fn repository.LatestFunc) (repository.Unsubscribe, error) {
	return r.subscribe(&messageSubscription{listingIDs: toSet(listingIDs), excludeUID: excludeUID, latest: fn})
}

func (r *memoryMessageRepository) subscribe(sub *messageSubscription) (repository.Unsubscribe, error) {
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

func (r *memoryMessageRepository) snapshotLocked(sub *messageSubscription) func() {
	if sub.ordered != nil {
		msgs := r.orderedLocked(sub.listingID)
		fn := sub.ordered
		return func() { fn(msgs, nil) }
	}
	latest := r.latestLocked(sub.listingIDs, sub.excludeUID)
	fn := sub.latest
	return func() { fn(latest, nil) }
}

func (r *memoryMessageRepository) orderedLocked(listingID string) []*entity.Message {
	src := r.messages[listingID]
	out := make([]*entity.Message, len(src))
	for i, m := range src {
		c := *m
		out[i] = &c
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *memoryMessageRepository) latestLocked(ids map[string]struct{}, excludeUID string) map[string]time.Time {
	latest := make(map[string]time.Time)
	for id := range ids {
		for _, m := range r.messages[id] {
			if m.SenderUID == excludeUID {
				continue
			}
			if m.CreatedAt.After(latest[id]) {
				latest[id] = m.CreatedAt
			}
		}
	}
	return latest
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
