package usecase

import (
	"sync"

	"unitrade/internal/domain/entity"
	"unitrade/internal/domain/repository"
	"unitrade/internal/infrastructure/metrics"
)

// tracked combines the store-level releases of one logical subscription into
// a single idempotent Unsubscribe and keeps the active-subscription gauge.
func tracked(kind string, releases ...repository.Unsubscribe) repository.Unsubscribe {
	done := metrics.TrackSubscription(kind)
	var once sync.Once
	return func() {
		once.Do(func() {
			for _, release := range releases {
				if release != nil {
					release()
				}
			}
			done()
		})
	}
}

// seenNotifier tells the unread watchers of one user's device that one of its
// watermarks moved, so a badge clears without waiting for a new message.
// Watches are keyed by seenKey.
type seenNotifier struct {
	mu      sync.Mutex
	next    int
	watches map[string]map[int]func(listingID string)
}

func seenKey(session *entity.Session) string {
	return session.UID() + "/" + session.Device()
}

func newSeenNotifier() *seenNotifier {
	return &seenNotifier{watches: make(map[string]map[int]func(string))}
}

func (n *seenNotifier) subscribe(key string, fn func(listingID string)) repository.Unsubscribe {
	n.mu.Lock()
	id := n.next
	n.next++
	if n.watches[key] == nil {
		n.watches[key] = make(map[int]func(string))
	}
	n.watches[key][id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.watches[key], id)
		if len(n.watches[key]) == 0 {
			delete(n.watches, key)
		}
	}
}

func (n *seenNotifier) notify(key, listingID string) {
	n.mu.Lock()
	fns := make([]func(string), 0, len(n.watches[key]))
	for _, fn := range n.watches[key] {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(listingID)
	}
}
