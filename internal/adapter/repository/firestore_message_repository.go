package repository

import (
	"context"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"

	"unitrade/internal/domain/entity"
	"unitrade/internal/domain/repository"
	"unitrade/pkg/errors"
	"unitrade/pkg/logger"
)

const (
	messagesCollection = "messages"
	// Firestore caps the value list of an "in" filter at 30.
	maxInFilterValues    = 30
	maxConcurrentLookups = 8
)

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) collection(listingID string) *firestore.CollectionRef {
	return r.client.Collection(ListingsCollection).Doc(listingID).Collection(messagesCollection)
}

func (r *firestoreMessageRepository) Append(ctx context.Context, message *entity.Message) error {
	doc := r.collection(message.ListingID).NewDoc()
	message.ID = doc.ID
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	if _, err := doc.Create(ctx, message); err != nil {
		return errors.StoreUnavailable("Failed to send message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) ListOrdered(ctx context.Context, listingID string) ([]*entity.Message, error) {
	iter := r.collection(listingID).OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.StoreUnavailable("Failed to iterate messages", err)
		}
		if message, ok := decodeMessage(doc, listingID); ok {
			messages = append(messages, message)
		}
	}
	return messages, nil
}

func (r *firestoreMessageRepository) SubscribeOrdered(ctx context.Context, listingID string, fn repository.MessagesFunc) (repository.Unsubscribe, error) {
	q := r.collection(listingID).OrderBy("createdAt", firestore.Asc)
	return watchQuery(ctx, q, func(docs []*firestore.DocumentSnapshot, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		messages := make([]*entity.Message, 0, len(docs))
		for _, doc := range docs {
			if message, ok := decodeMessage(doc, listingID); ok {
				messages = append(messages, message)
			}
		}
		fn(messages, nil)
	}), nil
}

// LatestFromOthers reads each listing's messages newest first and stops at the
// first one written by someone else, so the cost is bounded by the viewer's
// own trailing messages. It works on documents without a listingId field.
func (r *firestoreMessageRepository) LatestFromOthers(ctx context.Context, listingIDs []string, excludeUID string) (map[string]time.Time, error) {
	var (
		mu     sync.Mutex
		latest = make(map[string]time.Time)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for _, id := range listingIDs {
		g.Go(func() error {
			ts, ok, err := r.latestFromOthers(gctx, id, excludeUID)
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			latest[id] = ts
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.StoreUnavailable("Failed to query latest messages", err)
	}
	return latest, nil
}

func (r *firestoreMessageRepository) latestFromOthers(ctx context.Context, listingID, excludeUID string) (time.Time, bool, error) {
	iter := r.collection(listingID).OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return time.Time{}, false, nil
		}
		if err != nil {
			return time.Time{}, false, err
		}
		if message, ok := decodeMessage(doc, listingID); ok && message.SenderUID != excludeUID {
			return message.CreatedAt, true, nil
		}
	}
}

// SubscribeLatestFromOthers starts from LatestFromOthers and then keeps one
// collection-group listener per 30 listing ids that only follows messages
// written after the subscription started. Those are matched on the listingId
// field, which every message appended through this repository carries.
func (r *firestoreMessageRepository) SubscribeLatestFromOthers(ctx context.Context, listingIDs []string, excludeUID string, fn repository.LatestFunc) (repository.Unsubscribe, error) {
	chunks := chunkIDs(listingIDs)
	if len(chunks) == 0 {
		fn(map[string]time.Time{}, nil)
		return func() {}, nil
	}

	since := time.Now()
	seed, err := r.LatestFromOthers(ctx, listingIDs, excludeUID)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		perChunk = make([]map[string]time.Time, len(chunks))
		stops    = make([]repository.Unsubscribe, 0, len(chunks))
	)

	for i, chunk := range chunks {
		stops = append(stops, watchQuery(ctx, r.tailQuery(chunk, since), func(docs []*firestore.DocumentSnapshot, err error) {
			if err != nil {
				fn(nil, err)
				return
			}
			current := make(map[string]time.Time)
			mergeLatest(current, docs, excludeUID)

			mu.Lock()
			perChunk[i] = current
			merged := make(map[string]time.Time, len(seed))
			for id, ts := range seed {
				merged[id] = ts
			}
			for _, m := range perChunk {
				for id, ts := range m {
					if ts.After(merged[id]) {
						merged[id] = ts
					}
				}
			}
			mu.Unlock()

			fn(merged, nil)
		}))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, stop := range stops {
				stop()
			}
		})
	}, nil
}

// tailQuery needs a collection-group index on (listingId ASC, createdAt DESC).
func (r *firestoreMessageRepository) tailQuery(listingIDs []string, since time.Time) firestore.Query {
	return r.client.CollectionGroup(messagesCollection).
		Where("listingId", "in", listingIDs).
		Where("createdAt", ">", since).
		OrderBy("createdAt", firestore.Desc)
}

func mergeLatest(latest map[string]time.Time, docs []*firestore.DocumentSnapshot, excludeUID string) {
	for _, doc := range docs {
		message, ok := decodeMessage(doc, "")
		if !ok || message.SenderUID == excludeUID {
			continue
		}
		if message.CreatedAt.After(latest[message.ListingID]) {
			latest[message.ListingID] = message.CreatedAt
		}
	}
}

func decodeMessage(doc *firestore.DocumentSnapshot, listingID string) (*entity.Message, bool) {
	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		logger.Warn("Skipping malformed message %s: %v", doc.Ref.ID, err)
		return nil, false
	}
	message.ID = doc.Ref.ID
	switch {
	case doc.Ref.Parent != nil && doc.Ref.Parent.Parent != nil:
		message.ListingID = doc.Ref.Parent.Parent.ID
	case message.ListingID == "":
		message.ListingID = listingID
	}
	return &message, true
}

func chunkIDs(ids []string) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += maxInFilterValues {
		end := start + maxInFilterValues
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
