package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"unitrade/internal/domain/repository"
	"unitrade/pkg/errors"
	"unitrade/pkg/logger"
)

// snapshotIterator is satisfied by both firestore.QuerySnapshotIterator and
// firestore.DocumentSnapshotIterator. Stop must not run concurrently with Next.
type snapshotIterator[T any] interface {
	Next() (T, error)
	Stop()
}

// listen drains it until the context is cancelled or the listener fails, then
// stops it from the same goroutine.
func listen[T any](ctx context.Context, it snapshotIterator[T], handle func(T) error, fail func(error)) {
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err != nil {
			if !isWatchStopped(ctx, err) {
				fail(errors.StoreUnavailable("Realtime listener failed", err))
			}
			return
		}
		if err := handle(snap); err != nil {
			if !isWatchStopped(ctx, err) {
				fail(err)
			}
			return
		}
	}
}

// watchQuery runs a Firestore snapshot listener on its own goroutine and hands
// every result set to fn. The returned Unsubscribe cancels only this listener;
// it does not wait for the goroutine, so it may be called from inside fn.
func watchQuery(ctx context.Context, q firestore.Query, fn func([]*firestore.DocumentSnapshot, error)) repository.Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	it := q.Snapshots(ctx)

	go listen[*firestore.QuerySnapshot](ctx, it, func(snap *firestore.QuerySnapshot) error {
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return errors.StoreUnavailable("Failed to read snapshot", err)
		}
		fn(docs, nil)
		return nil
	}, func(err error) {
		logger.Warn("Firestore query listener stopped: %v", err)
		fn(nil, err)
	})

	return repository.Unsubscribe(cancel)
}

func watchDocument(ctx context.Context, ref *firestore.DocumentRef, fn func(*firestore.DocumentSnapshot, error)) repository.Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	it := ref.Snapshots(ctx)

	go listen[*firestore.DocumentSnapshot](ctx, it, func(snap *firestore.DocumentSnapshot) error {
		fn(snap, nil)
		return nil
	}, func(err error) {
		logger.Warn("Firestore document listener for %s stopped: %v", ref.ID, err)
		fn(nil, err)
	})

	return repository.Unsubscribe(cancel)
}

func isWatchStopped(ctx context.Context, err error) bool {
	if err == iterator.Done || ctx.Err() != nil {
		return true
	}
	return status.Code(err) == codes.Canceled
}
