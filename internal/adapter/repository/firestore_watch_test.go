package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"unitrade/pkg/errors"
)

// fakeIterator hands out queued snapshots, then blocks in Next until its
// context ends, the way a Firestore listener waits for changes.
type fakeIterator struct {
	ctx   context.Context
	snaps chan int
	fail  error

	mu      sync.Mutex
	inNext  bool
	overlap bool
	stopped chan struct{}
}

func newFakeIterator(ctx context.Context, snaps ...int) *fakeIterator {
	ch := make(chan int, len(snaps))
	for _, s := range snaps {
		ch <- s
	}
	return &fakeIterator{ctx: ctx, snaps: ch, stopped: make(chan struct{})}
}

func (it *fakeIterator) Next() (int, error) {
	it.mu.Lock()
	it.inNext = true
	it.mu.Unlock()
	defer func() {
		it.mu.Lock()
		it.inNext = false
		it.mu.Unlock()
	}()

	select {
	case s := <-it.snaps:
		return s, nil
	default:
	}
	if it.fail != nil {
		return 0, it.fail
	}
	<-it.ctx.Done()
	return 0, status.Error(codes.Canceled, "context canceled")
}

func (it *fakeIterator) Stop() {
	it.mu.Lock()
	if it.inNext {
		it.overlap = true
	}
	it.mu.Unlock()
	close(it.stopped)
}

func TestListenStopsAfterNextReturns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	it := newFakeIterator(ctx, 1, 2)

	got := make(chan int, 2)
	var failures int
	go listen[int](ctx, it, func(s int) error {
		got <- s
		return nil
	}, func(error) { failures++ })

	assert.Equal(t, 1, <-got)
	assert.Equal(t, 2, <-got)

	cancel()
	select {
	case <-it.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}

	it.mu.Lock()
	defer it.mu.Unlock()
	assert.False(t, it.overlap, "Stop ran while Next was in flight")
	assert.Zero(t, failures, "cancellation is not a failure")
}

func TestListenReportsListenerFailure(t *testing.T) {
	it := newFakeIterator(context.Background())
	it.fail = status.Error(codes.Unavailable, "backend down")

	var reported error
	listen[int](context.Background(), it, func(int) error { return nil }, func(err error) { reported = err })

	require.Error(t, reported)
	assert.True(t, errors.Is(reported, errors.CodeStoreUnavailable))
	<-it.stopped
}
