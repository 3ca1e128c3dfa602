package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitrade/internal/domain/entity"
	"unitrade/internal/domain/repository"
	"unitrade/pkg/errors"
)

func newListing(name string, category entity.Category, seller string, at time.Time) *entity.Listing {
	return &entity.Listing{Name: name, Price: 100, Category: category, SellerID: seller, CreatedAt: at}
}

func TestMemoryListingQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryListingRepository()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newListing("old fridge", entity.CategoryFridge, "s1", base)))
	require.NoError(t, repo.Create(ctx, newListing("rice", entity.CategoryFood, "s2", base.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, newListing("new fridge", entity.CategoryFridge, "s2", base.Add(2*time.Minute))))

	all, err := repo.List(ctx, repository.ListingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new fridge", all[0].Name)
	assert.Equal(t, "old fridge", all[2].Name)

	fridges, err := repo.List(ctx, repository.ListingFilter{Category: entity.CategoryFridge})
	require.NoError(t, err)
	assert.Len(t, fridges, 2)

	mine, err := repo.List(ctx, repository.ListingFilter{SellerID: "s2"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	mine[0].Name = "mutated"
	again, err := repo.GetByID(ctx, mine[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.Name)
}

func TestMemoryMarkSoldIsConditional(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryListingRepository()
	l := newListing("desk", entity.CategoryOther, "s1", time.Now())
	require.NoError(t, repo.Create(ctx, l))

	sold, err := repo.MarkSold(ctx, l.ID, "b1")
	require.NoError(t, err)
	assert.True(t, sold.IsSold)
	assert.Equal(t, "b1", sold.BuyerID)

	_, err = repo.MarkSold(ctx, l.ID, "b2")
	assert.True(t, errors.Is(err, errors.CodePermissionDenied))

	stored, err := repo.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "b1", stored.BuyerID)

	assert.True(t, errors.Is(repo.DeleteActive(ctx, l.ID, "s1"), errors.CodePermissionDenied))

	_, err = repo.MarkSold(ctx, "missing", "b1")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestMemoryDeleteActiveOwnerOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryListingRepository()
	l := newListing("chair", entity.CategoryOther, "s1", time.Now())
	require.NoError(t, repo.Create(ctx, l))

	assert.True(t, errors.Is(repo.DeleteActive(ctx, l.ID, "s2"), errors.CodePermissionDenied))
	require.NoError(t, repo.DeleteActive(ctx, l.ID, "s1"))

	_, err := repo.GetByID(ctx, l.ID)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestMemoryListingSubscriptions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryListingRepository()

	var food, fridges [][]*entity.Listing
	unsubFood, err := repo.Subscribe(ctx, repository.ListingFilter{Category: entity.CategoryFood}, func(ls []*entity.Listing, err error) {
		require.NoError(t, err)
		food = append(food, ls)
	})
	require.NoError(t, err)
	unsubFridges, err := repo.Subscribe(ctx, repository.ListingFilter{Category: entity.CategoryFridge}, func(ls []*entity.Listing, err error) {
		require.NoError(t, err)
		fridges = append(fridges, ls)
	})
	require.NoError(t, err)
	defer unsubFridges()

	require.Len(t, food, 1, "initial snapshot")
	assert.Empty(t, food[0])

	l := newListing("fridge", entity.CategoryFridge, "s1", time.Now())
	require.NoError(t, repo.Create(ctx, l))
	assert.Len(t, fridges[len(fridges)-1], 1)

	var one []*entity.Listing
	unsubOne, err := repo.SubscribeOne(ctx, l.ID, func(got *entity.Listing, err error) {
		require.NoError(t, err)
		one = append(one, got)
	})
	require.NoError(t, err)
	defer unsubOne()

	unsubFood()
	unsubFood()
	before := len(food)

	_, err = repo.MarkSold(ctx, l.ID, "b1")
	require.NoError(t, err)
	assert.Equal(t, before, len(food), "released subscriptions stay quiet")
	assert.True(t, one[len(one)-1].IsSold)
	assert.True(t, fridges[len(fridges)-1][0].IsSold)
}

func TestMemorySubscribeOneSeesDeletion(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryListingRepository()
	l := newListing("kettle", entity.CategoryOther, "s1", time.Now())
	require.NoError(t, repo.Create(ctx, l))

	var last *entity.Listing
	calls := 0
	unsub, err := repo.SubscribeOne(ctx, l.ID, func(got *entity.Listing, err error) {
		require.NoError(t, err)
		last = got
		calls++
	})
	require.NoError(t, err)
	defer unsub()
	require.NotNil(t, last)

	require.NoError(t, repo.DeleteActive(ctx, l.ID, "s1"))
	assert.Equal(t, 2, calls)
	assert.Nil(t, last)
}

func TestMemoryMessages(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMessageRepository()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	var ordered [][]*entity.Message
	unsub, err := repo.SubscribeOrdered(ctx, "l1", func(ms []*entity.Message, err error) {
		require.NoError(t, err)
		ordered = append(ordered, ms)
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, repo.Append(ctx, &entity.Message{ListingID: "l1", Text: "b", SenderUID: "buyer", CreatedAt: base.Add(2 * time.Second)}))
	require.NoError(t, repo.Append(ctx, &entity.Message{ListingID: "l1", Text: "a", SenderUID: "seller", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, repo.Append(ctx, &entity.Message{ListingID: "l2", Text: "x", SenderUID: "buyer", CreatedAt: base.Add(3 * time.Second)}))

	require.Len(t, ordered, 3, "l2 traffic is not delivered to the l1 subscription")
	latest := ordered[len(ordered)-1]
	require.Len(t, latest, 2)
	assert.Equal(t, "a", latest[0].Text)
	assert.Equal(t, "b", latest[1].Text)
	assert.NotEmpty(t, latest[0].ID)

	fromOthers, err := repo.LatestFromOthers(ctx, []string{"l1", "l2", "l3"}, "seller")
	require.NoError(t, err)
	assert.Equal(t, base.Add(2*time.Second), fromOthers["l1"])
	assert.Equal(t, base.Add(3*time.Second), fromOthers["l2"])
	_, ok := fromOthers["l3"]
	assert.False(t, ok)

	fromOthers, err = repo.LatestFromOthers(ctx, []string{"l1"}, "buyer")
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Second), fromOthers["l1"])
}

func TestMemorySubscribeLatestFromOthers(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMessageRepository()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	var got []map[string]time.Time
	unsub, err := repo.SubscribeLatestFromOthers(ctx, []string{"l1"}, "seller", func(latest map[string]time.Time, err error) {
		require.NoError(t, err)
		got = append(got, latest)
	})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Empty(t, got[0])

	require.NoError(t, repo.Append(ctx, &entity.Message{ListingID: "l1", SenderUID: "seller", CreatedAt: base}))
	assert.Empty(t, got[len(got)-1], "own messages are excluded")

	require.NoError(t, repo.Append(ctx, &entity.Message{ListingID: "l1", SenderUID: "buyer", CreatedAt: base.Add(time.Minute)}))
	assert.Equal(t, base.Add(time.Minute), got[len(got)-1]["l1"])

	unsub()
	calls := len(got)
	require.NoError(t, repo.Append(ctx, &entity.Message{ListingID: "l1", SenderUID: "buyer", CreatedAt: base.Add(2 * time.Minute)}))
	assert.Equal(t, calls, len(got))
}

func TestChunkIDs(t *testing.T) {
	ids := make([]string, 65)
	for i := range ids {
		ids[i] = string(rune('a' + i%26))
	}
	chunks := chunkIDs(ids)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 30)
	assert.Len(t, chunks[2], 5)
	assert.Nil(t, chunkIDs(nil))
}
