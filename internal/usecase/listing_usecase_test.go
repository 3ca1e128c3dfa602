package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitrade/internal/domain/entity"
	"unitrade/internal/domain/service"
	"unitrade/internal/infrastructure/ratelimit"
	"unitrade/pkg/errors"
)

func TestCreateAndListByCategory(t *testing.T) {
	f := newFixture(t, baseline())
	ctx := context.Background()
	seller := sessionOf("s1", "s1-laptop")

	fridge := f.createFridge(t, seller)
	assert.False(t, fridge.IsSold)
	assert.Empty(t, fridge.BuyerID)
	assert.Equal(t, "s1", fridge.SellerID)

	fridges, err := f.listingUC.List(ctx, entity.CategoryFridge)
	require.NoError(t, err)
	require.Len(t, fridges, 1)
	assert.Equal(t, fridge.ID, fridges[0].ID)

	food, err := f.listingUC.List(ctx, entity.CategoryFood)
	require.NoError(t, err)
	assert.Empty(t, food)

	all, err := f.listingUC.List(ctx, entity.CategoryAll)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	unfiltered, err := f.listingUC.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, unfiltered, 1)
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t, baseline())
	seller := sessionOf("s1", "d")

	first := f.createFridge(t, seller)
	second := f.createFridge(t, seller)

	all, err := f.listingUC.List(context.Background(), entity.CategoryAll)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, baseline())
	ctx := context.Background()
	seller := sessionOf("s1", "d")

	cases := []struct {
		name  string
		input CreateListingInput
	}{
		{"missing name", CreateListingInput{Name: "  ", Price: price(100), Image: "img"}},
		{"missing price", CreateListingInput{Name: "Desk", Image: "img"}},
		{"missing image", CreateListingInput{Name: "Desk", Price: price(100)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.listingUC.Create(ctx, seller, tc.input)
			assert.True(t, errors.Is(err, errors.CodeValidation), "got %v", err)
		})
	}

	all, err := f.listingUC.List(ctx, entity.CategoryAll)
	require.NoError(t, err)
	assert.Empty(t, all, "nothing is stored when validation fails")

	_, err = f.listingUC.Create(ctx, nil, CreateListingInput{Name: "Desk", Price: price(1), Image: "img"})
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))
}

func TestCreateBaselineAcceptsNegativePriceAndUnknownCategory(t *testing.T) {
	f := newFixture(t, baseline())
	l, err := f.listingUC.Create(context.Background(), sessionOf("s1", "d"), CreateListingInput{
		Name: "Mystery", Price: price(-5), Category: "家具", Image: "img",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-5), l.Price)
}

func TestCreateStrictValidation(t *testing.T) {
	f := newFixture(t, service.NewListingPolicy(true, true))
	ctx := context.Background()
	seller := sessionOf("s1", "d")

	_, err := f.listingUC.Create(ctx, seller, CreateListingInput{Name: "X", Price: price(-1), Category: entity.CategoryFood, Image: "img"})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, err = f.listingUC.Create(ctx, seller, CreateListingInput{Name: "X", Price: price(1), Category: entity.CategoryAll, Image: "img"})
	assert.True(t, errors.Is(err, errors.CodeValidation), "the all filter is not a listable category")
}

func TestCreateDefaultsCategoryAndUploadsFile(t *testing.T) {
	f := newFixture(t, baseline())
	l, err := f.listingUC.Create(context.Background(), sessionOf("s1", "d"), CreateListingInput{
		Name:      "Rice cooker",
		Price:     price(1500),
		ImageFile: strings.NewReader("png bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, entity.CategoryOther, l.Category)
	assert.Equal(t, "https://images.test/listings/s1/img.png", l.Image)
	assert.Equal(t, 1, f.images.uploads)
}

func TestBuyThenDeleteIsRejected(t *testing.T) {
	f := newFixture(t, baseline())
	ctx := context.Background()
	seller := sessionOf("s1", "s1-laptop")
	buyer := sessionOf("b1", "b1-phone")
	fridge := f.createFridge(t, seller)

	sold, err := f.listingUC.Buy(ctx, buyer, fridge.ID, true)
	require.NoError(t, err)
	assert.True(t, sold.IsSold)
	assert.Equal(t, "b1", sold.BuyerID)

	err = f.listingUC.Delete(ctx, seller, fridge.ID)
	assert.True(t, errors.Is(err, errors.CodePermissionDenied))

	stored, err := f.listingUC.Get(ctx, fridge.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsSold)
	assert.Equal(t, "b1", stored.BuyerID)
}

func TestSoldIsTerminal(t *testing.T) {
	f := newFixture(t, baseline())
	ctx := context.Background()
	fridge := f.createFridge(t, sessionOf("s1", "d"))

	_, err := f.listingUC.Buy(ctx, sessionOf("b1", "d"), fridge.ID, true)
	require.NoError(t, err)

	_, err = f.listingUC.Buy(ctx, sessionOf("b2", "d"), fridge.ID, true)
	assert.True(t, errors.Is(err, errors.CodePermissionDenied))

	stored, err := f.listingUC.Get(ctx, fridge.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsSold)
	assert.Equal(t, "b1", stored.BuyerID, "the first buyer stays recorded")
}

func TestBuyRequiresConfirmation(t *testing.T) {
	f := newFixture(t, baseline())
	fridge := f.createFridge(t, sessionOf("s1", "d"))

	_, err := f.listingUC.Buy(context.Background(), sessionOf("b1", "d"), fridge.ID, false)
	assert.True(t, errors.Is(err, errors.CodeValidation))

	stored, err := f.listingUC.Get(context.Background(), fridge.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsSold)
}

func TestBuyMissingListing(t *testing.T) {
	f := newFixture(t, baseline())
	_, err := f.listingUC.Buy(context.Background(), sessionOf("b1", "d"), "nope", true)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestSelfPurchase(t *testing.T) {
	ctx := context.Background()
	seller := sessionOf("s1", "d")

	f := newFixture(t, baseline())
	fridge := f.createFridge(t, seller)
	sold, err := f.listingUC.Buy(ctx, seller, fridge.ID, true)
	require.NoError(t, err, "baseline lets a seller buy their own listing")
	assert.Equal(t, "s1", sold.BuyerID)

	f = newFixture(t, service.NewListingPolicy(false, false))
	fridge = f.createFridge(t, seller)
	_, err = f.listingUC.Buy(ctx, seller, fridge.ID, true)
	assert.True(t, errors.Is(err, errors.CodePermissionDenied))
}

func TestConcurrentBuyHasExactlyOneWinner(t *testing.T) {
	f := newFixture(t, baseline())
	ctx := context.Background()
	fridge := f.createFridge(t, sessionOf("s1", "d"))

	const buyers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		denied  int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := "buyer-" + string(rune('a'+i))
			_, err := f.listingUC.Buy(ctx, sessionOf(uid, "d"), fridge.ID, true)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, uid)
			} else if errors.Is(err, errors.CodePermissionDenied) {
				denied++
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, buyers-1, denied)

	stored, err := f.listingUC.Get(ctx, fridge.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], stored.BuyerID)
}

func TestDeleteGuard(t *testing.T) {
	f := newFixture(t, baseline())
	ctx := context.Background()
	seller := sessionOf("s1", "d")
	fridge := f.createFridge(t, seller)

	err := f.listingUC.Delete(ctx, sessionOf("v", "d"), fridge.ID)
	assert.True(t, errors.Is(err, errors.CodePermissionDenied))
	_, err = f.listingUC.Get(ctx, fridge.ID)
	require.NoError(t, err, "a rejected delete leaves the listing in place")

	require.NoError(t, f.listingUC.Delete(ctx, seller, fridge.ID))
	_, err = f.listingUC.Get(ctx, fridge.ID)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
	assert.Equal(t, []string{fridge.Image}, f.images.deleted)
}

func TestListBySeller(t *testing.T) {
	f := newFixture(t, baseline())
	ctx := context.Background()
	f.createFridge(t, sessionOf("s1", "d"))
	f.createFridge(t, sessionOf("s2", "d"))

	mine, err := f.listingUC.ListBySeller(ctx, sessionOf("s1", "d"))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "s1", mine[0].SellerID)
}

func TestWatchListingsIsLiveAndIndependent(t *testing.T) {
	f := newFixture(t, baseline())
	ctx := context.Background()
	seller := sessionOf("s1", "d")

	var fridgeSets, foodSets [][]*entity.Listing
	unsubFridge, err := f.listingUC.WatchListings(ctx, entity.CategoryFridge, func(ls []*entity.Listing, err error) {
		require.NoError(t, err)
		fridgeSets = append(fridgeSets, ls)
	})
	require.NoError(t, err)
	unsubFood, err := f.listingUC.WatchListings(ctx, entity.CategoryFood, func(ls []*entity.Listing, err error) {
		require.NoError(t, err)
		foodSets = append(foodSets, ls)
	})
	require.NoError(t, err)
	defer unsubFood()

	require.Len(t, fridgeSets, 1, "initial snapshot")
	assert.Empty(t, fridgeSets[0])

	fridge := f.createFridge(t, seller)
	last := fridgeSets[len(fridgeSets)-1]
	require.Len(t, last, 1)
	assert.Equal(t, fridge.ID, last[0].ID)
	assert.Empty(t, foodSets[len(foodSets)-1])

	_, err = f.listingUC.Buy(ctx, sessionOf("b1", "d"), fridge.ID, true)
	require.NoError(t, err)
	assert.True(t, fridgeSets[len(fridgeSets)-1][0].IsSold)

	unsubFridge()
	unsubFridge()
	seen := len(fridgeSets)
	foodSeen := len(foodSets)
	f.createFridge(t, seller)
	assert.Len(t, fridgeSets, seen, "released watch gets nothing")
	assert.Greater(t, len(foodSets), foodSeen, "other watch keeps running")
}

func TestCreateRateLimited(t *testing.T) {
	f := newFixture(t, baseline())
	f.listingUC.rateLimiter = ratelimit.NewRateLimiterWithPolicies(map[string]ratelimit.Policy{
		ratelimit.ActionCreateListing: {Burst: 1, Every: time.Hour},
	})
	seller := sessionOf("s1", "d")
	f.createFridge(t, seller)

	_, err := f.listingUC.Create(context.Background(), seller, CreateListingInput{Name: "Again", Price: price(1), Image: "img"})
	assert.True(t, errors.Is(err, errors.CodeTooManyRequests))
}
