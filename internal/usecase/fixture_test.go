package usecase

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"unitrade/internal/adapter/repository"
	"unitrade/internal/domain/entity"
	domainrepo "unitrade/internal/domain/repository"
	"unitrade/internal/domain/service"
	"unitrade/internal/infrastructure/watermark"
	"unitrade/pkg/errors"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

type fakeIdentity struct {
	mu    sync.Mutex
	users map[string]*entity.Identity
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{users: make(map[string]*entity.Identity)}
}

func (f *fakeIdentity) add(identity entity.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[identity.UID] = &identity
}

func (f *fakeIdentity) CreateUser(ctx context.Context, email, password, displayName string) (*entity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return nil, errors.Validation("Email already in use", nil)
		}
	}
	identity := &entity.Identity{UID: "uid-" + email, Email: email, DisplayName: displayName}
	f.users[identity.UID] = identity
	c := *identity
	return &c, nil
}

func (f *fakeIdentity) SignIn(ctx context.Context, email, password string) (string, *entity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email && password != "wrong" {
			c := *u
			return "token-" + u.UID, &c, nil
		}
	}
	return "", nil, errors.Unauthorized("Invalid credentials", nil)
}

func (f *fakeIdentity) VerifyToken(ctx context.Context, token string) (*entity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if token == "token-"+u.UID {
			c := *u
			return &c, nil
		}
	}
	return nil, errors.Unauthorized("Invalid or expired token", nil)
}

func (f *fakeIdentity) GetUser(ctx context.Context, uid string) (*entity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uid]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	c := *u
	return &c, nil
}

func (f *fakeIdentity) UpdateProfile(ctx context.Context, uid string, update ProfileUpdate) (*entity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uid]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	if update.DisplayName != nil {
		u.DisplayName = *update.DisplayName
	}
	if update.PhotoURL != nil {
		u.PhotoURL = *update.PhotoURL
	}
	c := *u
	return &c, nil
}

func (f *fakeIdentity) RevokeSessions(ctx context.Context, uid string) error {
	return nil
}

type fakeImages struct {
	uploads int
	deleted []string
}

func (f *fakeImages) UploadImage(ctx context.Context, r io.Reader, folder string) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	f.uploads++
	return "https://images.test/" + folder + "/img.png", nil
}

func (f *fakeImages) DeleteImage(ctx context.Context, ref string) error {
	f.deleted = append(f.deleted, ref)
	return nil
}

type fixture struct {
	clock      *testClock
	listings   domainrepo.ListingRepository
	messages   domainrepo.MessageRepository
	watermarks domainrepo.WatermarkStore
	identity   *fakeIdentity
	images     *fakeImages
	listingUC  *ListingUseCase
	chatUC     *ChatUseCase
}

func newFixture(t *testing.T, policy service.ListingPolicy) *fixture {
	t.Helper()
	f := &fixture{
		clock:      newTestClock(),
		listings:   repository.NewMemoryListingRepository(),
		messages:   repository.NewMemoryMessageRepository(),
		watermarks: watermark.NewMemoryStore(),
		identity:   newFakeIdentity(),
		images:     &fakeImages{},
	}
	f.listingUC = NewListingUseCase(f.listings, f.images, policy, nil)
	f.listingUC.now = f.clock.now
	f.chatUC = NewChatUseCase(f.listings, f.messages, f.watermarks, f.identity, policy, nil)
	f.chatUC.now = f.clock.now
	return f
}

func baseline() service.ListingPolicy {
	return service.NewListingPolicy(true, false)
}

func sessionOf(uid, device string) *entity.Session {
	return &entity.Session{
		Identity: entity.Identity{UID: uid, DisplayName: uid},
		DeviceID: device,
	}
}

func price(v int64) *int64 { return &v }

// createFridge is scenario A's listing, created by seller.
func (f *fixture) createFridge(t *testing.T, seller *entity.Session) *entity.Listing {
	t.Helper()
	f.clock.advance(time.Second)
	l, err := f.listingUC.Create(context.Background(), seller, CreateListingInput{
		Name:     "Fridge",
		Price:    price(3000),
		Category: entity.CategoryFridge,
		Image:    "data:image/png;base64,AAAA",
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l
}

func identityOf(uid, name string) entity.Identity {
	return entity.Identity{UID: uid, DisplayName: name, Email: uid + "@s.kyushu-u.ac.jp"}
}
