package firebase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"unitrade/internal/domain/entity"
	"unitrade/internal/usecase"
	"unitrade/pkg/errors"
)

const localTokenTTL = time.Hour

// LocalAuthClient stands in for Firebase Auth when AUTH_DRIVER=local. Users
// live in memory and ID tokens are HS256 JWTs carrying the same claims Firebase
// puts in its tokens (sub, name, picture, email).
type LocalAuthClient struct {
	secret []byte
	now    func() time.Time

	mu      sync.RWMutex
	users   map[string]*localUser
	byEmail map[string]string
}

type localUser struct {
	identity     entity.Identity
	passwordHash []byte
	// generation is bumped on sign-out; tokens of older generations are rejected.
	generation int
}

type localClaims struct {
	Name       string `json:"name,omitempty"`
	Picture    string `json:"picture,omitempty"`
	Email      string `json:"email,omitempty"`
	Generation int    `json:"gen"`
	jwt.RegisteredClaims
}

func NewLocalAuthClient(secret string) *LocalAuthClient {
	return &LocalAuthClient{
		secret:  []byte(secret),
		now:     time.Now,
		users:   make(map[string]*localUser),
		byEmail: make(map[string]string),
	}
}

var _ usecase.IdentityProvider = (*LocalAuthClient)(nil)

func (l *LocalAuthClient) CreateUser(ctx context.Context, email, password, displayName string) (*entity.Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Validation("Password cannot be used", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := strings.ToLower(email)
	if _, exists := l.byEmail[key]; exists {
		return nil, errors.Validation("Email already in use", nil)
	}

	u := &localUser{
		identity: entity.Identity{
			UID:         uuid.New().String(),
			DisplayName: displayName,
			Email:       email,
		},
		passwordHash: hash,
	}
	l.users[u.identity.UID] = u
	l.byEmail[key] = u.identity.UID

	identity := u.identity
	return &identity, nil
}

func (l *LocalAuthClient) SignIn(ctx context.Context, email, password string) (string, *entity.Identity, error) {
	l.mu.RLock()
	uid, ok := l.byEmail[strings.ToLower(email)]
	var u *localUser
	if ok {
		u = l.users[uid]
	}
	l.mu.RUnlock()

	if u == nil || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)) != nil {
		return "", nil, errors.Unauthorized("Invalid credentials", nil)
	}

	l.mu.RLock()
	identity, generation := u.identity, u.generation
	l.mu.RUnlock()

	token, err := l.issue(identity, generation)
	if err != nil {
		return "", nil, err
	}
	return token, &identity, nil
}

// IssueToken signs a token for an existing user without a password check.
func (l *LocalAuthClient) IssueToken(uid string) (string, error) {
	l.mu.RLock()
	u, ok := l.users[uid]
	var (
		identity   entity.Identity
		generation int
	)
	if ok {
		identity, generation = u.identity, u.generation
	}
	l.mu.RUnlock()
	if !ok {
		return "", errors.NotFound("User", nil)
	}
	return l.issue(identity, generation)
}

func (l *LocalAuthClient) issue(identity entity.Identity, generation int) (string, error) {
	now := l.now()
	claims := localClaims{
		Name:       identity.DisplayName,
		Picture:    identity.PhotoURL,
		Email:      identity.Email,
		Generation: generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(localTokenTTL)),
			ID:        uuid.New().String(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return "", errors.Internal("Failed to sign token", err)
	}
	return token, nil
}

func (l *LocalAuthClient) VerifyToken(ctx context.Context, token string) (*entity.Identity, error) {
	var claims localClaims
	parser := jwt.Parser{}
	_, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return l.secret, nil
	})
	if err != nil {
		return nil, errors.Unauthorized("Invalid or expired token", err)
	}

	l.mu.RLock()
	u, ok := l.users[claims.Subject]
	current := ok && u.generation == claims.Generation
	l.mu.RUnlock()
	if !current {
		return nil, errors.Unauthorized("Token has been revoked", nil)
	}

	return &entity.Identity{
		UID:         claims.Subject,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
		Email:       claims.Email,
	}, nil
}

func (l *LocalAuthClient) GetUser(ctx context.Context, uid string) (*entity.Identity, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	u, ok := l.users[uid]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	identity := u.identity
	return &identity, nil
}

func (l *LocalAuthClient) UpdateProfile(ctx context.Context, uid string, update usecase.ProfileUpdate) (*entity.Identity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[uid]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	if update.DisplayName != nil {
		u.identity.DisplayName = *update.DisplayName
	}
	if update.PhotoURL != nil {
		u.identity.PhotoURL = *update.PhotoURL
	}
	identity := u.identity
	return &identity, nil
}

// RevokeSessions invalidates every token issued so far for uid.
func (l *LocalAuthClient) RevokeSessions(ctx context.Context, uid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[uid]
	if !ok {
		return errors.NotFound("User", nil)
	}
	u.generation++
	return nil
}
