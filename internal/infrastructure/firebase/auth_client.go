package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"firebase.google.com/go/v4/auth"

	"unitrade/internal/domain/entity"
	"unitrade/internal/usecase"
	"unitrade/pkg/errors"
	"unitrade/pkg/logger"
)

const identityToolkitURL = "https://identitytoolkit.googleapis.com/v1"

type FirebaseAuthClient struct {
	client     *auth.Client
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

func NewFirebaseAuthClient(client *auth.Client, apiKey string) *FirebaseAuthClient {
	baseURL := identityToolkitURL
	if host := os.Getenv("FIREBASE_AUTH_EMULATOR_HOST"); host != "" {
		baseURL = "http://" + host + "/identitytoolkit.googleapis.com/v1"
	}
	return &FirebaseAuthClient{
		client:     client,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
	}
}

var _ usecase.IdentityProvider = (*FirebaseAuthClient)(nil)

func (f *FirebaseAuthClient) CreateUser(ctx context.Context, email, password, displayName string) (*entity.Identity, error) {
	params := (&auth.UserToCreate{}).
		Email(email).
		Password(password).
		DisplayName(displayName)

	user, err := f.client.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return nil, errors.Validation("Email already in use", err)
		}
		return nil, errors.StoreUnavailable("Failed to create user", err)
	}
	return toIdentity(user.UserInfo), nil
}

type signInResponse struct {
	IDToken     string `json:"idToken"`
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type identityToolkitError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn exchanges email and password for an ID token through the Identity
// Toolkit REST API. The Admin SDK cannot verify passwords.
func (f *FirebaseAuthClient) SignIn(ctx context.Context, email, password string) (string, *entity.Identity, error) {
	if f.apiKey == "" {
		return "", nil, errors.StoreUnavailable("Password sign-in is not configured", nil)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return "", nil, errors.Internal("Failed to encode sign-in request", err)
	}

	url := fmt.Sprintf("%s/accounts:signInWithPassword?key=%s", f.baseURL, f.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", nil, errors.Internal("Failed to build sign-in request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", nil, errors.StoreUnavailable("Identity provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr identityToolkitError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		logger.Debug("Sign-in rejected: status=%d, message=%s", resp.StatusCode, apiErr.Error.Message)
		if resp.StatusCode == http.StatusBadRequest {
			return "", nil, errors.Unauthorized("Invalid credentials", fmt.Errorf("%s", apiErr.Error.Message))
		}
		return "", nil, errors.StoreUnavailable("Identity provider error", fmt.Errorf("status %d", resp.StatusCode))
	}

	var out signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", nil, errors.StoreUnavailable("Failed to decode sign-in response", err)
	}

	identity, err := f.GetUser(ctx, out.LocalID)
	if err != nil {
		identity = &entity.Identity{UID: out.LocalID, Email: out.Email, DisplayName: out.DisplayName}
	}
	return out.IDToken, identity, nil
}

// VerifyToken also rejects tokens issued before the last sign-out.
func (f *FirebaseAuthClient) VerifyToken(ctx context.Context, token string) (*entity.Identity, error) {
	result, err := f.client.VerifyIDTokenAndCheckRevoked(ctx, token)
	if err != nil {
		return nil, errors.Unauthorized("Invalid or expired token", err)
	}

	identity := &entity.Identity{UID: result.UID}
	if v, ok := result.Claims["name"].(string); ok {
		identity.DisplayName = v
	}
	if v, ok := result.Claims["picture"].(string); ok {
		identity.PhotoURL = v
	}
	if v, ok := result.Claims["email"].(string); ok {
		identity.Email = v
	}
	return identity, nil
}

func (f *FirebaseAuthClient) GetUser(ctx context.Context, uid string) (*entity.Identity, error) {
	user, err := f.client.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, errors.NotFound("User", err)
		}
		return nil, errors.StoreUnavailable("Failed to get user", err)
	}
	return toIdentity(user.UserInfo), nil
}

func (f *FirebaseAuthClient) UpdateProfile(ctx context.Context, uid string, update usecase.ProfileUpdate) (*entity.Identity, error) {
	params := &auth.UserToUpdate{}
	if update.DisplayName != nil {
		params = params.DisplayName(*update.DisplayName)
	}
	if update.PhotoURL != nil {
		params = params.PhotoURL(*update.PhotoURL)
	}

	user, err := f.client.UpdateUser(ctx, uid, params)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, errors.NotFound("User", err)
		}
		return nil, errors.StoreUnavailable("Failed to update profile", err)
	}
	return toIdentity(user.UserInfo), nil
}

func (f *FirebaseAuthClient) RevokeSessions(ctx context.Context, uid string) error {
	if err := f.client.RevokeRefreshTokens(ctx, uid); err != nil {
		return errors.StoreUnavailable("Failed to sign out", err)
	}
	return nil
}

func toIdentity(info *auth.UserInfo) *entity.Identity {
	if info == nil {
		return &entity.Identity{}
	}
	return &entity.Identity{
		UID:         info.UID,
		DisplayName: info.DisplayName,
		PhotoURL:    info.PhotoURL,
		Email:       info.Email,
	}
}
