package usecase

import (
	"context"
	"strings"

	passwordvalidator "github.com/wagslane/go-password-validator"

	"unitrade/internal/domain/entity"
	"unitrade/pkg/errors"
	"unitrade/pkg/logger"
)

type AuthUseCase struct {
	identity           IdentityProvider
	allowedEmailDomain string
	minPasswordEntropy float64
}

func NewAuthUseCase(identity IdentityProvider, allowedEmailDomain string, minPasswordEntropy float64) *AuthUseCase {
	return &AuthUseCase{
		identity:           identity,
		allowedEmailDomain: allowedEmailDomain,
		minPasswordEntropy: minPasswordEntropy,
	}
}

type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
}

type AuthResult struct {
	Identity *entity.Identity `json:"user"`
	Token    string           `json:"token"`
}

// SignUp is restricted to the campus email domain.
func (uc *AuthUseCase) SignUp(ctx context.Context, input SignUpInput) (*AuthResult, error) {
	email := strings.TrimSpace(input.Email)
	if !uc.AllowedEmail(email) {
		return nil, errors.Validation("Sign-up requires a "+uc.allowedEmailDomain+" address", nil)
	}
	if input.Password == "" {
		return nil, errors.Validation("password is required", nil)
	}
	if uc.minPasswordEntropy > 0 {
		if err := passwordvalidator.Validate(input.Password, uc.minPasswordEntropy); err != nil {
			return nil, errors.Validation(err.Error(), err)
		}
	}

	identity, err := uc.identity.CreateUser(ctx, email, input.Password, strings.TrimSpace(input.DisplayName))
	if err != nil {
		logger.Warn("Sign-up failed for %s: %v", email, err)
		return nil, err
	}
	logger.Info("User signed up: uid=%s", identity.UID)

	token, signedIn, err := uc.identity.SignIn(ctx, email, input.Password)
	if err != nil {
		return nil, err
	}
	if signedIn != nil {
		identity = signedIn
	}
	return &AuthResult{Identity: identity, Token: token}, nil
}

// AllowedEmail compares the domain suffix case-insensitively. The configured
// domain always matches from the "@", so "s.kyushu-u.ac.jp" does not admit
// "evil-s.kyushu-u.ac.jp".
func (uc *AuthUseCase) AllowedEmail(email string) bool {
	if uc.allowedEmailDomain == "" {
		return email != ""
	}
	email = strings.ToLower(email)
	domain := strings.ToLower(uc.allowedEmailDomain)
	if !strings.HasPrefix(domain, "@") {
		domain = "@" + domain
	}
	return strings.HasSuffix(email, domain) && len(email) > len(domain)
}

func (uc *AuthUseCase) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, errors.Validation("email and password are required", nil)
	}

	token, identity, err := uc.identity.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		logger.Debug("Sign-in failed for %s: %v", email, err)
		return nil, err
	}
	return &AuthResult{Identity: identity, Token: token}, nil
}

// Authenticate verifies an ID token and builds the explicit session that every
// other use-case call takes.
func (uc *AuthUseCase) Authenticate(ctx context.Context, token, deviceID string) (*entity.Session, error) {
	if token == "" {
		return nil, errors.Unauthorized("Missing token", nil)
	}
	identity, err := uc.identity.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &entity.Session{Identity: *identity, DeviceID: deviceID}, nil
}

// SignOut revokes every token of the session holder.
func (uc *AuthUseCase) SignOut(ctx context.Context, session *entity.Session) error {
	if session.UID() == "" {
		return errors.Unauthorized("Not signed in", nil)
	}
	if err := uc.identity.RevokeSessions(ctx, session.UID()); err != nil {
		return err
	}
	logger.Info("User signed out: uid=%s", session.UID())
	return nil
}
