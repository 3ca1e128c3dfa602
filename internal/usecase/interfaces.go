package usecase

import (
	"context"
	"io"

	"unitrade/internal/domain/entity"
)

// IdentityProvider is the external authentication service. Tokens are opaque
// ID tokens; Verify turns one back into the identity it was issued for.
type IdentityProvider interface {
	CreateUser(ctx context.Context, email, password, displayName string) (*entity.Identity, error)
	SignIn(ctx context.Context, email, password string) (string, *entity.Identity, error)
	VerifyToken(ctx context.Context, token string) (*entity.Identity, error)
	GetUser(ctx context.Context, uid string) (*entity.Identity, error)
	UpdateProfile(ctx context.Context, uid string, update ProfileUpdate) (*entity.Identity, error)
	RevokeSessions(ctx context.Context, uid string) error
}

// ProfileUpdate carries the optional profile fields; nil leaves a field as is.
type ProfileUpdate struct {
	DisplayName *string
	PhotoURL    *string
}

// ImageStorage turns uploaded image bytes into the opaque image reference
// stored on listings and profiles.
type ImageStorage interface {
	UploadImage(ctx context.Context, r io.Reader, folder string) (string, error)
	DeleteImage(ctx context.Context, ref string) error
}
