package usecase

import (
	"context"
	"io"
	"strings"

	"unitrade/internal/domain/entity"
	"unitrade/pkg/errors"
)

type UserUseCase struct {
	identity IdentityProvider
	images   ImageStorage
}

func NewUserUseCase(identity IdentityProvider, images ImageStorage) *UserUseCase {
	return &UserUseCase{
		identity: identity,
		images:   images,
	}
}

type UpdateProfileInput struct {
	DisplayName *string
	PhotoURL    *string
}

func (uc *UserUseCase) GetProfile(ctx context.Context, session *entity.Session) (*entity.Identity, error) {
	if session.UID() == "" {
		return nil, errors.Unauthorized("Not signed in", nil)
	}
	return uc.identity.GetUser(ctx, session.UID())
}

// UpdateProfile changes the holder's own profile only. Messages already sent
// keep the old name and photo.
func (uc *UserUseCase) UpdateProfile(ctx context.Context, session *entity.Session, input UpdateProfileInput) (*entity.Identity, error) {
	if session.UID() == "" {
		return nil, errors.Unauthorized("Not signed in", nil)
	}
	if input.DisplayName == nil && input.PhotoURL == nil {
		return nil, errors.Validation("Nothing to update", nil)
	}

	update := ProfileUpdate{PhotoURL: input.PhotoURL}
	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name == "" {
			return nil, errors.Validation("display name must not be empty", nil)
		}
		update.DisplayName = &name
	}

	return uc.identity.UpdateProfile(ctx, session.UID(), update)
}

func (uc *UserUseCase) UploadPhoto(ctx context.Context, session *entity.Session, r io.Reader) (*entity.Identity, error) {
	if session.UID() == "" {
		return nil, errors.Unauthorized("Not signed in", nil)
	}

	url, err := uc.images.UploadImage(ctx, r, "profiles/"+session.UID())
	if err != nil {
		return nil, err
	}
	return uc.identity.UpdateProfile(ctx, session.UID(), ProfileUpdate{PhotoURL: &url})
}
