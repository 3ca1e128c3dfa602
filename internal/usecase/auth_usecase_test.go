package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitrade/pkg/errors"
)

func TestSignUpDomainRestriction(t *testing.T) {
	ctx := context.Background()
	uc := NewAuthUseCase(newFakeIdentity(), "@s.kyushu-u.ac.jp", 0)

	_, err := uc.SignUp(ctx, SignUpInput{Email: "taro@gmail.com", Password: "pw", DisplayName: "Taro"})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, err = uc.SignUp(ctx, SignUpInput{Email: "@s.kyushu-u.ac.jp", Password: "pw"})
	assert.True(t, errors.Is(err, errors.CodeValidation), "the bare domain is not an address")

	res, err := uc.SignUp(ctx, SignUpInput{Email: " taro@S.Kyushu-U.ac.jp ", Password: "pw", DisplayName: "Taro"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "Taro", res.Identity.DisplayName)
}

func TestAllowedEmailAnchorsDomain(t *testing.T) {
	uc := NewAuthUseCase(newFakeIdentity(), "s.kyushu-u.ac.jp", 0)

	assert.True(t, uc.AllowedEmail("taro@s.kyushu-u.ac.jp"))
	assert.False(t, uc.AllowedEmail("x@evil-s.kyushu-u.ac.jp"))
	assert.False(t, uc.AllowedEmail("x@mail.s.kyushu-u.ac.jp"))
}

func TestSignUpPasswordEntropy(t *testing.T) {
	uc := NewAuthUseCase(newFakeIdentity(), "@s.kyushu-u.ac.jp", 50)

	_, err := uc.SignUp(context.Background(), SignUpInput{Email: "a@s.kyushu-u.ac.jp", Password: "password"})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, err = uc.SignUp(context.Background(), SignUpInput{Email: "a@s.kyushu-u.ac.jp", Password: "c0rrect-H0rse-battery-staple!"})
	assert.NoError(t, err)
}

func TestSignInAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	identity := newFakeIdentity()
	uc := NewAuthUseCase(identity, "@s.kyushu-u.ac.jp", 0)

	_, err := uc.SignUp(ctx, SignUpInput{Email: "b@s.kyushu-u.ac.jp", Password: "pw", DisplayName: "B"})
	require.NoError(t, err)

	_, err = uc.SignIn(ctx, "b@s.kyushu-u.ac.jp", "wrong")
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))

	_, err = uc.SignIn(ctx, "", "pw")
	assert.True(t, errors.Is(err, errors.CodeValidation))

	res, err := uc.SignIn(ctx, "b@s.kyushu-u.ac.jp", "pw")
	require.NoError(t, err)

	session, err := uc.Authenticate(ctx, res.Token, "laptop")
	require.NoError(t, err)
	assert.Equal(t, res.Identity.UID, session.UID())
	assert.Equal(t, "laptop", session.Device())

	_, err = uc.Authenticate(ctx, "", "laptop")
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))

	require.NoError(t, uc.SignOut(ctx, session))
	assert.True(t, errors.Is(uc.SignOut(ctx, nil), errors.CodeUnauthorized))
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	identity := newFakeIdentity()
	images := &fakeImages{}
	identity.add(identityOf("u1", "Old"))
	uc := NewUserUseCase(identity, images)
	session := sessionOf("u1", "d")

	_, err := uc.UpdateProfile(ctx, session, UpdateProfileInput{})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	blank := "   "
	_, err = uc.UpdateProfile(ctx, session, UpdateProfileInput{DisplayName: &blank})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	name := "  New Name "
	updated, err := uc.UpdateProfile(ctx, session, UpdateProfileInput{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.DisplayName)

	updated, err = uc.UploadPhoto(ctx, session, strings.NewReader("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "https://images.test/profiles/u1/img.png", updated.PhotoURL)

	me, err := uc.GetProfile(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, "New Name", me.DisplayName)

	_, err = uc.GetProfile(ctx, nil)
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))
}
