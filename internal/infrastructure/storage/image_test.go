package storage

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitrade/pkg/errors"
)

// 1x1 transparent PNG
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func TestInlineImageStorage(t *testing.T) {
	s := NewInlineImageStorage(1024)

	url, err := s.UploadImage(context.Background(), bytes.NewReader(tinyPNG), "listings")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"), url)
}

func TestInlineImageStorageRejects(t *testing.T) {
	s := NewInlineImageStorage(16)
	ctx := context.Background()

	_, err := s.UploadImage(ctx, bytes.NewReader(tinyPNG), "listings")
	assert.True(t, errors.Is(err, errors.CodeValidation), "too large")

	s = NewInlineImageStorage(1024)
	_, err = s.UploadImage(ctx, strings.NewReader("plain text, not an image"), "listings")
	assert.True(t, errors.Is(err, errors.CodeValidation), "not an image")

	_, err = s.UploadImage(ctx, bytes.NewReader(nil), "listings")
	assert.True(t, errors.Is(err, errors.CodeValidation), "empty")
}
