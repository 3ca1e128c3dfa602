package storage

import (
	"context"
	"encoding/base64"
	"io"

	"github.com/gabriel-vasile/mimetype"

	"unitrade/pkg/errors"
)

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// readImage reads at most maxBytes and checks the content is an image we serve.
func readImage(r io.Reader, maxBytes int64) ([]byte, *mimetype.MIME, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, nil, errors.Validation("Failed to read image", err)
	}
	if len(data) == 0 {
		return nil, nil, errors.Validation("Image is empty", nil)
	}
	if int64(len(data)) > maxBytes {
		return nil, nil, errors.Validation("Image is too large", nil)
	}

	img := mimetype.Detect(data)
	if !mimetype.EqualsAny(img.String(), allowedImageTypes...) {
		return nil, nil, errors.Validation("Unsupported image type "+img.String(), nil)
	}
	return data, img, nil
}

// InlineImageStorage encodes images as data URLs stored directly on the
// document, as the web client did before a bucket was configured.
type InlineImageStorage struct {
	maxBytes int64
}

func NewInlineImageStorage(maxBytes int64) *InlineImageStorage {
	return &InlineImageStorage{maxBytes: maxBytes}
}

func (s *InlineImageStorage) UploadImage(ctx context.Context, r io.Reader, folder string) (string, error) {
	data, img, err := readImage(r, s.maxBytes)
	if err != nil {
		return "", err
	}
	return "data:" + img.String() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// DeleteImage is a no-op: the image goes away with its document.
func (s *InlineImageStorage) DeleteImage(ctx context.Context, ref string) error {
	return nil
}
