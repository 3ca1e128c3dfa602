package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"unitrade/pkg/errors"
	"unitrade/pkg/logger"
)

type CloudStorageClient struct {
	client     *storage.Client
	bucketName string
	maxBytes   int64
}

func NewCloudStorageClient(ctx context.Context, bucketName, credentialsPath string, maxBytes int64) (*CloudStorageClient, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %v", err)
	}

	storageClient := &CloudStorageClient{
		client:     client,
		bucketName: bucketName,
		maxBytes:   maxBytes,
	}

	if err := storageClient.setBucketCORS(ctx); err != nil {
		logger.Warn("Failed to set CORS configuration: %v", err)
	}

	return storageClient, nil
}

func (c *CloudStorageClient) setBucketCORS(ctx context.Context) error {
	bucket := c.client.Bucket(c.bucketName)

	corsConfig := storage.CORS{
		MaxAge:          3600,
		Methods:         []string{"GET", "HEAD"},
		Origins:         []string{"*"},
		ResponseHeaders: []string{"Content-Type"},
	}

	bucketAttrs, err := bucket.Attrs(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bucket attributes: %v", err)
	}

	if len(bucketAttrs.CORS) == 0 {
		_, err := bucket.Update(ctx, storage.BucketAttrsToUpdate{
			CORS: []storage.CORS{corsConfig},
		})
		if err != nil {
			return fmt.Errorf("failed to update bucket CORS: %v", err)
		}
	}

	return nil
}

// UploadImage stores a sniffed image under folder and returns its public URL.
func (c *CloudStorageClient) UploadImage(ctx context.Context, r io.Reader, folder string) (string, error) {
	data, img, err := readImage(r, c.maxBytes)
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("public/%s/%s-%s%s",
		strings.Trim(folder, "/"), uuid.New().String(), time.Now().Format("20060102150405"), img.Extension())

	obj := c.client.Bucket(c.bucketName).Object(filename)
	wc := obj.NewWriter(ctx)
	wc.ContentType = img.String()
	wc.CacheControl = "public, max-age=86400"

	if _, err := io.Copy(wc, bytes.NewReader(data)); err != nil {
		_ = wc.Close()
		return "", errors.StoreUnavailable("Failed to upload image", err)
	}
	if err := wc.Close(); err != nil {
		return "", errors.StoreUnavailable("Failed to upload image", err)
	}

	if err := obj.ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
		return "", errors.StoreUnavailable("Failed to publish image", err)
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", c.bucketName, filename), nil
}

// DeleteImage removes an image previously returned by UploadImage. References
// that point elsewhere (data URLs, external hosts) are left alone.
func (c *CloudStorageClient) DeleteImage(ctx context.Context, fileURL string) error {
	prefix := "https://storage.googleapis.com/" + c.bucketName + "/"
	if !strings.HasPrefix(fileURL, prefix) {
		return nil
	}

	err := c.client.Bucket(c.bucketName).Object(fileURL[len(prefix):]).Delete(ctx)
	if err != nil && err != storage.ErrObjectNotExist {
		return errors.StoreUnavailable("Failed to delete image", err)
	}
	return nil
}

func (c *CloudStorageClient) Close() error {
	return c.client.Close()
}
