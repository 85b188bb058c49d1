// Package storage uploads chat images to S3-compatible object storage.
//
// The Uploader interface decouples the chat/image handlers from MinIO so
// tests can substitute a fake. When storage credentials are absent the
// constructor returns ErrNotConfigured and the HTTP layer answers image
// uploads with a distinct 503 code instead of failing at startup.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lshimizu/invoice-chat-backend/internal/config"
)

// ErrNotConfigured indicates object storage credentials/bucket are absent.
var ErrNotConfigured = errors.New("object storage not configured")

// ErrUnsupportedType indicates a content type outside the image allowlist.
var ErrUnsupportedType = errors.New("unsupported image content type")

// Uploader stores image bytes and returns a publicly reachable URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType, filename string) (string, error)
}

// extByType maps allow-listed image MIME types to file extensions.
var extByType = map[string]string{
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

// AllowedType reports whether contentType is an accepted image type.
func AllowedType(contentType string) bool {
	_, ok := extByType[contentType]
	return ok
}

// MinioUploader implements Uploader against MinIO/S3-compatible storage.
type MinioUploader struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
	now           func() time.Time
}

// NewMinioUploader connects to the configured endpoint and ensures the
// bucket exists. Returns ErrNotConfigured when the config is incomplete.
func NewMinioUploader(cfg config.StorageConfig) (*MinioUploader, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioUploader{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		now:           time.Now,
	}, nil
}

// Upload stores the image under chat-images/YYYY/MM/DD/{uuid8}{ext} and
// returns its public URL.
func (u *MinioUploader) Upload(ctx context.Context, data []byte, contentType, filename string) (string, error) {
	ext, ok := extByType[contentType]
	if !ok {
		// fall back to the original filename's extension
		if i := strings.LastIndex(filename, "."); i >= 0 {
			ext = strings.ToLower(filename[i:])
		} else {
			return "", ErrUnsupportedType
		}
	}

	key := fmt.Sprintf("chat-images/%s/%s%s",
		u.now().UTC().Format("2006/01/02"),
		uuid.NewString()[:8],
		ext)

	_, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return u.publicURL(key), nil
}

func (u *MinioUploader) publicURL(key string) string {
	if u.publicBaseURL != "" {
		return u.publicBaseURL + "/" + key
	}
	scheme := "https"
	if !u.client.EndpointURL().IsAbs() || u.client.EndpointURL().Scheme == "http" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, u.client.EndpointURL().Host, u.bucket, key)
}
