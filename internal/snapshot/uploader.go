// Package snapshot publishes namespace snapshots to S3-compatible storage.
// With no bucket configured the NoopUploader keeps snapshots local only.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/goalboard/internal/config"
)

// ErrNotConfigured is returned when snapshot storage is not configured.
var ErrNotConfigured = errors.New("snapshot storage not configured")

// Uploader publishes snapshots and hands out download links.
type Uploader interface {
	// Upload stores the snapshot file of namespace app.
	Upload(ctx context.Context, app string, filePath string) error

	// PresignedURL returns a time-limited download URL for app's snapshot.
	PresignedURL(ctx context.Context, app string) (url string, expiry time.Time, err error)
}

// s3Client is the subset of *minio.Client used here.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string, opts minio.PutObjectOptions) error
	PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error)
}

type minioClient struct {
	client *minio.Client
}

func (c minioClient) FPutObject(ctx context.Context, bucket, objectName, filePath string, opts minio.PutObjectOptions) error {
	_, err := c.client.FPutObject(ctx, bucket, objectName, filePath, opts)
	return err
}

func (c minioClient) PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error) {
	return c.client.PresignedGetObject(ctx, bucket, objectName, expiry, nil)
}

// S3Uploader uploads snapshots to an S3-compatible bucket.
type S3Uploader struct {
	client    s3Client
	bucket    string
	urlExpiry time.Duration
}

// Upload puts the SQLite snapshot at filePath under app's object key.
func (u *S3Uploader) Upload(ctx context.Context, app string, filePath string) error {
	opts := minio.PutObjectOptions{
		ContentType:  "application/vnd.sqlite3",
		UserMetadata: map[string]string{"namespace": app},
	}
	if err := u.client.FPutObject(ctx, u.bucket, objectKey(app), filePath, opts); err != nil {
		return fmt.Errorf("upload snapshot to S3: %w", err)
	}
	return nil
}

// PresignedURL returns a pre-signed GET URL for app's snapshot.
func (u *S3Uploader) PresignedURL(ctx context.Context, app string) (string, time.Time, error) {
	presigned, err := u.client.PresignedGetObject(ctx, u.bucket, objectKey(app), u.urlExpiry)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate pre-signed URL: %w", err)
	}
	return presigned.String(), time.Now().Add(u.urlExpiry), nil
}

// NoopUploader is used when snapshot storage is not configured.
type NoopUploader struct{}

// Upload does nothing.
func (NoopUploader) Upload(context.Context, string, string) error {
	return nil
}

// PresignedURL always returns ErrNotConfigured.
func (NoopUploader) PresignedURL(context.Context, string) (string, time.Time, error) {
	return "", time.Time{}, ErrNotConfigured
}

// NewUploader returns a NoopUploader when cfg has no bucket and an
// S3Uploader otherwise. UseSSL defaults to true; a scheme on the endpoint
// overrides it.
func NewUploader(cfg config.SnapshotStorageConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}
	endpoint := stripScheme(cfg.Endpoint, &useSSL)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	expiry := time.Duration(cfg.URLExpiry)
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &S3Uploader{
		client:    minioClient{client: client},
		bucket:    cfg.Bucket,
		urlExpiry: expiry,
	}, nil
}

// stripScheme removes an http:// or https:// prefix from endpoint, which
// minio.New rejects, and sets useSSL to match it.
func stripScheme(endpoint string, useSSL *bool) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		*useSSL = true
		return strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		*useSSL = false
		return strings.TrimPrefix(endpoint, "http://")
	}
	return endpoint
}

// objectKey is {app}/snapshot/current.db.
func objectKey(app string) string {
	return app + "/snapshot/current.db"
}
