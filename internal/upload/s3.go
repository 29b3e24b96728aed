// Package upload sends profile and cover images to S3 compatible object
// storage. Every Upload removes the local temporary file, whatever the
// outcome.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/iliyamo/user-auth-service/internal/config"
)

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

type objectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Uploader puts images into one bucket and returns their public URL.
type S3Uploader struct {
	client  objectStore
	bucket  string
	baseURL string
}

// NewS3Uploader builds a client from static credentials. A non-empty
// Endpoint (MinIO and friends) switches to path-style addressing.
func NewS3Uploader(ctx context.Context, cfg config.StorageConfig) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("upload: S3_BUCKET is empty")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("upload: aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Uploader{client: client, bucket: cfg.Bucket, baseURL: publicBaseURL(cfg)}, nil
}

// Upload stores the file at localPath and returns its public URL. An empty
// path is not an error and yields an empty URL.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	if localPath == "" {
		return "", nil
	}
	defer removeQuietly(localPath)

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("upload: open %s: %w", localPath, err)
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(localPath))
	key := ObjectKey(time.Now().UTC(), ext)
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("upload: put %s: %w", key, err)
	}
	return u.baseURL + "/" + key, nil
}

// Delete removes the object behind a URL produced by Upload. URLs outside
// this bucket's base URL are ignored.
func (u *S3Uploader) Delete(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, u.baseURL+"/")
	if url == "" || !ok || key == "" {
		return nil
	}
	if _, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("upload: delete %s: %w", key, err)
	}
	return nil
}

// Discard is the uploader used when no bucket is configured: files are
// removed and no URL is produced.
type Discard struct{}

func (Discard) Upload(_ context.Context, localPath string) (string, error) {
	if localPath != "" {
		removeQuietly(localPath)
	}
	return "", nil
}

func (Discard) Delete(context.Context, string) error { return nil }

// ObjectKey lays images out by upload day.
func ObjectKey(now time.Time, ext string) string {
	return fmt.Sprintf("images/%04d/%02d/%02d/%s%s", now.Year(), now.Month(), now.Day(), uuid.NewString(), ext)
}

func publicBaseURL(cfg config.StorageConfig) string {
	switch {
	case cfg.PublicBaseURL != "":
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}

// RemoveTemp deletes a temporary upload if it is still on disk.
func RemoveTemp(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func removeQuietly(path string) { _ = RemoveTemp(path) }
