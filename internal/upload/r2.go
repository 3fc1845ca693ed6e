package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/onnwee/plaques/internal/tracing"
)

// R2Config holds configuration for the R2 object store.
type R2Config struct {
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	// PublicBaseURL is the public bucket or CDN origin photos are served from.
	PublicBaseURL string
}

// R2Store implements ObjectStore on Cloudflare R2 through the S3 API.
type R2Store struct {
	s3Client      *s3.Client
	bucketName    string
	publicBaseURL string
}

// NewR2Store creates a new R2 object store with the given configuration.
func NewR2Store(cfg R2Config) (*R2Store, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, errors.New("public base URL is required")
	}

	s3Client := s3.New(s3.Options{
		Region: "auto", // R2 uses auto region
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // No session token for R2
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true, // R2 requires path-style addressing
	})

	return &R2Store{
		s3Client:      s3Client,
		bucketName:    cfg.BucketName,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// Upload puts the photo into the bucket.
func (s *R2Store) Upload(ctx context.Context, key, contentType string, data []byte) (err error) {
	ctx, endSpan := tracing.StartStorageSpan(ctx, s.bucketName, key, tracing.StorageOperationPut)
	defer func() { endSpan(err) }()

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// PublicURL returns the public URL of key.
func (s *R2Store) PublicURL(key string) string {
	return publicURL(s.publicBaseURL, key)
}

// Remove deletes the object from the bucket. S3 reports success for
// missing keys, so removing twice is not an error.
func (s *R2Store) Remove(ctx context.Context, key string) (err error) {
	ctx, endSpan := tracing.StartStorageSpan(ctx, s.bucketName, key, tracing.StorageOperationDelete)
	defer func() { endSpan(err) }()

	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// HealthCheck verifies the bucket is reachable with the configured credentials.
func (s *R2Store) HealthCheck(ctx context.Context) (err error) {
	ctx, endSpan := tracing.StartStorageSpan(ctx, s.bucketName, "", tracing.StorageOperationHead)
	defer func() { endSpan(err) }()

	_, err = s.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucketName),
	})
	if err != nil {
		return fmt.Errorf("bucket unreachable: %w", err)
	}
	return nil
}

// BucketName returns the bucket name used by the store.
func (s *R2Store) BucketName() string {
	return s.bucketName
}

func publicURL(base, key string) string {
	return base + "/" + strings.TrimLeft(key, "/")
}
