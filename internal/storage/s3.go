package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3Store stores photos and illustrations in an S3-compatible bucket
type S3Store struct {
	s3Client   *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	publicURL  string // optional base URL for public bucket (e.g. http://localhost:9000/tendertales-assets)
	presignTTL time.Duration
}

// NewS3Store creates a new S3 store. When publicURL is empty, Put returns presigned GET URLs valid for presignTTL.
func NewS3Store(ctx context.Context, endpoint, region, bucket, accessKey, secretKey, publicURL string, presignTTL time.Duration) (*S3Store, error) {
	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	// Custom endpoint for MinIO/LocalStack/R2
	if endpoint != "" {
		configOpts = append(configOpts, config.WithBaseEndpoint(endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Path-style addressing for MinIO compatibility; checksums only when required so
	// S3-compatible backends without CRC32 support work.
	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	if presignTTL <= 0 {
		presignTTL = time.Hour
	}

	log.Info().
		Str("endpoint", endpoint).
		Str("bucket", bucket).
		Bool("public", publicURL != "").
		Msg("S3 store initialized")

	return &S3Store{
		s3Client:   s3Client,
		presigner:  s3.NewPresignClient(s3Client),
		bucket:     bucket,
		publicURL:  publicURL,
		presignTTL: presignTTL,
	}, nil
}

// PublicURL returns the public URL for an object key. Empty if publicURL was not configured.
func (c *S3Store) PublicURL(key string) string {
	if c.publicURL == "" {
		return ""
	}
	return strings.TrimSuffix(c.publicURL, "/") + "/" + key
}

// Put uploads data and returns a URL for it. contentLength must be > 0; S3-compatible backends (e.g. R2) require the Content-Length header.
func (c *S3Store) Put(ctx context.Context, key string, data io.Reader, contentType string, contentLength int64) (string, error) {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          data,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(contentLength),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Info().
		Str("bucket", c.bucket).
		Str("key", key).
		Msg("Object uploaded to S3")

	if url := c.PublicURL(key); url != "" {
		return url, nil
	}
	return c.presignedURL(ctx, key)
}

// presignedURL generates a presigned URL for downloading an object
func (c *S3Store) presignedURL(ctx context.Context, key string) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = c.presignTTL
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return req.URL, nil
}

// Delete deletes an object from S3
func (c *S3Store) Delete(ctx context.Context, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	log.Debug().
		Str("bucket", c.bucket).
		Str("key", key).
		Msg("Object deleted from S3")

	return nil
}
