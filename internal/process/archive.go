package process

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Archiver keeps a copy of a generated QR image.
type Archiver interface {
	Archive(ctx context.Context, key, path string) error
}

// S3Archiver uploads QR images to an S3 compatible bucket.
type S3Archiver struct {
	client *s3.Client
	bucket string
	logger zerolog.Logger
}

// S3Config addresses the archive bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// NewS3Archiver creates an archiver for cfg.Bucket.
func NewS3Archiver(cfg S3Config, logger zerolog.Logger) *S3Archiver {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return &S3Archiver{
		client: s3.New(opts),
		bucket: cfg.Bucket,
		logger: logger.With().Str("component", "qr-archiver").Logger(),
	}
}

// Archive uploads the file at path under key.
func (a *S3Archiver) Archive(ctx context.Context, key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading qr code: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return fmt.Errorf("uploading qr code to %s/%s: %w", a.bucket, key, err)
	}
	a.logger.Debug().Str("bucket", a.bucket).Str("key", key).Int("size", len(data)).Msg("archived qr code")
	return nil
}
