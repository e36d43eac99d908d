// Package storage presigns chart image transfers against an S3-compatible
// object store (AWS S3, MinIO).
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultPresignTTL is how long presigned URLs stay valid.
const DefaultPresignTTL = 15 * time.Minute

// Seams for tests.
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// Config describes the bucket charts are stored in.
type Config struct {
	Endpoint   string
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	PathStyle  bool
	PresignTTL time.Duration
}

// Enabled reports whether enough is configured to presign URLs.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// ChartStore presigns uploads and downloads of chart images.
type ChartStore struct {
	bucket  string
	ttl     time.Duration
	presign *s3.PresignClient
	now     func() time.Time
}

// NewChartStore builds a presigning client. Presigning is local; no request
// reaches the object store here.
func NewChartStore(ctx context.Context, cfg Config) (*ChartStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = DefaultPresignTTL
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &ChartStore{
		bucket:  cfg.Bucket,
		ttl:     cfg.PresignTTL,
		presign: s3.NewPresignClient(client),
		now:     time.Now,
	}, nil
}

// PresignUpload returns a PUT URL for key and when it expires.
func (c *ChartStore) PresignUpload(ctx context.Context, key, contentType string) (string, time.Time, error) {
	expiresAt := c.now().Add(c.ttl)
	req, err := presignPutObject(c.presign, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(c.ttl))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storage: presign put %s: %w", key, err)
	}
	return req.URL, expiresAt, nil
}

// PresignDownload returns a GET URL for key.
func (c *ChartStore) PresignDownload(ctx context.Context, key string) (string, error) {
	req, err := presignGetObject(c.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.ttl))
	if err != nil {
		return "", fmt.Errorf("storage: presign get %s: %w", key, err)
	}
	return req.URL, nil
}
