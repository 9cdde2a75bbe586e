// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package s3upload submits finished recordings to S3-compatible storage.
package s3upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/log"
	"github.com/ManuGH/dashcam/internal/metrics"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	defaultTimeout = 30 * time.Second
	uploadTimeout  = 10 * time.Minute
)

// Config selects the bucket and credentials.
type Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	Prefix       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// Uploader puts recording files into a bucket.
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

func New(cfg Config) (*Uploader, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, errors.New("missing required configuration: access key, secret key and bucket are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""))
	opts := s3.Options{
		Region:           region,
		Credentials:      creds,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
		UsePathStyle:     cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return &Uploader{client: s3.New(opts), bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Check verifies the bucket is reachable with the configured credentials.
func (u *Uploader) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if _, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(u.bucket)}); err != nil {
		return fmt.Errorf("unable to access bucket %s: %w", u.bucket, err)
	}
	return nil
}

// Key is the object key for a record.
func (u *Uploader) Key(rec model.VideoRecord) string {
	return path.Join(u.prefix, rec.FileName)
}

// Upload puts the file at filePath under the record's key.
func (u *Uploader) Upload(ctx context.Context, rec model.VideoRecord, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat recording: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	key := u.Key(rec)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(fi.Size()),
		ContentType:   aws.String("video/mp4"),
		Metadata: map[string]string{
			"title":    rec.Title,
			"duration": fmt.Sprintf("%d", rec.DurationSeconds),
		},
	})
	if err != nil {
		metrics.ObserveUpload("error")
		return fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}
	metrics.ObserveUpload("ok")
	logger := log.WithComponent("s3upload")
	logger.Info().
		Int64(log.FieldRecordID, rec.ID).
		Str("bucket", u.bucket).
		Str("key", key).
		Int64("bytes", fi.Size()).
		Msg("recording uploaded")
	return nil
}
