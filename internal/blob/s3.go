package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cinelog/catalog-api/internal/awsclient"
	"github.com/cinelog/catalog-api/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

const backendS3 = "s3"

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 stores images as objects in one bucket.
type S3 struct {
	client  S3API
	bucket  string
	timeout time.Duration
}

// NewS3Client creates the S3 client. A custom endpoint targets MinIO or
// LocalStack, which usually also need path-style addressing.
func NewS3Client(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*s3.Client, error) {
	awsCfg, err := awsclient.LoadConfig(ctx, cfg.S3.Region, &cfg.AWS, logger)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		o.UsePathStyle = cfg.S3.UsePathStyle
	})

	logger.WithFields(logrus.Fields{
		"region":     cfg.S3.Region,
		"bucket":     cfg.S3.Bucket,
		"path_style": cfg.S3.UsePathStyle,
	}).Info("S3 client initialized")

	return client, nil
}

func NewS3(client S3API, bucket string, timeout time.Duration) *S3 {
	return &S3{client: client, bucket: bucket, timeout: timeout}
}

func (s *S3) Put(ctx context.Context, key string, data []byte, contentType string) (err error) {
	defer func(start time.Time) { observe(backendS3, "put", start, err) }(time.Now())
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	ctx, cancel := Bound(ctx, s.timeout)
	defer cancel()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *S3) Get(ctx context.Context, key string) (data []byte, err error) {
	defer func(start time.Time) { observe(backendS3, "get", start, err) }(time.Now())
	if !ValidKey(key) {
		return nil, ErrNotFound
	}
	ctx, cancel := Bound(ctx, s.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err = io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Delete is idempotent: S3 reports success for a missing key.
func (s *S3) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { observe(backendS3, "delete", start, err) }(time.Now())
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	ctx, cancel := Bound(ctx, s.timeout)
	defer cancel()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}
