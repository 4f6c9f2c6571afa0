package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"cfgvault/internal/backup"
	"cfgvault/internal/config"
)

// uploader is the part of manager.Uploader the mirror uses.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// objectDeleter is the part of s3.Client the mirror uses.
type objectDeleter interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Mirror implements backup.Mirror on an S3 bucket. Every call runs under
// its own timeout so an unreachable endpoint cannot stall a local backup
// for long.
type S3Mirror struct {
	uploader uploader
	deleter  objectDeleter
	bucket   string
	prefix   string
	timeout  time.Duration
}

var _ backup.Mirror = (*S3Mirror)(nil)

// NewS3Mirror builds an S3 client from cfg. Static credentials are used
// when an access key is configured; otherwise the default AWS credential
// chain applies. A custom endpoint (MinIO and friends) switches to
// path-style addressing.
func NewS3Mirror(cfg config.MirrorConfig) (*S3Mirror, error) {
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Mirror(manager.NewUploader(client), client, cfg.S3Bucket, cfg.S3Prefix, timeout), nil
}

func newS3Mirror(up uploader, del objectDeleter, bucket, prefix string, timeout time.Duration) *S3Mirror {
	return &S3Mirror{
		uploader: up,
		deleter:  del,
		bucket:   bucket,
		prefix:   prefix,
		timeout:  timeout,
	}
}

// Push uploads the payload, then the record. The record goes last so a
// mirrored record always has its payload.
func (m *S3Mirror) Push(rec *backup.Record, payload []byte) error {
	meta, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.put(ctx, PayloadKey(m.prefix, rec), payload, "application/octet-stream"); err != nil {
		return err
	}
	return m.put(ctx, RecordKey(m.prefix, rec), meta, "application/json")
}

// Remove deletes the record, then the payload. S3 treats deleting a
// missing key as success.
func (m *S3Mirror) Remove(rec *backup.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errs []error
	for _, key := range []string{RecordKey(m.prefix, rec), PayloadKey(m.prefix, rec)} {
		_, err := m.deleter.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("deleting s3://%s/%s: %w", m.bucket, key, err))
		}
	}
	return errors.Join(errs...)
}

func (m *S3Mirror) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", m.bucket, key, err)
	}
	return nil
}
