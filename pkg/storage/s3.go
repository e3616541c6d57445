package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
)

const (
	envS3Bucket    = "TITAN_S3_BUCKET"
	envS3Region    = "TITAN_S3_REGION"
	envS3Endpoint  = "TITAN_S3_ENDPOINT"
	envS3AccessKey = "TITAN_S3_ACCESS_KEY"
	envS3SecretKey = "TITAN_S3_SECRET_KEY"
)

// uploader matches the subset of s3manager.Uploader used here, so tests can
// substitute a double.
type uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// S3BlobWriter implements BlobWriter on top of an S3 (or S3-compatible)
// bucket.
type S3BlobWriter struct {
	uploader uploader
	bucket   string
}

// NewS3BlobWriterFromEnv builds an S3BlobWriter from the TITAN_S3_*
// environment variables. Only the bucket is mandatory; when no static key
// pair is provided the SDK's default credential chain applies.
func NewS3BlobWriterFromEnv() (*S3BlobWriter, error) {
	bucket := strings.TrimSpace(os.Getenv(envS3Bucket))
	if bucket == "" {
		return nil, errors.Errorf("missing required environment variable: %s", envS3Bucket)
	}

	cfg := aws.NewConfig()
	if region := strings.TrimSpace(os.Getenv(envS3Region)); region != "" {
		cfg = cfg.WithRegion(region)
	}
	if endpoint := strings.TrimSpace(os.Getenv(envS3Endpoint)); endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}
	if key := strings.TrimSpace(os.Getenv(envS3AccessKey)); key != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(key, os.Getenv(envS3SecretKey), ""))
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating S3 session")
	}

	return &S3BlobWriter{
		uploader: s3manager.NewUploader(sess),
		bucket:   bucket,
	}, nil
}

// WriteBytes uploads the payload under the given key.
func (w *S3BlobWriter) WriteBytes(ctx context.Context, key string, payload []byte) error {
	_, err := w.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("uploading %q to bucket %q", key, w.bucket))
	}
	return nil
}
