package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cadconvert/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"
)

var (
	ErrUploadFailed  = errors.New("upload failed")
	ErrPresignFailed = errors.New("presigned link generation failed")
)

// S3Service publishes conversion artifacts. Upload and Presign return
// typed errors instead of raising; the request handler is the only place
// that turns them into HTTP responses and ledger updates.
type S3Service struct {
	session  *session.Session
	client   *s3.S3
	uploader *s3manager.Uploader
	cache    *LinkCache
	logger   *zap.Logger
}

// NewS3Service builds the publisher. cache may be nil; presigned links
// are then generated fresh on every request.
func NewS3Service(cfg *config.Config, cache *LinkCache, logger *zap.Logger) *S3Service {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.S3Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWSS3AccessKey,
			cfg.AWSS3SecretKey,
			"",
		),
	}

	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
	}

	if cfg.S3UsePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess := session.Must(session.NewSession(awsCfg))

	return &S3Service{
		session:  sess,
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		cache:    cache,
		logger:   logger,
	}
}

// Upload pushes a local file to the bucket. An empty key defaults to the
// file's base name.
func (s *S3Service) Upload(ctx context.Context, localPath, bucket, key string) error {
	if key == "" {
		key = filepath.Base(localPath)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrUploadFailed, localPath, err)
	}
	defer file.Close()

	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrUploadFailed, bucket, key, err)
	}

	s.logger.Info("uploaded artifact",
		zap.String("bucket", bucket),
		zap.String("key", key))
	return nil
}

// Presign returns a time-limited retrieval URL for an uploaded object.
func (s *S3Service) Presign(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if s.cache != nil {
		if link, ok := s.cache.Get(ctx, bucket, key); ok {
			return link, nil
		}
	}

	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	link, err := req.Presign(expiry)
	if err != nil {
		return "", fmt.Errorf("%w: %s/%s: %v", ErrPresignFailed, bucket, key, err)
	}

	if s.cache != nil {
		s.cache.Put(ctx, bucket, key, link, expiry)
	}
	return link, nil
}

// Cleanup removes a local work file once its artifact lives in S3.
func (s *S3Service) Cleanup(path string) error {
	if path == "" {
		return nil
	}
	return os.Remove(path)
}
