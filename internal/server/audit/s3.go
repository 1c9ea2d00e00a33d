package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/google/uuid"
)

// objectPutter is the part of *s3.Client the archive needs.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config points the archive at an S3-compatible bucket.
type S3Config struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// NewS3Client builds an S3 client using static credentials when given and
// the default AWS chain otherwise.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Sink archives each event as one JSON object under
// audit/<yyyy>/<mm>/<dd>/<event_type>/<uuid>.json.
type S3Sink struct {
	client  objectPutter
	bucket  string
	timeout time.Duration
	logger  logging.Logger
}

func NewS3Sink(client objectPutter, bucket string, l logging.Logger) *S3Sink {
	return &S3Sink{
		client:  client,
		bucket:  bucket,
		timeout: 10 * time.Second,
		logger:  l.With("module", "audit_s3"),
	}
}

func objectKey(e Event) string {
	ts := e.Timestamp.UTC()
	return fmt.Sprintf("audit/%04d/%02d/%02d/%s/%s.json",
		ts.Year(), int(ts.Month()), ts.Day(), e.EventType, uuid.NewString())
}

func (s *S3Sink) Emit(ctx context.Context, e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		s.logger.Error(ctx, "marshal audit event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(e)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		s.logger.Error(ctx, "archive audit event", "event_type", e.EventType, "error", err)
	}
}
