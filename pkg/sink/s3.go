package sink

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/ajitpratap0/logevents/pkg/errors"
	"github.com/ajitpratap0/logevents/pkg/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// s3Uploader is the part of manager.Uploader the sink uses
type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Sink buffers a run in memory and uploads it as one object on Close
type S3Sink struct {
	bucket   string
	opts     Options
	uploader s3Uploader
	logger   *zap.Logger

	key string
	buf bytes.Buffer
	enc *recordEncoder
}

// NewS3Sink creates an S3 sink using the default AWS credential chain
func NewS3Sink(ctx context.Context, bucket, region string, opts Options, logger *zap.Logger) (*S3Sink, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	uploader := manager.NewUploader(s3.NewFromConfig(cfg), func(u *manager.Uploader) {
		u.PartSize = 8 * 1024 * 1024
		u.Concurrency = 2
	})
	return newS3Sink(bucket, uploader, opts, logger), nil
}

func newS3Sink(bucket string, uploader s3Uploader, opts Options, logger *zap.Logger) *S3Sink {
	opts.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Sink{
		bucket:   bucket,
		opts:     opts,
		uploader: uploader,
		logger:   logger.With(zap.String("sink", "s3"), zap.String("bucket", bucket)),
	}
}

// Write implements Sink
func (s *S3Sink) Write(_ context.Context, table string, records []models.Record) error {
	if s.enc == nil {
		s.key = ObjectName(s.opts.Prefix, s.opts.Now(), s.opts.Format, s.opts.Compression)
		enc, err := newRecordEncoder(&s.buf, s.opts.Format, s.opts.Compression)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeStorage, "failed to initialize encoder")
		}
		s.enc = enc
	}

	if err := s.enc.encode(records); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to encode records").
			WithDetail("table", table)
	}
	return nil
}

// Close implements Sink
func (s *S3Sink) Close(ctx context.Context) error {
	if s.enc == nil {
		return nil
	}
	if err := s.enc.close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to finalize object")
	}

	start := time.Now()
	size := s.buf.Len()
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(s.buf.Bytes()),
		ContentType: aws.String(contentType(s.opts.Format)),
		Metadata: map[string]string{
			"records":     strconv.Itoa(s.enc.records),
			"format":      s.opts.Format,
			"compression": string(s.opts.Compression),
			"created":     time.Now().UTC().Format(time.RFC3339),
		},
	}
	if enc := s.opts.Compression.ContentEncoding(); enc != "" {
		input.ContentEncoding = aws.String(enc)
	}

	result, err := s.uploader.Upload(ctx, input)
	s.enc = nil
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to upload to S3").
			WithDetail("key", s.key)
	}

	s.logger.Info("records uploaded",
		zap.String("location", result.Location),
		zap.Int("bytes", size),
		zap.Duration("duration", time.Since(start)))
	s.buf.Reset()
	return nil
}

// Key returns the object key of the current run
func (s *S3Sink) Key() string {
	return s.key
}
