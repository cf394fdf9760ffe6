package sink

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/ajitpratap0/logevents/pkg/errors"
	"github.com/ajitpratap0/logevents/pkg/models"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// objectMeta describes an object written by the GCS sink
type objectMeta struct {
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string
}

// objectWriterFunc opens a writer for one object in the bucket
type objectWriterFunc func(ctx context.Context, name string, meta objectMeta) io.WriteCloser

// GCSSink buffers a run in memory and writes it as one object on Close
type GCSSink struct {
	bucket    string
	opts      Options
	newWriter objectWriterFunc
	client    *storage.Client
	logger    *zap.Logger

	name string
	buf  bytes.Buffer
	enc  *recordEncoder
}

// NewGCSSink creates a GCS sink. credentialsFile may be empty to use
// application default credentials.
func NewGCSSink(ctx context.Context, bucket, credentialsFile string, opts Options, logger *zap.Logger) (*GCSSink, error) {
	var clientOpts []option.ClientOption
	if credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}

	handle := client.Bucket(bucket)
	s := newGCSSink(bucket, func(ctx context.Context, name string, meta objectMeta) io.WriteCloser {
		w := handle.Object(name).NewWriter(ctx)
		w.ContentType = meta.ContentType
		w.ContentEncoding = meta.ContentEncoding
		w.Metadata = meta.Metadata
		return w
	}, opts, logger)
	s.client = client
	return s, nil
}

func newGCSSink(bucket string, newWriter objectWriterFunc, opts Options, logger *zap.Logger) *GCSSink {
	opts.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GCSSink{
		bucket:    bucket,
		opts:      opts,
		newWriter: newWriter,
		logger:    logger.With(zap.String("sink", "gcs"), zap.String("bucket", bucket)),
	}
}

// Write implements Sink
func (s *GCSSink) Write(_ context.Context, table string, records []models.Record) error {
	if s.enc == nil {
		s.name = ObjectName(s.opts.Prefix, s.opts.Now(), s.opts.Format, s.opts.Compression)
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

// Close implements Sink and closes the GCS client
func (s *GCSSink) Close(ctx context.Context) error {
	defer func() {
		if s.client != nil {
			_ = s.client.Close()
			s.client = nil
		}
	}()

	if s.enc == nil {
		return nil
	}
	if err := s.enc.close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to finalize object")
	}

	start := time.Now()
	size := s.buf.Len()
	writer := s.newWriter(ctx, s.name, objectMeta{
		ContentType:     contentType(s.opts.Format),
		ContentEncoding: s.opts.Compression.ContentEncoding(),
		Metadata: map[string]string{
			"records":     strconv.Itoa(s.enc.records),
			"format":      s.opts.Format,
			"compression": string(s.opts.Compression),
			"created":     time.Now().UTC().Format(time.RFC3339),
		},
	})
	s.enc = nil

	if _, err := io.Copy(writer, &s.buf); err != nil {
		_ = writer.Close()
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to write to GCS").
			WithDetail("object", s.name)
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to close GCS writer").
			WithDetail("object", s.name)
	}

	s.logger.Info("records uploaded",
		zap.String("object", s.name),
		zap.Int("bytes", size),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// ObjectName returns the object name of the current run
func (s *GCSSink) ObjectName() string {
	return s.name
}
