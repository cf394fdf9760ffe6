package sink

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/logevents/pkg/compression"
	"github.com/ajitpratap0/logevents/pkg/config"
	"github.com/ajitpratap0/logevents/pkg/errors"
	"go.uber.org/zap"
)

// New creates the sink selected by cfg.Type
func New(ctx context.Context, cfg config.SinkConfig, logger *zap.Logger) (Sink, error) {
	alg, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid sink compression")
	}
	opts := Options{
		Format:      cfg.Format,
		Compression: alg,
		Prefix:      cfg.Prefix,
	}

	switch cfg.Type {
	case "", "none":
		return &Discard{}, nil
	case "file":
		return NewFileSink(cfg.Directory, opts, logger), nil
	case "s3":
		s, err := NewS3Sink(ctx, cfg.Bucket, cfg.Region, opts, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "gcs":
		s, err := NewGCSSink(ctx, cfg.Bucket, cfg.CredentialsFile, opts, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "kafka":
		s, err := NewKafkaSink(cfg.Brokers, cfg.Topic, alg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unknown sink type %q", cfg.Type))
	}
}
