package sink

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/logevents/pkg/errors"
	"github.com/ajitpratap0/logevents/pkg/models"
	"go.uber.org/zap"
)

// FileSink writes a run to a local file. The file is created on the first
// Write.
type FileSink struct {
	dir    string
	opts   Options
	logger *zap.Logger

	path string
	file *os.File
	enc  *recordEncoder
}

// NewFileSink creates a sink writing into dir
func NewFileSink(dir string, opts Options, logger *zap.Logger) *FileSink {
	opts.defaults()
	if dir == "" {
		dir = "."
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{
		dir:    dir,
		opts:   opts,
		logger: logger.With(zap.String("sink", "file")),
	}
}

// Path returns the file written so far, or "" before the first Write
func (s *FileSink) Path() string {
	return s.path
}

// Write implements Sink
func (s *FileSink) Write(_ context.Context, table string, records []models.Record) error {
	if s.file == nil {
		if err := s.open(); err != nil {
			return err
		}
	}
	if err := s.enc.encode(records); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write records").
			WithDetail("table", table)
	}
	return nil
}

func (s *FileSink) open() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create output directory")
	}

	name := ObjectName(s.opts.Prefix, s.opts.Now(), s.opts.Format, s.opts.Compression)
	path := filepath.Join(s.dir, name)
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create output file")
	}

	enc, err := newRecordEncoder(file, s.opts.Format, s.opts.Compression)
	if err != nil {
		file.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to initialize encoder")
	}

	s.path, s.file, s.enc = path, file, enc
	return nil
}

// Close implements Sink
func (s *FileSink) Close(context.Context) error {
	if s.file == nil {
		return nil
	}

	encErr := s.enc.close()
	closeErr := s.file.Close()
	s.file = nil

	if encErr != nil {
		return errors.Wrap(encErr, errors.ErrorTypeFile, "failed to finalize output file")
	}
	if closeErr != nil {
		return errors.Wrap(closeErr, errors.ErrorTypeFile, "failed to close output file")
	}

	s.logger.Info("records saved",
		zap.String("path", s.path),
		zap.Int("records", s.enc.records))
	return nil
}
