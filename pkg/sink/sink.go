// Package sink saves records produced by a sync run.
//
// Object sinks (file, s3, gcs) write every record of a run into a single
// data_download_<timestamp>.json object, either as one JSON array or as
// line-delimited JSON, optionally compressed. The kafka sink publishes one
// message per record instead.
package sink

import (
	"context"
	"io"
	"time"

	"github.com/ajitpratap0/logevents/pkg/compression"
	jsonpool "github.com/ajitpratap0/logevents/pkg/json"
	"github.com/ajitpratap0/logevents/pkg/models"
)

// Output formats
const (
	FormatArray = "array"
	FormatJSONL = "jsonl"
)

// ObjectTimestampLayout names objects after the moment the sink was opened
const ObjectTimestampLayout = "2006-01-02T15:04:05.000Z"

// Sink receives inserted records of a sync run
type Sink interface {
	// Write appends the records of one table. Records are written verbatim.
	Write(ctx context.Context, table string, records []models.Record) error

	// Close flushes buffered output. A sink that never received a Write
	// creates no object.
	Close(ctx context.Context) error
}

// Options are shared by the object sinks
type Options struct {
	Format      string
	Compression compression.Algorithm
	Prefix      string
	// Now names the object; defaults to time.Now
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.Format == "" {
		o.Format = FormatArray
	}
	if o.Compression == "" {
		o.Compression = compression.None
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// ObjectName returns the object name for a run started at ts
func ObjectName(prefix string, ts time.Time, format string, alg compression.Algorithm) string {
	ext := ".json"
	if format == FormatJSONL {
		ext = ".jsonl"
	}
	return prefix + "data_download_" + ts.UTC().Format(ObjectTimestampLayout) + ext + alg.Extension()
}

// contentType returns the MIME type of the uncompressed payload
func contentType(format string) string {
	if format == FormatJSONL {
		return "application/x-ndjson"
	}
	return "application/json"
}

// recordEncoder streams records through compression into an object body
type recordEncoder struct {
	cw      io.WriteCloser
	enc     *jsonpool.StreamingEncoder
	records int
}

func newRecordEncoder(w io.Writer, format string, alg compression.Algorithm) (*recordEncoder, error) {
	cw, err := compression.NewWriter(w, alg, compression.Default)
	if err != nil {
		return nil, err
	}
	enc, err := jsonpool.NewStreamingEncoder(cw, format != FormatJSONL)
	if err != nil {
		cw.Close()
		return nil, err
	}
	return &recordEncoder{cw: cw, enc: enc}, nil
}

func (e *recordEncoder) encode(records []models.Record) error {
	for _, record := range records {
		if err := e.enc.Encode(record); err != nil {
			return err
		}
		e.records++
	}
	return nil
}

// close terminates the JSON document and flushes the compressor. The
// underlying writer stays open.
func (e *recordEncoder) close() error {
	if err := e.enc.Close(); err != nil {
		e.cw.Close()
		return err
	}
	return e.cw.Close()
}

// Discard drops records and only counts them
type Discard struct {
	Records int
}

// Write implements Sink
func (d *Discard) Write(_ context.Context, _ string, records []models.Record) error {
	d.Records += len(records)
	return nil
}

// Close implements Sink
func (d *Discard) Close(context.Context) error { return nil }
