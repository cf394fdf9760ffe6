// Package json provides JSON serialization backed by goccy/go-json with pooled
// buffers. Decoders use UseNumber so numeric fields in upstream records keep
// their exact textual form when they are re-emitted.
package json

import (
	"io"

	"github.com/ajitpratap0/logevents/pkg/pool"
	gojson "github.com/goccy/go-json"
)

// RawMessage is a raw encoded JSON value
type RawMessage = gojson.RawMessage

// Marshal is a drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a drop-in replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Valid reports whether data is a valid JSON encoding
func Valid(data []byte) bool {
	return gojson.Valid(data)
}

// NewEncoder returns an encoder that does not escape HTML
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// NewDecoder returns a decoder with UseNumber enabled
func NewDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// Decode reads a single JSON value from r into v
func Decode(r io.Reader, v interface{}) error {
	return NewDecoder(r).Decode(v)
}

// MarshalToWriter marshals v directly to a writer
func MarshalToWriter(w io.Writer, v interface{}) error {
	return NewEncoder(w).Encode(v)
}

// StreamingEncoder writes values one at a time either as a JSON array or as
// line-delimited JSON.
type StreamingEncoder struct {
	writer      io.Writer
	firstRecord bool
	isArray     bool
	closed      bool
}

// NewStreamingEncoder creates a new streaming encoder. The opening bracket is
// written immediately in array mode.
func NewStreamingEncoder(w io.Writer, isArray bool) (*StreamingEncoder, error) {
	se := &StreamingEncoder{
		writer:      w,
		firstRecord: true,
		isArray:     isArray,
	}

	if isArray {
		if _, err := w.Write([]byte{'['}); err != nil {
			return nil, err
		}
	}

	return se, nil
}

// Encode encodes a single value
func (se *StreamingEncoder) Encode(v interface{}) error {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	data, err := gojson.Marshal(v)
	if err != nil {
		return err
	}

	if se.isArray && !se.firstRecord {
		buf.WriteByte(',')
	}
	buf.Write(data)
	if !se.isArray {
		buf.WriteByte('\n')
	}
	se.firstRecord = false

	_, err = se.writer.Write(buf.Bytes())
	return err
}

// Close finalizes the encoding. It does not close the underlying writer.
func (se *StreamingEncoder) Close() error {
	if se.closed {
		return nil
	}
	se.closed = true

	if se.isArray {
		_, err := se.writer.Write([]byte{']'})
		return err
	}
	return nil
}
