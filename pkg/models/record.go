// Package models defines the values that cross the invocation boundary: the
// request the platform sends, the opaque cursor state, upstream records and
// the sync-batch envelope returned to the platform.
package models

import (
	"bytes"
	"fmt"

	jsonpool "github.com/ajitpratap0/logevents/pkg/json"
)

// Record is one upstream event kept as the exact JSON the upstream sent.
// Records are never decoded into Go structs on the hot path, so fields the
// connector does not know about survive untouched.
type Record []byte

// MarshalJSON implements json.Marshaler
func (r Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Record) UnmarshalJSON(data []byte) error {
	if r == nil {
		return fmt.Errorf("models.Record: UnmarshalJSON on nil pointer")
	}
	*r = append((*r)[0:0], data...)
	return nil
}

// Equal reports whether two records hold identical bytes
func (r Record) Equal(other Record) bool {
	return bytes.Equal(r, other)
}

// Fields decodes the record into a generic map. Numbers stay json.Number.
func (r Record) Fields() (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := jsonpool.Decode(bytes.NewReader(r), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Key returns the textual value of a top-level field, used for primary keys
// such as log_id. ok is false when the record is not an object or the field
// is missing.
func (r Record) Key(field string) (string, bool) {
	m, err := r.Fields()
	if err != nil || m == nil {
		return "", false
	}
	v, ok := m[field]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}
