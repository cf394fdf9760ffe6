package models

import (
	"fmt"
	"time"
)

const (
	// StateKeyLastUpdated holds the watermark of the oldest unprocessed event
	StateKeyLastUpdated = "last_updated"
	// StateKeyContinue holds the upstream pagination cursor while a
	// multi-page fetch is in progress
	StateKeyContinue = "continue"

	// TimestampLayout is the watermark format, second precision UTC
	TimestampLayout = "2006-01-02T15:04:05Z"

	// EpochTimestamp is the watermark used on the very first call
	EpochTimestamp = "1970-01-01T00:00:00Z"
)

// FormatTimestamp renders t as a watermark
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// State is the opaque cursor mapping persisted by the caller between
// invocations. Keys other than last_updated and continue are carried through
// unchanged. Methods never mutate the receiver; they return a new State.
type State map[string]interface{}

// Clone returns a shallow copy of s. A nil State clones to an empty one.
func (s State) Clone() State {
	out := make(State, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	return out
}

// LastUpdated returns the watermark or "" if it is absent
func (s State) LastUpdated() string {
	return stringValue(s[StateKeyLastUpdated])
}

// Continue returns the pagination cursor and whether one is present
func (s State) Continue() (string, bool) {
	v, ok := s[StateKeyContinue]
	if !ok || v == nil {
		return "", false
	}
	token := stringValue(v)
	return token, token != ""
}

// WithDefaults fills in the epoch watermark when none is set
func (s State) WithDefaults() State {
	out := s.Clone()
	if out.LastUpdated() == "" {
		out[StateKeyLastUpdated] = EpochTimestamp
	}
	return out
}

// WithContinuation records a pagination cursor and leaves the watermark alone
func (s State) WithContinuation(token string) State {
	out := s.Clone()
	out[StateKeyContinue] = token
	return out
}

// Advanced moves the watermark to ts and drops any pagination cursor
func (s State) Advanced(ts string) State {
	out := s.Clone()
	out[StateKeyLastUpdated] = ts
	delete(out, StateKeyContinue)
	return out
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
