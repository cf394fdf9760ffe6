package logevents

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/logevents/pkg/errors"
	jsonpool "github.com/ajitpratap0/logevents/pkg/json"
	"github.com/ajitpratap0/logevents/pkg/models"
)

// apiResponse is the subset of a MediaWiki query response the connector
// reads. Records stay raw so they pass through byte for byte.
type apiResponse struct {
	Query    *queryResult           `json:"query"`
	Continue map[string]interface{} `json:"continue"`
	Error    map[string]interface{} `json:"error"`
}

type queryResult struct {
	LogEvents []models.Record `json:"logevents"`
}

// records returns the log events in upstream order, never nil
func (r *apiResponse) records() []models.Record {
	if r.Query == nil || r.Query.LogEvents == nil {
		return []models.Record{}
	}
	return r.Query.LogEvents
}

// continuation returns the lecontinue cursor. A continue block without a
// usable cursor counts as no continuation.
func (r *apiResponse) continuation() (string, bool) {
	if r.Continue == nil {
		return "", false
	}
	v, ok := r.Continue[paramContinue]
	if !ok || v == nil {
		return "", false
	}

	var token string
	switch t := v.(type) {
	case string:
		token = t
	case fmt.Stringer:
		token = t.String()
	default:
		token = fmt.Sprint(t)
	}
	return token, token != ""
}

// apiError returns the MediaWiki error code and info, if the body carried one
func (r *apiResponse) apiError() (code, info string, ok bool) {
	if r.Error == nil {
		return "", "", false
	}
	if c, present := r.Error["code"]; present {
		code = fmt.Sprint(c)
	}
	if i, present := r.Error["info"]; present {
		info = fmt.Sprint(i)
	}
	return code, info, true
}

// decodeResponse decodes exactly one JSON document. Anything after it other
// than whitespace makes the body malformed.
func decodeResponse(body io.Reader) (*apiResponse, error) {
	dec := jsonpool.NewDecoder(body)

	var resp apiResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode upstream response")
	}

	var trailing jsonpool.RawMessage
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			err = fmt.Errorf("unexpected data after response document")
		}
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode upstream response")
	}
	return &resp, nil
}
