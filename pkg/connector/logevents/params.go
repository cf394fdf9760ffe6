package logevents

import (
	"net/url"
	"strconv"

	"github.com/ajitpratap0/logevents/pkg/errors"
	"github.com/ajitpratap0/logevents/pkg/models"
)

// Upstream query parameter names
const (
	paramAction     = "action"
	paramList       = "list"
	paramTitle      = "letitle"
	paramDirection  = "ledir"
	paramStart      = "lestart"
	paramLimit      = "lelimit"
	paramFormat     = "format"
	paramContinue   = "lecontinue"
	listLogEvents   = "logevents"
	directionNewer  = "newer"
	actionQuery     = "query"
	formatJSON      = "json"
	maxErrorBodyLen = 512
)

// queryParams builds the fixed log-events query for state. lecontinue is
// only sent while a multi-page fetch is in progress.
func (h *Handler) queryParams(state models.State) url.Values {
	params := url.Values{}
	params.Set(paramAction, actionQuery)
	params.Set(paramList, listLogEvents)
	params.Set(paramTitle, h.title)
	params.Set(paramDirection, directionNewer)
	params.Set(paramStart, state.LastUpdated())
	params.Set(paramLimit, strconv.Itoa(h.limit))
	params.Set(paramFormat, formatJSON)

	if token, ok := state.Continue(); ok {
		params.Set(paramContinue, token)
	}
	return params
}

// buildURL merges params into baseURL. Query parameters already present on
// baseURL are kept unless params overrides them.
func buildURL(baseURL string, params url.Values) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConfig, "secret BASE_URL is not a valid URL")
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.Newf(errors.ErrorTypeConfig, "secret BASE_URL must be an absolute URL, got %q", baseURL)
	}

	query := u.Query()
	for key, values := range params {
		query[key] = values
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}
