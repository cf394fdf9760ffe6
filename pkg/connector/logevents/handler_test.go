package logevents

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/ajitpratap0/logevents/pkg/errors"
	jsonpool "github.com/ajitpratap0/logevents/pkg/json"
	"github.com/ajitpratap0/logevents/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)

// upstream is a fake log-events API that records the queries it receives
type upstream struct {
	mu      sync.Mutex
	queries []url.Values
	status  int
	body    string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.queries = append(u.queries, r.URL.Query())
	status, body := u.status, u.body
	u.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func (u *upstream) lastQuery(t *testing.T) url.Values {
	u.mu.Lock()
	defer u.mu.Unlock()
	require.NotEmpty(t, u.queries, "upstream was never called")
	return u.queries[len(u.queries)-1]
}

func newTestHandler(t *testing.T, opts ...Option) *Handler {
	base := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return fixedNow }),
	}
	return New(append(base, opts...)...)
}

func serve(t *testing.T, body string) (*upstream, *httptest.Server) {
	up := &upstream{body: body}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)
	return up, srv
}

func request(baseURL string, state models.State) *models.Request {
	return &models.Request{
		State:   state,
		Secrets: models.Secrets{models.SecretBaseURL: baseURL},
	}
}

const threeEvents = `{
	"batchcomplete": "",
	"query": {"logevents": [
		{"logid": 3, "type": "create", "title": "Data", "timestamp": "2024-01-01T00:00:01Z"},
		{"logid": 1, "type": "delete", "title": "Data", "params": {"count": {"revisions": 2}}},
		{"logid": 2, "type": "move", "title": "Data", "comment": "moved é"}
	]}
}`

func TestHandleColdStartUsesEpoch(t *testing.T) {
	up, srv := serve(t, `{"batchcomplete": "", "query": {"logevents": []}}`)
	h := newTestHandler(t)

	_, err := h.Handle(context.Background(), request(srv.URL, models.State{}))
	require.NoError(t, err)

	q := up.lastQuery(t)
	assert.Equal(t, "1970-01-01T00:00:00Z", q.Get("lestart"))
	assert.Equal(t, "query", q.Get("action"))
	assert.Equal(t, "logevents", q.Get("list"))
	assert.Equal(t, "Data", q.Get("letitle"))
	assert.Equal(t, "newer", q.Get("ledir"))
	assert.Equal(t, "5", q.Get("lelimit"))
	assert.Equal(t, "json", q.Get("format"))
	assert.False(t, q.Has("lecontinue"))
}

func TestHandleNilStateDefaults(t *testing.T) {
	up, srv := serve(t, `{}`)
	h := newTestHandler(t)

	batch, err := h.Handle(context.Background(), request(srv.URL, nil))
	require.NoError(t, err)
	assert.Equal(t, models.EpochTimestamp, up.lastQuery(t).Get("lestart"))
	assert.Equal(t, "2024-05-06T07:08:09Z", batch.State.LastUpdated())
}

func TestHandleContinuationKeepsWatermark(t *testing.T) {
	_, srv := serve(t, `{"continue": {"lecontinue": "20240101000001|42", "continue": "-||"}, "query": {"logevents": [{"logid": 42}]}}`)
	h := newTestHandler(t)

	batch, err := h.Handle(context.Background(), request(srv.URL, models.State{
		models.StateKeyLastUpdated: "2024-01-01T00:00:00Z",
	}))
	require.NoError(t, err)

	assert.True(t, batch.HasMore)
	assert.Equal(t, "2024-01-01T00:00:00Z", batch.State.LastUpdated())
	token, ok := batch.State.Continue()
	assert.True(t, ok)
	assert.Equal(t, "20240101000001|42", token)
}

func TestHandleSendsContinuationToken(t *testing.T) {
	up, srv := serve(t, `{"query": {"logevents": []}}`)
	h := newTestHandler(t)

	_, err := h.Handle(context.Background(), request(srv.URL, models.State{
		models.StateKeyLastUpdated: "2024-01-01T00:00:00Z",
		models.StateKeyContinue:    "20240101000001|42",
	}))
	require.NoError(t, err)

	q := up.lastQuery(t)
	assert.Equal(t, "20240101000001|42", q.Get("lecontinue"))
	assert.Equal(t, "2024-01-01T00:00:00Z", q.Get("lestart"))
}

func TestHandleAdvancesWatermarkToCallStart(t *testing.T) {
	_, srv := serve(t, threeEvents)
	h := newTestHandler(t)

	batch, err := h.Handle(context.Background(), request(srv.URL, models.State{
		models.StateKeyLastUpdated: "2024-01-01T00:00:00Z",
		models.StateKeyContinue:    "20240101000001|42",
	}))
	require.NoError(t, err)

	assert.False(t, batch.HasMore)
	assert.Equal(t, "2024-05-06T07:08:09Z", batch.State.LastUpdated())
	_, ok := batch.State[models.StateKeyContinue]
	assert.False(t, ok, "continue must be removed once the fetch completes")
}

func TestHandleTimestampCapturedBeforeRequest(t *testing.T) {
	var calls []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, "request")
		mu.Unlock()
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	h := newTestHandler(t, WithClock(func() time.Time {
		mu.Lock()
		calls = append(calls, "clock")
		mu.Unlock()
		return fixedNow
	}))

	_, err := h.Handle(context.Background(), request(srv.URL, models.State{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"clock", "request"}, calls)
}

func TestHandlePassesRecordsThroughInOrder(t *testing.T) {
	_, srv := serve(t, threeEvents)
	h := newTestHandler(t)

	batch, err := h.Handle(context.Background(), request(srv.URL, models.State{}))
	require.NoError(t, err)

	records := batch.Insert[models.TableLogEvents]
	require.Len(t, records, 3)
	assert.JSONEq(t, `{"logid": 3, "type": "create", "title": "Data", "timestamp": "2024-01-01T00:00:01Z"}`, string(records[0]))
	assert.JSONEq(t, `{"logid": 1, "type": "delete", "title": "Data", "params": {"count": {"revisions": 2}}}`, string(records[1]))
	assert.JSONEq(t, `{"logid": 2, "type": "move", "title": "Data", "comment": "moved é"}`, string(records[2]))
}

func TestHandleKeepsRecordBytes(t *testing.T) {
	raw := `{"logid":12345678901234567890,"ns":0,"score":1.50,"comment":"caf\u00e9"}`
	_, srv := serve(t, `{"query":{"logevents":[`+raw+`]}}`)
	h := newTestHandler(t)

	batch, err := h.Handle(context.Background(), request(srv.URL, models.State{}))
	require.NoError(t, err)

	records := batch.Insert[models.TableLogEvents]
	require.Len(t, records, 1)
	assert.True(t, records[0].Equal(models.Record(raw)), "got %s", records[0])
}

func TestHandleEmptyResults(t *testing.T) {
	bodies := map[string]string{
		"no query":     `{"batchcomplete": ""}`,
		"no logevents": `{"query": {}}`,
		"null events":  `{"query": {"logevents": null}}`,
		"empty events": `{"query": {"logevents": []}}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, srv := serve(t, body)
			h := newTestHandler(t)

			batch, err := h.Handle(context.Background(), request(srv.URL, models.State{}))
			require.NoError(t, err)

			assert.NotNil(t, batch.Insert[models.TableLogEvents])
			assert.Empty(t, batch.Insert[models.TableLogEvents])
			assert.False(t, batch.HasMore)
			assert.Equal(t, "2024-05-06T07:08:09Z", batch.State.LastUpdated())
		})
	}
}

func TestHandleSchemaAndDeleteAreFixed(t *testing.T) {
	for _, body := range []string{threeEvents, `{}`, `{"continue": {"lecontinue": "x"}}`} {
		_, srv := serve(t, body)
		h := newTestHandler(t)

		batch, err := h.Handle(context.Background(), request(srv.URL, models.State{}))
		require.NoError(t, err)

		assert.Equal(t, map[string]models.TableSchema{
			"logevents": {PrimaryKey: []string{"log_id"}},
		}, batch.Schema)
		require.Contains(t, batch.Delete, models.TableLogEvents)
		assert.Empty(t, batch.Delete[models.TableLogEvents])
	}
}

func TestHandleBatchWireFormat(t *testing.T) {
	_, srv := serve(t, `{"query": {"logevents": [{"logid": 7}]}}`)
	h := newTestHandler(t)

	batch, err := h.Handle(context.Background(), request(srv.URL, models.State{}))
	require.NoError(t, err)

	out, err := jsonpool.Marshal(batch)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"state": {"last_updated": "2024-05-06T07:08:09Z"},
		"insert": {"logevents": [{"logid": 7}]},
		"delete": {"logevents": []},
		"schema": {"logevents": {"primary_key": ["log_id"]}},
		"hasMore": false
	}`, string(out))
}

func TestHandleContinueWithoutTokenCompletes(t *testing.T) {
	_, srv := serve(t, `{"continue": {"continue": "-||"}}`)
	h := newTestHandler(t)

	batch, err := h.Handle(context.Background(), request(srv.URL, models.State{}))
	require.NoError(t, err)
	assert.False(t, batch.HasMore)
	assert.Equal(t, "2024-05-06T07:08:09Z", batch.State.LastUpdated())
}

func TestHandleDoesNotMutateInputState(t *testing.T) {
	_, srv := serve(t, `{"continue": {"lecontinue": "next"}}`)
	h := newTestHandler(t)

	in := models.State{
		models.StateKeyLastUpdated: "2024-01-01T00:00:00Z",
		"extra":                    "kept",
	}
	batch, err := h.Handle(context.Background(), request(srv.URL, in))
	require.NoError(t, err)

	assert.Equal(t, models.State{
		models.StateKeyLastUpdated: "2024-01-01T00:00:00Z",
		"extra":                    "kept",
	}, in)
	assert.Equal(t, "kept", batch.State["extra"])
	assert.Equal(t, "next", batch.State[models.StateKeyContinue])
}

func TestHandleAPIErrorPayloadIsLoggedAndEmpty(t *testing.T) {
	_, srv := serve(t, `{"error": {"code": "badvalue", "info": "Unrecognized value for parameter \"list\""}}`)

	core, logs := observer.New(zapcore.WarnLevel)
	h := newTestHandler(t, WithLogger(zap.New(core)))

	batch, err := h.Handle(context.Background(), request(srv.URL, models.State{}))
	require.NoError(t, err)
	assert.Empty(t, batch.Insert[models.TableLogEvents])
	assert.False(t, batch.HasMore)

	entries := logs.FilterMessage("upstream returned an API error").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "badvalue", entries[0].ContextMap()["code"])
}

func TestHandleKeepsBaseURLQuery(t *testing.T) {
	up, srv := serve(t, `{}`)
	h := newTestHandler(t)

	_, err := h.Handle(context.Background(), request(srv.URL+"/w/api.php?maxlag=5", models.State{}))
	require.NoError(t, err)

	q := up.lastQuery(t)
	assert.Equal(t, "5", q.Get("maxlag"))
	assert.Equal(t, "logevents", q.Get("list"))
}

func TestHandleConfiguredQuery(t *testing.T) {
	up, srv := serve(t, `{}`)
	h := newTestHandler(t, WithTitle("Main_Page"), WithLimit(50))

	_, err := h.Handle(context.Background(), request(srv.URL, models.State{}))
	require.NoError(t, err)

	q := up.lastQuery(t)
	assert.Equal(t, "Main_Page", q.Get("letitle"))
	assert.Equal(t, "50", q.Get("lelimit"))
}

func TestHandleErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		errType errors.ErrorType
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error": "boom"}`, errType: errors.ErrorTypeUpstream},
		{name: "not found", status: http.StatusNotFound, body: `not here`, errType: errors.ErrorTypeUpstream},
		{name: "malformed json", status: http.StatusOK, body: `{"query": {"logevents": [`, errType: errors.ErrorTypeData},
		{name: "empty body", status: http.StatusOK, body: ``, errType: errors.ErrorTypeData},
		{name: "html body", status: http.StatusOK, body: `<html></html>`, errType: errors.ErrorTypeData},
		{name: "trailing garbage", status: http.StatusOK, body: `{"query": {"logevents": [{"log_id": 1}]}} garbage`, errType: errors.ErrorTypeData},
		{name: "concatenated documents", status: http.StatusOK, body: `{"query": {"logevents": []}}{"continue": {"lecontinue": "X"}}`, errType: errors.ErrorTypeData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &upstream{status: tt.status, body: tt.body}
			srv := httptest.NewServer(up)
			defer srv.Close()

			h := newTestHandler(t)
			batch, err := h.Handle(context.Background(), request(srv.URL, models.State{}))
			require.Error(t, err)
			assert.Nil(t, batch)
			assert.Equal(t, tt.errType, errors.TypeOf(err))
		})
	}
}

func TestHandleMissingBaseURL(t *testing.T) {
	h := newTestHandler(t)

	batch, err := h.Handle(context.Background(), &models.Request{State: models.State{}})
	require.Error(t, err)
	assert.Nil(t, batch)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = h.Handle(context.Background(), request("not a url", models.State{}))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = h.Handle(context.Background(), nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestHandleConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	h := newTestHandler(t)
	_, err := h.Handle(context.Background(), request(baseURL, models.State{}))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.True(t, errors.IsRetryable(err))
}

func TestHandleRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	h := newTestHandler(t, WithRequestTimeout(50*time.Millisecond))
	batch, err := h.Handle(context.Background(), request(srv.URL, models.State{}))
	require.Error(t, err)
	assert.Nil(t, batch)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestHandleConcurrentCallsAreIndependent(t *testing.T) {
	_, srv := serve(t, threeEvents)
	h := newTestHandler(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			state := models.State{"worker": i}
			batch, err := h.Handle(context.Background(), request(srv.URL, state))
			assert.NoError(t, err)
			assert.Equal(t, i, batch.State["worker"])
			assert.Len(t, batch.Insert[models.TableLogEvents], 3)
		}(i)
	}
	wg.Wait()
}
