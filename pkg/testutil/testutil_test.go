package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstreamFollowsScript(t *testing.T) {
	u := NewUpstream(t,
		Page{Events: LogEvents(1, 2), Continue: "c"},
		Page{Status: http.StatusServiceUnavailable, Body: "busy"},
		Page{Events: LogEvents(3)},
	)

	get := func(query string) (int, string) {
		resp, err := http.Get(u.URL + "?" + query)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	status, body := get("lestart=a")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, json.Valid([]byte(body)))
	assert.Contains(t, body, `"lecontinue":"c"`)

	status, body = get("lestart=b")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "busy", body)

	get("lestart=c")
	_, body = get("lestart=d")
	assert.Contains(t, body, `"logid":3`)

	assert.Equal(t, 4, u.Calls())
	assert.Equal(t, "b", u.Queries()[1].Get("lestart"))
}

func TestRenderPage(t *testing.T) {
	var v map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(RenderPage(nil, "")), &v))
	assert.NotContains(t, v, "continue")

	require.NoError(t, json.Unmarshal([]byte(RenderPage(LogEvents(1, 2, 3), "x")), &v))
	events := v["query"].(map[string]interface{})["logevents"].([]interface{})
	assert.Len(t, events, 3)
}
