// Package testutil provides testing utilities for the logevents connector,
// most notably a scripted fake of the MediaWiki log-events API.
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// Page is one scripted upstream answer
type Page struct {
	// Events are raw JSON log events
	Events []string
	// Continue, when set, is returned as continue.lecontinue
	Continue string
	// Status overrides 200
	Status int
	// Body replaces the generated body entirely
	Body string
}

// Upstream is a fake log-events API. It answers call n with page n and
// keeps answering with the last page once the script runs out.
type Upstream struct {
	*httptest.Server

	mu      sync.Mutex
	pages   []Page
	queries []url.Values
}

// NewUpstream starts a fake upstream that is closed when the test ends
func NewUpstream(t testing.TB, pages ...Page) *Upstream {
	if len(pages) == 0 {
		pages = []Page{{}}
	}
	u := &Upstream{pages: pages}
	u.Server = httptest.NewServer(http.HandlerFunc(u.serve))
	t.Cleanup(u.Close)
	return u
}

func (u *Upstream) serve(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	n := len(u.queries)
	u.queries = append(u.queries, r.URL.Query())
	if n >= len(u.pages) {
		n = len(u.pages) - 1
	}
	page := u.pages[n]
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if page.Status != 0 {
		w.WriteHeader(page.Status)
	}
	if page.Body != "" {
		fmt.Fprint(w, page.Body)
		return
	}
	fmt.Fprint(w, RenderPage(page.Events, page.Continue))
}

// Queries returns the query strings received so far
func (u *Upstream) Queries() []url.Values {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]url.Values, len(u.queries))
	copy(out, u.queries)
	return out
}

// Calls returns the number of requests received
func (u *Upstream) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.queries)
}

// RenderPage builds a MediaWiki query response body
func RenderPage(events []string, continuation string) string {
	var b strings.Builder
	b.WriteString(`{"batchcomplete":""`)
	if continuation != "" {
		fmt.Fprintf(&b, `,"continue":{"lecontinue":%q,"continue":"-||"}`, continuation)
	}
	b.WriteString(`,"query":{"logevents":[`)
	b.WriteString(strings.Join(events, ","))
	b.WriteString(`]}}`)
	return b.String()
}

// LogEvent returns a realistic raw log event with the given ID
func LogEvent(id int) string {
	return fmt.Sprintf(`{"logid":%d,"ns":0,"title":"Data","pageid":1,"logpage":1,"params":{},"type":"edit","action":"edit","user":"Example","timestamp":"2024-01-01T00:00:%02dZ","comment":"event %d"}`,
		id, id%60, id)
}

// LogEvents returns raw log events for ids
func LogEvents(ids ...int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = LogEvent(id)
	}
	return out
}
