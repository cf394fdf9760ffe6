package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jsonpool "github.com/ajitpratap0/logevents/pkg/json"
	"github.com/ajitpratap0/logevents/pkg/models"
	"github.com/ajitpratap0/logevents/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionAndList(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "logevents v")

	out, err = run(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "- logevents")
}

func TestInvokePrintsBatch(t *testing.T) {
	up := testutil.NewUpstream(t, testutil.Page{Events: []string{`{"logid": 9}`}, Continue: "n"})

	out, err := run(t, "", "invoke", "--log-level", "error", "--base-url", up.URL,
		"--state", `{"last_updated": "2024-01-01T00:00:00Z"}`)
	require.NoError(t, err)
	require.Equal(t, 1, up.Calls())
	assert.Equal(t, "2024-01-01T00:00:00Z", up.Queries()[0].Get("lestart"))

	var batch models.SyncBatch
	require.NoError(t, jsonpool.Unmarshal([]byte(out), &batch))
	assert.True(t, batch.HasMore)
	assert.Equal(t, "n", batch.State[models.StateKeyContinue])
	assert.Len(t, batch.Insert[models.TableLogEvents], 1)
}

func TestInvokeReadsRequestFromStdin(t *testing.T) {
	up := testutil.NewUpstream(t, testutil.Page{Body: `{}`})

	stdin := fmt.Sprintf(`{"state": {}, "secrets": {"BASE_URL": %q}}`, up.URL)
	out, err := run(t, stdin, "invoke", "--log-level", "error", "--request", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `"hasMore": false`)
}

func TestInvokeFailsWithoutBaseURL(t *testing.T) {
	t.Setenv("BASE_URL", "")
	t.Setenv("LOGEVENTS_SECRETS_BASE_URL", "")
	_, err := run(t, "", "invoke", "--log-level", "error")
	assert.Error(t, err)
}

func TestSyncWritesFileAndState(t *testing.T) {
	up := testutil.NewUpstream(t,
		testutil.Page{Events: []string{`{"logid": 1}`}, Continue: "p2"},
		testutil.Page{Events: []string{`{"logid": 2}`}},
	)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "logevents.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
sink:
  type: file
  directory: %s
state_store:
  type: file
  path: %s
`, filepath.Join(dir, "out"), filepath.Join(dir, "state.json"))), 0o644))

	out, err := run(t, "", "sync", "--config", cfgPath, "--log-level", "error", "--base-url", up.URL)
	require.NoError(t, err)
	assert.Contains(t, out, `"complete": true`)
	assert.Contains(t, out, `"invocations": 2`)
	assert.Equal(t, "p2", up.Queries()[1].Get("lecontinue"))

	files, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(filepath.Join(dir, "out", files[0].Name()))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"logid": 1}, {"logid": 2}]`, string(data))

	stateData, err := os.ReadFile(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	assert.Contains(t, string(stateData), `"last_updated"`)
	assert.NotContains(t, string(stateData), `"continue"`)
}

func TestReadRequest(t *testing.T) {
	req, err := readRequest(strings.NewReader(""), "", "")
	require.NoError(t, err)
	assert.Equal(t, models.State{}, req.State)

	_, err = readRequest(strings.NewReader(""), "", "{bad")
	assert.Error(t, err)

	_, err = readRequest(strings.NewReader(""), filepath.Join(t.TempDir(), "missing.json"), "")
	assert.Error(t, err)
}
