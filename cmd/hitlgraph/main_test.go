package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dshills/hitlgraph/config"
	"github.com/dshills/hitlgraph/jira"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writers of a run.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	out := &syncBuffer{}
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "none.yaml")))
	err := root.Execute()
	return out.String(), err
}

func TestResearchCommand(t *testing.T) {
	out, err := execute(t, "no\nyes\n", "research", "Go")
	require.NoError(t, err)

	assert.Contains(t, out, "I am doing some research on the subject of 'Go'")
	assert.Contains(t, out, "The human has rejected the research, retrying")
	assert.Contains(t, out, "Is the research good enough? (yes/no): ")
	assert.Contains(t, out, "Final result: This is a report on Go")
}

func TestResearchCommand_InputEnds(t *testing.T) {
	_, err := execute(t, "no\n", "research", "Go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange closed")
}

func TestResearchCommand_SQLiteResume(t *testing.T) {
	db := "sqlite:" + filepath.Join(t.TempDir(), "steps.db")

	_, err := execute(t, "", "research", "Go", "--run-id", "r1", "--store", db)
	require.Error(t, err, "no answer available")

	out, err := execute(t, "yes\n", "research", "--resume", "--run-id", "r1", "--store", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Final result: This is a report on Go")

	out, err = execute(t, "", "research", "--resume", "--run-id", "r1", "--store", db)
	require.NoError(t, err, "a finished run needs no reviewer")
	assert.Contains(t, out, "Final result: This is a report on Go")
	assert.NotContains(t, out, "Is the research good enough?")

	_, err = execute(t, "", "research", "--resume")
	assert.Error(t, err)
}

func TestWorklogCommand(t *testing.T) {
	var got jira.Worklog
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/issue/SWD-3114/worklog", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	t.Setenv("JIRA_USER", "me@example.com")
	t.Setenv("JIRA_API_TOKEN", "secret")

	out, err := execute(t, "", "worklog", "SWD-3114", "8h", "line one", `with "quotes"`,
		"--base-url", server.URL, "--started", "2025-03-07T08:00:00.000+0800")
	require.NoError(t, err)
	assert.Contains(t, out, "Worklog added to SWD-3114")
	assert.Equal(t, []string{"line one", `with "quotes"`}, got.Comments())
	assert.Equal(t, "2025-03-07T08:00:00.000+0800", got.Started)
}

func TestWorklogCommand_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("nope"))
	}))
	defer server.Close()

	t.Setenv("JIRA_USER", "u")
	t.Setenv("JIRA_API_TOKEN", "t")

	_, err := execute(t, "", "worklog", "X-1", "1h", "--base-url", server.URL)
	var statusErr *jira.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)

	_, err = execute(t, "", "worklog", "X-1", "1h", "--base-url", server.URL, "--started", "yesterday")
	assert.Error(t, err)
}

func TestToolsCommand(t *testing.T) {
	out, err := execute(t, "", "tools", "list")
	require.NoError(t, err)
	for _, name := range []string{"get_current_datetime", "get_user_info", "get_ipinfo", "run_hitl_workflow"} {
		assert.Contains(t, out, name)
	}

	t.Setenv("LLM_AGENT_VAR_USERNAME", "laurie")
	t.Setenv("LLM_AGENT_VAR_ADDRESS", "")
	out, err = execute(t, "", "tools", "call", "get_user_info")
	require.NoError(t, err)
	assert.Equal(t, "User: laurie, Address: \n", out)

	_, err = execute(t, "", "tools", "call", "nope")
	assert.Error(t, err)
}

func TestNewChatModel(t *testing.T) {
	for _, provider := range []string{"openai", "groq", "anthropic", "google"} {
		t.Run(provider, func(t *testing.T) {
			cfg := config.LLMConfig{
				Provider:        provider,
				OpenAIAPIKey:    "o",
				GroqAPIKey:      "g",
				AnthropicAPIKey: "a",
				GoogleAPIKey:    "k",
			}
			m, err := newChatModel(cfg, true)
			require.NoError(t, err)
			assert.NotNil(t, m)
		})
	}

	_, err := newChatModel(config.LLMConfig{Provider: "openai"}, false)
	assert.Error(t, err, "missing key")
	_, err = newChatModel(config.LLMConfig{Provider: "other", OpenAIAPIKey: "x"}, false)
	assert.Error(t, err)
}
