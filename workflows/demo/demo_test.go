package demo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dshills/hitlgraph/graph/model"
	"github.com/dshills/hitlgraph/graph/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatetimeWorkflow(t *testing.T) {
	fixed := time.Date(2025, 3, 7, 8, 0, 1, 0, time.UTC)
	wf, err := NewDatetimeWorkflow(nil, func() time.Time { return fixed })
	require.NoError(t, err)

	got, err := wf.Run(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-07 08:00:01", got)
}

func TestToolbox_Datetime(t *testing.T) {
	reg := Toolbox{}.Registry()
	got, err := reg.Execute(context.Background(), model.ToolCall{Name: "get_current_datetime"})
	require.NoError(t, err)
	_, err = time.Parse(DatetimeLayout, got)
	assert.NoError(t, err)
}

func TestToolbox_UserInfo(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"both set", map[string]string{EnvUserName: "laurie", EnvAddress: "Taipei"}, "User: laurie, Address: Taipei"},
		{"missing", map[string]string{}, "User: , Address: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := Toolbox{Getenv: func(k string) string { return tt.env[k] }}
			got, err := tb.Registry().Execute(context.Background(), model.ToolCall{Name: "get_user_info"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToolbox_IPInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if r.URL.Path != "/ip" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"origin": "203.0.113.7"}`))
	}))
	defer server.Close()

	tb := Toolbox{HTTP: tool.NewHTTPToolWithClient(server.Client()), IPInfoURL: server.URL + "/ip"}
	got, err := tb.Registry().Execute(context.Background(), model.ToolCall{Name: "get_ipinfo"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"origin": "203.0.113.7"}`, got)

	tb.IPInfoURL = server.URL + "/missing"
	_, err = tb.Registry().Execute(context.Background(), model.ToolCall{Name: "get_ipinfo"})
	assert.ErrorContains(t, err, "unexpected status 404")
}

func TestToolbox_RunHITL(t *testing.T) {
	assert.Len(t, Toolbox{}.Registry().Specs(), 3, "run_hitl_workflow omitted without a runner")

	var gotRunID string
	tb := Toolbox{RunHITL: func(_ context.Context, runID string) (string, error) {
		gotRunID = runID
		return "Dangerous task completed successfully.", nil
	}}
	reg := tb.Registry()
	assert.Len(t, reg.Specs(), 4)

	got, err := reg.Execute(context.Background(), model.ToolCall{Name: "run_hitl_workflow"})
	require.NoError(t, err)
	assert.Equal(t, "Dangerous task completed successfully.", got)
	assert.NotEmpty(t, gotRunID)

	boom := errors.New("no terminal")
	tb.RunHITL = func(context.Context, string) (string, error) { return "", boom }
	_, err = tb.Registry().Execute(context.Background(), model.ToolCall{Name: "run_hitl_workflow"})
	assert.ErrorIs(t, err, boom)
}
