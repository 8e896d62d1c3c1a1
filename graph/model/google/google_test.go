package google

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/hitlgraph/graph/model"
	"github.com/google/generative-ai-go/genai"
)

type fakeClient struct {
	resp *genai.GenerateContentResponse
	err  error
	reqs []request
}

func (f *fakeClient) generateContent(_ context.Context, req request) (*genai.GenerateContentResponse, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func reply(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}}}
}

func TestChatModel_Text(t *testing.T) {
	fake := &fakeClient{resp: reply(genai.Text(`{"plot":"A storm rolls in.",`), genai.Text(`"actions":["hide"]}`))}
	m := &ChatModel{modelName: "gemini-test", jsonMode: true, client: fake}

	out, err := m.Chat(context.Background(), []model.Message{
		model.System("You are a storyteller."),
		model.User("Begin."),
	}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.Text != "{\"plot\":\"A storm rolls in.\",\n\"actions\":[\"hide\"]}" {
		t.Errorf("Text = %q", out.Text)
	}

	req := fake.reqs[0]
	if req.system != "You are a storyteller." || !req.jsonMode || len(req.history) != 0 || len(req.parts) != 1 {
		t.Errorf("request = %+v", req)
	}
}

func TestChatModel_FunctionCall(t *testing.T) {
	fake := &fakeClient{resp: reply(genai.FunctionCall{Name: "get_ipinfo", Args: map[string]any{}})}
	m := &ChatModel{client: fake}

	out, err := m.Chat(context.Background(), []model.Message{model.User("Where am I?")},
		[]model.ToolSpec{{Name: "get_ipinfo", Description: "Public IP"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "get_ipinfo" || out.ToolCalls[0].ID != "get_ipinfo" {
		t.Errorf("ToolCalls = %+v", out.ToolCalls)
	}
	if len(fake.reqs[0].tools) != 1 || fake.reqs[0].tools[0].FunctionDeclarations[0].Name != "get_ipinfo" {
		t.Errorf("tools = %+v", fake.reqs[0].tools)
	}
}

func TestBuildRequest_History(t *testing.T) {
	call := model.ToolCall{ID: "get_user_info", Name: "get_user_info"}
	req, err := buildRequest([]model.Message{
		model.User("who am I?"),
		model.Assistant(model.ChatOut{ToolCalls: []model.ToolCall{call}}),
		model.ToolResult(call, `{"username":"laurie"}`),
	}, nil)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}

	if len(req.history) != 2 || req.history[0].Role != "user" || req.history[1].Role != "model" {
		t.Fatalf("history = %+v", req.history)
	}
	if len(req.parts) != 1 {
		t.Fatalf("parts = %+v", req.parts)
	}
	fr, ok := req.parts[0].(genai.FunctionResponse)
	if !ok || fr.Name != "get_user_info" || fr.Response["result"] != `{"username":"laurie"}` {
		t.Errorf("function response = %#v", req.parts[0])
	}
}

func TestBuildRequest_MustEndWithUser(t *testing.T) {
	_, err := buildRequest([]model.Message{model.User("hi"), model.Assistant(model.ChatOut{Text: "hello"})}, nil)
	if err == nil {
		t.Error("expected error for trailing assistant turn")
	}
}

func TestConvertSchema(t *testing.T) {
	s := convertSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"actions": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"plot": map[string]interface{}{"type": "string", "description": "story text"},
		},
		"required": []interface{}{"plot"},
	})

	if s.Type != genai.TypeObject || len(s.Properties) != 2 {
		t.Fatalf("schema = %+v", s)
	}
	if s.Properties["actions"].Items.Type != genai.TypeString {
		t.Errorf("items = %+v", s.Properties["actions"].Items)
	}
	if s.Properties["plot"].Description != "story text" {
		t.Errorf("plot = %+v", s.Properties["plot"])
	}
	if len(s.Required) != 1 || s.Required[0] != "plot" {
		t.Errorf("required = %v", s.Required)
	}
	if convertSchema(nil) != nil {
		t.Error("nil schema should map to nil")
	}
}

func TestChatModel_Errors(t *testing.T) {
	boom := errors.New("quota")
	m := &ChatModel{client: &fakeClient{err: boom}}
	if _, err := m.Chat(context.Background(), []model.Message{model.User("hi")}, nil); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}

	blocked := &genai.BlockedError{}
	m = &ChatModel{client: &fakeClient{err: blocked}}
	_, err := m.Chat(context.Background(), []model.Message{model.User("hi")}, nil)
	var safety *SafetyFilterError
	if !errors.As(err, &safety) {
		t.Errorf("err = %v, want SafetyFilterError", err)
	}
}

func TestDefaultClient_RequiresKey(t *testing.T) {
	m := NewChatModel("", "")
	if _, err := m.Chat(context.Background(), []model.Message{model.User("hi")}, nil); err == nil {
		t.Error("expected missing key error")
	}
}
