// Package google adapts Gemini models (generative-ai-go) to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/hitlgraph/graph/model"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ChatModel implements model.ChatModel for Gemini.
//
// The last user or tool turn is sent; earlier turns become chat history.
type ChatModel struct {
	modelName string
	jsonMode  bool
	client    googleClient
}

type googleClient interface {
	generateContent(ctx context.Context, req request) (*genai.GenerateContentResponse, error)
}

// request is one Gemini call in SDK terms.
type request struct {
	system   string
	history  []*genai.Content
	parts    []genai.Part
	tools    []*genai.Tool
	jsonMode bool
}

// Option configures a ChatModel.
type Option func(*ChatModel)

// WithJSONResponse asks Gemini to reply with application/json, which suits
// model.StructuredPredict.
func WithJSONResponse() Option {
	return func(m *ChatModel) { m.jsonMode = true }
}

// NewChatModel creates an adapter for modelName ("gemini-2.5-flash" when empty).
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	m := &ChatModel{
		modelName: modelName,
		client:    &defaultClient{apiKey: apiKey, modelName: modelName},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	req, err := buildRequest(messages, tools)
	if err != nil {
		return model.ChatOut{}, err
	}
	req.jsonMode = m.jsonMode

	resp, err := m.client.generateContent(ctx, req)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return model.ChatOut{}, &SafetyFilterError{cause: blocked}
		}
		return model.ChatOut{}, fmt.Errorf("google generate content: %w", err)
	}
	return convertResponse(resp), nil
}

func buildRequest(messages []model.Message, tools []model.ToolSpec) (request, error) {
	var req request
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			if req.system != "" {
				req.system += "\n\n"
			}
			req.system += msg.Content
		case model.RoleAssistant:
			c := &genai.Content{Role: "model"}
			if msg.Content != "" {
				c.Parts = append(c.Parts, genai.Text(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				c.Parts = append(c.Parts, genai.FunctionCall{Name: call.Name, Args: call.Input})
			}
			contents = append(contents, c)
		case model.RoleTool:
			part := genai.FunctionResponse{
				Name:     msg.Name,
				Response: map[string]any{"result": msg.Content},
			}
			// Consecutive tool results share one user turn.
			if n := len(contents); n > 0 && contents[n-1].Role == "user" && isFunctionResponses(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{part}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}

	if len(contents) == 0 || contents[len(contents)-1].Role != "user" {
		return request{}, errors.New("google: conversation must end with a user or tool turn")
	}
	req.history = contents[:len(contents)-1]
	req.parts = contents[len(contents)-1].Parts

	if len(tools) > 0 {
		req.tools = convertTools(tools)
	}
	return req, nil
}

func isFunctionResponses(c *genai.Content) bool {
	for _, p := range c.Parts {
		if _, ok := p.(genai.FunctionResponse); !ok {
			return false
		}
	}
	return len(c.Parts) > 0
}

func convertTools(tools []model.ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, tool := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  convertSchema(tool.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertSchema maps the JSON Schema subset used by tool specs.
func convertSchema(schema map[string]interface{}) *genai.Schema {
	if len(schema) == 0 {
		return nil
	}

	result := &genai.Schema{Type: genai.TypeObject}
	if typeStr, ok := schema["type"].(string); ok {
		result.Type = convertTypeString(typeStr)
	}
	if desc, ok := schema["description"].(string); ok {
		result.Description = desc
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok && len(props) > 0 {
		result.Properties = make(map[string]*genai.Schema, len(props))
		for key, val := range props {
			if propMap, ok := val.(map[string]interface{}); ok {
				result.Properties[key] = convertSchema(propMap)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		result.Items = convertSchema(items)
	}
	switch required := schema["required"].(type) {
	case []string:
		result.Required = required
	case []interface{}:
		for _, v := range required {
			if s, ok := v.(string); ok {
				result.Required = append(result.Required, s)
			}
		}
	}
	return result
}

func convertTypeString(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

func convertResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	out := model.ChatOut{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				// Gemini has no call IDs; the function name links the response.
				ID:    p.Name,
				Name:  p.Name,
				Input: p.Args,
			})
		}
	}
	return out
}

// SafetyFilterError reports a prompt or reply blocked by Gemini's safety filters.
type SafetyFilterError struct {
	cause *genai.BlockedError
}

func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.cause.Error()
}

func (e *SafetyFilterError) Unwrap() error {
	return e.cause
}

type defaultClient struct {
	apiKey    string
	modelName string
}

func (c *defaultClient) generateContent(ctx context.Context, req request) (*genai.GenerateContentResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("google API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	defer client.Close()

	genModel := client.GenerativeModel(c.modelName)
	if req.system != "" {
		genModel.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.system)}}
	}
	if len(req.tools) > 0 {
		genModel.Tools = req.tools
	}
	if req.jsonMode {
		genModel.ResponseMIMEType = "application/json"
	}

	session := genModel.StartChat()
	session.History = req.history
	return session.SendMessage(ctx, req.parts...)
}
