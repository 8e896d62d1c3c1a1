// Package anthropic adapts the Anthropic Messages API to model.ChatModel.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dshills/hitlgraph/graph/model"
)

// DefaultMaxTokens caps reply length when none is configured.
const DefaultMaxTokens = 1024

// ChatModel implements model.ChatModel for Claude models.
//
// System messages are lifted into the request's system prompt; consecutive
// tool results are grouped into one user turn as the API requires.
type ChatModel struct {
	modelName string
	maxTokens int64
	client    anthropicClient
}

type anthropicClient interface {
	createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// NewChatModel creates an adapter for modelName
// ("claude-3-5-haiku-latest" when empty).
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = "claude-3-5-haiku-latest"
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ChatModel{
		modelName: modelName,
		maxTokens: DefaultMaxTokens,
		client:    &sdkClient{client: &client},
	}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	params := m.buildParams(messages, tools)
	msg, err := m.client.createMessage(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("anthropic messages: %w", err)
	}
	return convertResponse(msg)
}

func (m *ChatModel) buildParams(messages []model.Message, tools []model.ToolSpec) anthropic.MessageNewParams {
	system, conversation := extractSystemPrompt(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: m.maxTokens,
		Messages:  convertMessages(conversation),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: convertTool(t)})
	}
	return params
}

func convertTool(t model.ToolSpec) *anthropic.ToolParam {
	var props interface{} = map[string]interface{}{}
	if p, ok := t.Schema["properties"]; ok {
		props = p
	}
	return &anthropic.ToolParam{
		Name:        t.Name,
		Description: anthropic.String(t.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: props,
			Required:   requiredFields(t.Schema["required"]),
		},
	}
}

// requiredFields accepts the "required" list as written in Go or decoded
// from JSON.
func requiredFields(v interface{}) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func extractSystemPrompt(messages []model.Message) (string, []model.Message) {
	var systemPrompt string
	var conversation []model.Message

	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
			continue
		}
		conversation = append(conversation, msg)
	}
	return systemPrompt, conversation
}

func convertMessages(messages []model.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var toolResults []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(toolResults) > 0 {
			out = append(out, anthropic.NewUserMessage(toolResults...))
			toolResults = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleTool:
			toolResults = append(toolResults, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		case model.RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				input := call.Input
				if input == nil {
					input = map[string]interface{}{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	flush()
	return out
}

func convertResponse(msg *anthropic.Message) (model.ChatOut, error) {
	var out model.ChatOut
	if msg == nil {
		return out, nil
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += block.Text
		case "tool_use":
			var input map[string]interface{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &input); err != nil {
					return model.ChatOut{}, fmt.Errorf("anthropic: tool %s input: %w", block.Name, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: input,
			})
		}
	}
	return out, nil
}

type sdkClient struct {
	client *anthropic.Client
}

func (c *sdkClient) createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return c.client.Messages.New(ctx, params)
}
