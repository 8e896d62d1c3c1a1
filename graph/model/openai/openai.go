// Package openai adapts OpenAI-compatible chat completion APIs to
// model.ChatModel. Groq and other compatible services work through
// WithBaseURL.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dshills/hitlgraph/graph/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// GroqBaseURL is the OpenAI-compatible endpoint of Groq.
const GroqBaseURL = "https://api.groq.com/openai/v1/"

// ChatModel implements model.ChatModel on the chat completions API.
//
// Transient failures (429, 5xx, network) are retried with a linear backoff.
type ChatModel struct {
	modelName  string
	client     openaiClient
	maxRetries int
	retryDelay time.Duration
}

// openaiClient is the slice of the SDK the adapter uses; tests replace it.
type openaiClient interface {
	createChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// Option configures a ChatModel.
type Option func(*config)

type config struct {
	baseURL    string
	maxRetries int
	retryDelay time.Duration
}

// WithBaseURL points the client at an OpenAI-compatible service.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithRetries sets the retry budget for transient failures.
func WithRetries(n int, delay time.Duration) Option {
	return func(c *config) {
		c.maxRetries = n
		c.retryDelay = delay
	}
}

// NewChatModel creates an adapter for modelName ("gpt-4o-mini" when empty).
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	cfg := config{maxRetries: 3, retryDelay: time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(reqOpts...)

	return &ChatModel{
		modelName:  modelName,
		client:     &sdkClient{client: &client},
		maxRetries: cfg.maxRetries,
		retryDelay: cfg.retryDelay,
	}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	params := buildParams(m.modelName, messages, tools)

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		completion, err := m.client.createChatCompletion(ctx, params)
		if err == nil {
			return convertResponse(completion)
		}
		lastErr = err

		if !isTransientError(err) || attempt >= m.maxRetries {
			break
		}

		select {
		case <-time.After(m.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return model.ChatOut{}, ctx.Err()
		}
	}

	return model.ChatOut{}, fmt.Errorf("openai chat completion: %w", lastErr)
}

func buildParams(modelName string, messages []model.Message, tools []model.ToolSpec) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelName),
		Messages: convertMessages(messages),
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(schemaOrEmpty(t.Schema)),
			},
		})
	}
	return params
}

func schemaOrEmpty(schema map[string]interface{}) map[string]interface{} {
	if schema != nil {
		return schema
	}
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case model.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			for _, call := range msg.ToolCalls {
				args := []byte("{}")
				if len(call.Input) > 0 {
					args, _ = json.Marshal(call.Input)
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func convertResponse(completion *openai.ChatCompletion) (model.ChatOut, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return model.ChatOut{}, errors.New("openai: empty response")
	}

	msg := completion.Choices[0].Message
	out := model.ChatOut{Text: msg.Content}
	for _, call := range msg.ToolCalls {
		var input map[string]interface{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
				return model.ChatOut{}, fmt.Errorf("openai: tool %s arguments: %w", call.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: input,
		})
	}
	return out, nil
}

// isTransientError reports whether err is worth retrying.
func isTransientError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr)
}

type sdkClient struct {
	client *openai.Client
}

func (c *sdkClient) createChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
