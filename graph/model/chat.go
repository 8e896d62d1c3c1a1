// Package model defines the chat model abstraction workflows talk to.
//
// Provider adapters live in subpackages (openai, anthropic, google); tests
// use MockChatModel.
package model

import "context"

// ChatModel is a conversational language model that may request tool calls.
//
// Implementations must honor ctx cancellation and be safe for concurrent use.
type ChatModel interface {
	// Chat sends the conversation and the tools the model may call.
	// tools may be nil.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCalls are the calls requested by an assistant turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a RoleTool message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name on RoleTool messages.
	Name string `json:"name,omitempty"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolSpec describes a tool the model may call.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// Schema is a JSON Schema object describing the tool input.
	Schema map[string]interface{} `json:"schema,omitempty"`
}

// ChatOut is the model's reply: text, tool calls, or both.
type ChatOut struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a model's request to invoke a tool.
type ToolCall struct {
	// ID is the provider's call identifier, echoed back in the tool result.
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input,omitempty"`
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant records a model reply as a conversation turn.
func Assistant(out ChatOut) Message {
	return Message{Role: RoleAssistant, Content: out.Text, ToolCalls: out.ToolCalls}
}

// ToolResult answers call with content.
func ToolResult(call ToolCall, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: call.ID, Name: call.Name}
}
