package confirm

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/hitlgraph/graph/emit"
	"github.com/dshills/hitlgraph/graph/model"
	"github.com/dshills/hitlgraph/graph/tool"
	"github.com/dshills/hitlgraph/hitl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dangerousCall(id string) model.ChatOut {
	return model.ChatOut{ToolCalls: []model.ToolCall{{ID: id, Name: "dangerous_task"}}}
}

func answerWith(t *testing.T, ex *hitl.Exchange, answer string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hitl.ServeFunc(ctx, ex, func(hitl.Request) string { return answer })
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestWorkflow_Confirmation(t *testing.T) {
	tests := []struct {
		answer     string
		wantResult string
	}{
		{"yes", TaskCompleted},
		{"  YES", TaskCompleted},
		{"no", TaskAborted},
		{"maybe", TaskAborted},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			ex := hitl.NewExchange()
			defer ex.Close()
			answerWith(t, ex, tt.answer)

			chat := &model.MockChatModel{Responses: []model.ChatOut{
				dangerousCall("call-1"),
				{Text: "All done."},
			}}
			em := emit.NewBufferedEmitter()
			wf, err := New(chat, ex, em)
			require.NoError(t, err)

			answer, err := wf.Run(context.Background(), "run-1", "")
			require.NoError(t, err)
			assert.Equal(t, "All done.", answer)

			require.Equal(t, 2, chat.CallCount())
			first := chat.Calls[0]
			require.Len(t, first.Messages, 2)
			assert.Equal(t, DefaultSystemPrompt, first.Messages[0].Content)
			assert.Equal(t, DefaultUserMessage, first.Messages[1].Content)
			require.Len(t, first.Tools, 1)
			assert.Equal(t, "dangerous_task", first.Tools[0].Name)

			second := chat.Calls[1].Messages
			toolMsg := second[len(second)-1]
			assert.Equal(t, model.RoleTool, toolMsg.Role)
			assert.Equal(t, "call-1", toolMsg.ToolCallID)
			assert.Equal(t, tt.wantResult, toolMsg.Content)

			calls := em.GetHistoryWithFilter("run-1", emit.HistoryFilter{Msg: emit.MsgToolCall})
			require.Len(t, calls, 1)
			assert.Equal(t, "dangerous_task", calls[0].Meta["tool"])
		})
	}
}

func TestWorkflow_AsksNamedUser(t *testing.T) {
	ex := hitl.NewExchange()
	defer ex.Close()

	keys := make(chan string, 1)
	go func() {
		req := <-ex.Requests()
		keys <- req.Key
		assert.Equal(t, ConfirmPrompt, req.Prompt)
		_ = ex.Submit(req.Key, "yes")
	}()

	chat := &model.MockChatModel{Responses: []model.ChatOut{dangerousCall("1"), {Text: "ok"}}}
	wf, err := New(chat, ex, nil, WithUserName("alice"))
	require.NoError(t, err)

	_, err = wf.Run(context.Background(), "run-2", "do it")
	require.NoError(t, err)
	assert.Equal(t, "alice", <-keys)
}

func TestWorkflow_NoToolCalls(t *testing.T) {
	ex := hitl.NewExchange()
	defer ex.Close()

	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "I won't do that."}}}
	wf, err := New(chat, ex, nil)
	require.NoError(t, err)

	answer, err := wf.Run(context.Background(), "run-3", "")
	require.NoError(t, err)
	assert.Equal(t, "I won't do that.", answer)
	assert.Empty(t, ex.Pending())
}

func TestWorkflow_TooManyToolRounds(t *testing.T) {
	ex := hitl.NewExchange()
	defer ex.Close()
	answerWith(t, ex, "yes")

	chat := &model.MockChatModel{Responses: []model.ChatOut{dangerousCall("loop")}}
	wf, err := New(chat, ex, nil, WithMaxToolRounds(2))
	require.NoError(t, err)

	_, err = wf.Run(context.Background(), "run-4", "")
	assert.ErrorIs(t, err, ErrTooManyToolRounds)
	assert.Equal(t, 3, chat.CallCount())
}

func TestWorkflow_ToolErrorsReachModel(t *testing.T) {
	ex := hitl.NewExchange()
	defer ex.Close()

	failing := &tool.MockTool{ToolName: "flaky", Err: errors.New("backend unavailable")}
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{ToolCalls: []model.ToolCall{{ID: "1", Name: "flaky"}, {ID: "2", Name: "missing"}}},
		{Text: "Sorry, the tools failed."},
	}}
	wf, err := New(chat, ex, nil, WithTools(failing))
	require.NoError(t, err)

	answer, err := wf.Run(context.Background(), "run-5", "")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, the tools failed.", answer)

	msgs := chat.Calls[1].Messages
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Contains(t, msgs[len(msgs)-2].Content, "backend unavailable")
	assert.Contains(t, msgs[len(msgs)-1].Content, "unknown tool")
}

func TestWorkflow_ChatError(t *testing.T) {
	ex := hitl.NewExchange()
	defer ex.Close()

	boom := errors.New("rate limited")
	wf, err := New(&model.MockChatModel{Err: boom}, ex, nil)
	require.NoError(t, err)

	_, err = wf.Run(context.Background(), "run-6", "")
	assert.ErrorIs(t, err, boom)
}

func TestWorkflow_ExchangeClosedAborts(t *testing.T) {
	ex := hitl.NewExchange()
	go func() {
		<-ex.Requests()
		_ = ex.Close()
	}()

	chat := &model.MockChatModel{Responses: []model.ChatOut{dangerousCall("1"), {Text: "unreachable"}}}
	wf, err := New(chat, ex, nil)
	require.NoError(t, err)

	_, err = wf.Run(context.Background(), "run-7", "")
	assert.ErrorIs(t, err, hitl.ErrClosed)
	assert.Equal(t, 1, chat.CallCount())
}

func TestNew_Validation(t *testing.T) {
	ex := hitl.NewExchange()
	defer ex.Close()

	_, err := New(nil, ex, nil)
	assert.Error(t, err)
	_, err = New(&model.MockChatModel{}, nil, nil)
	assert.Error(t, err)
}
