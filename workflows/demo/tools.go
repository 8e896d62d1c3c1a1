package demo

import (
	"context"
	"fmt"
	"os"

	"github.com/dshills/hitlgraph/graph/tool"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IPInfoURL is queried by the get_ipinfo tool.
const IPInfoURL = "https://httpbin.org/ip"

// Environment variables read by get_user_info.
const (
	EnvUserName = "LLM_AGENT_VAR_USERNAME"
	EnvAddress  = "LLM_AGENT_VAR_ADDRESS"
)

// Toolbox builds the demo tools.
type Toolbox struct {
	// Getenv reads environment variables. Defaults to os.Getenv.
	Getenv func(string) string

	// HTTP performs the get_ipinfo request. Defaults to tool.NewHTTPTool().
	HTTP tool.Tool

	// IPInfoURL overrides the get_ipinfo endpoint.
	IPInfoURL string

	// RunHITL runs the confirmation workflow for run_hitl_workflow.
	// The tool is omitted when nil.
	RunHITL func(ctx context.Context, runID string) (string, error)

	Logger *zap.Logger
}

// Registry returns a registry holding every configured tool.
func (tb Toolbox) Registry() *tool.Registry {
	tools := []tool.Tool{
		tb.DatetimeTool(),
		tb.UserInfoTool(),
		tb.IPInfoTool(),
	}
	if tb.RunHITL != nil {
		tools = append(tools, tb.RunHITLTool())
	}
	return tool.NewRegistry(tools...)
}

var emptySchema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}

// DatetimeTool runs the datetime workflow.
func (tb Toolbox) DatetimeTool() *tool.Func {
	return &tool.Func{
		ToolName:    "get_current_datetime",
		Description: "Get current date time",
		Schema:      emptySchema,
		Fn: func(ctx context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
			wf, err := NewDatetimeWorkflow(nil, nil)
			if err != nil {
				return nil, err
			}
			now, err := wf.Run(ctx, uuid.NewString())
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"result": now}, nil
		},
	}
}

// UserInfoTool reports the user name and address from the environment.
// Unset variables render as empty strings.
func (tb Toolbox) UserInfoTool() *tool.Func {
	getenv := tb.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return &tool.Func{
		ToolName:    "get_user_info",
		Description: "Get user information and address",
		Schema:      emptySchema,
		Fn: func(_ context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
			username, address := getenv(EnvUserName), getenv(EnvAddress)
			tb.logger().Debug("user info", zap.String("username", username), zap.String("address", address))
			return map[string]interface{}{"result": fmt.Sprintf("User: %s, Address: %s", username, address)}, nil
		},
	}
}

// IPInfoTool fetches the caller's public IP information.
func (tb Toolbox) IPInfoTool() *tool.Func {
	httpTool := tb.HTTP
	if httpTool == nil {
		httpTool = tool.NewHTTPTool()
	}
	url := tb.IPInfoURL
	if url == "" {
		url = IPInfoURL
	}
	return &tool.Func{
		ToolName:    "get_ipinfo",
		Description: "Get the ip info",
		Schema:      emptySchema,
		Fn: func(ctx context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
			out, err := httpTool.Call(ctx, map[string]interface{}{"url": url, "method": "GET"})
			if err != nil {
				return nil, err
			}
			if code, ok := out["status_code"].(int); ok && (code < 200 || code > 299) {
				return nil, fmt.Errorf("ip info: unexpected status %d", code)
			}
			body, _ := out["body"].(string)
			return map[string]interface{}{"result": body}, nil
		},
	}
}

// RunHITLTool runs the human-in-the-loop confirmation workflow.
func (tb Toolbox) RunHITLTool() *tool.Func {
	return &tool.Func{
		ToolName:    "run_hitl_workflow",
		Description: "Run the Human-in-the-loop (HITL) workflow",
		Schema:      emptySchema,
		Fn: func(ctx context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
			answer, err := tb.RunHITL(ctx, uuid.NewString())
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"result": answer}, nil
		},
	}
}

func (tb Toolbox) logger() *zap.Logger {
	if tb.Logger == nil {
		return zap.NewNop()
	}
	return tb.Logger
}
