package tool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPTool performs HTTP GET and POST requests.
//
// Input:
//   - url (string, required)
//   - method (string, "GET" or "POST", default GET)
//   - body (string, optional)
//   - headers (map of strings, optional)
//
// Output: status_code (int), headers (map), body (string).
// Non-2xx responses are returned as output, not errors.
type HTTPTool struct {
	name   string
	client *http.Client
}

// NewHTTPTool creates an HTTP tool with a 30 second timeout.
func NewHTTPTool() *HTTPTool {
	return NewHTTPToolWithClient(&http.Client{Timeout: 30 * time.Second})
}

// NewHTTPToolWithClient creates an HTTP tool using client.
func NewHTTPToolWithClient(client *http.Client) *HTTPTool {
	return &HTTPTool{name: "http_request", client: client}
}

// Name implements Tool.
func (h *HTTPTool) Name() string {
	return h.name
}

// Call implements Tool.
func (h *HTTPTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	urlStr, ok := input["url"].(string)
	if !ok || urlStr == "" {
		return nil, fmt.Errorf("url parameter required (string)")
	}

	method := http.MethodGet
	if m, ok := input["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("unsupported HTTP method: %s (supported: GET, POST)", method)
	}

	var body io.Reader
	if bodyStr, ok := input["body"].(string); ok && bodyStr != "" {
		body = bytes.NewBufferString(bodyStr)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if headers, ok := input["headers"].(map[string]interface{}); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(key, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	respHeaders := make(map[string]interface{}, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) == 1 {
			respHeaders[key] = values[0]
		} else {
			respHeaders[key] = values
		}
	}

	return map[string]interface{}{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        string(respBody),
	}, nil
}
