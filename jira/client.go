package jira

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrMissingCredentials is returned by NewClient when the user or API token
// is empty.
var ErrMissingCredentials = errors.New("jira: user and API token must be set")

// StatusError reports a response other than 201 Created.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jira: failed to add worklog: HTTP status %d: %s", e.StatusCode, e.Body)
}

// Client adds worklogs to issues.
type Client struct {
	baseURL *url.URL
	user    string
	token   string

	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit limits requests to r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the JIRA site at baseURL
// (for example "https://example.atlassian.net") using basic auth.
func NewClient(baseURL, user, token string, opts ...Option) (*Client, error) {
	if user == "" || token == "" {
		return nil, ErrMissingCredentials
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("jira: invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("jira: invalid base URL %q", baseURL)
	}

	c := &Client{
		baseURL:    u,
		user:       user,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WorklogURL returns the add-worklog endpoint of issueID.
func (c *Client) WorklogURL(issueID string) string {
	return c.baseURL.String() + "/rest/api/3/issue/" + url.PathEscape(issueID) + "/worklog"
}

// AddWorklog posts entry to issueID. It succeeds only on 201 Created;
// any other status is returned as a *StatusError.
func (c *Client) AddWorklog(ctx context.Context, issueID string, entry Worklog) error {
	if issueID == "" {
		return errors.New("jira: issue ID cannot be empty")
	}
	body, err := entry.Encode()
	if err != nil {
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("jira: rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.WorklogURL(issueID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("jira: create request: %w", err)
	}
	req.SetBasicAuth(c.user, c.token)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("jira request",
		zap.String("issue", issueID),
		zap.String("time_spent", entry.TimeSpent),
		zap.String("started", entry.Started))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("jira: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("jira: read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		c.logger.Warn("worklog rejected",
			zap.String("issue", issueID),
			zap.Int("status", resp.StatusCode))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	c.logger.Info("worklog added", zap.String("issue", issueID))
	return nil
}
