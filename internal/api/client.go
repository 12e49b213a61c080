package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"solana-sweeper/internal/sweeper"
)

// Key file checks.
const (
	NotTxtText       = "❌ The file must be a TXT file"
	FileTooLargeText = "❌ The file is too large (maximum 10MB)"
)

var (
	ErrNotTxt       = errors.New("key file must have a .txt extension")
	ErrFileTooLarge = errors.New("key file exceeds 10MB")
)

// ReadKeyFile reads a credential file for upload.
func ReadKeyFile(path string) (string, error) {
	if !strings.EqualFold(filepath.Ext(path), ".txt") {
		return "", ErrNotTxt
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat key file: %w", err)
	}
	if info.Size() > MaxUploadSize {
		return "", ErrFileTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}
	return string(data), nil
}

// Error is a non-2xx reply of the API.
type Error struct {
	StatusCode int
	Message    string
	// Text is the operator-facing reply.
	Text string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client calls a running Server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 3 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddAccounts submits credential text for owner.
func (c *Client) AddAccounts(ctx context.Context, owner, text string) (*sweeper.AddResult, error) {
	var res sweeper.AddResult
	if err := c.do(ctx, http.MethodPost, ownerPath(owner, "accounts"), AddRequest{Text: text}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Resume resumes owner's saved accounts.
func (c *Client) Resume(ctx context.Context, owner string) (*sweeper.ResumeResult, error) {
	var res sweeper.ResumeResult
	if err := c.do(ctx, http.MethodPost, ownerPath(owner, "resume"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Status returns owner's status report.
func (c *Client) Status(ctx context.Context, owner string) (*sweeper.StatusReport, error) {
	var res sweeper.StatusReport
	if err := c.do(ctx, http.MethodGet, ownerPath(owner, "status"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StopAccounts stops the accounts matching selectors.
func (c *Client) StopAccounts(ctx context.Context, owner string, selectors []string) (*sweeper.StopResult, error) {
	var res sweeper.StopResult
	if err := c.do(ctx, http.MethodPost, ownerPath(owner, "stop"), StopRequest{Selectors: selectors}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StopAll stops every account of owner.
func (c *Client) StopAll(ctx context.Context, owner string) (*StopAllResponse, error) {
	var res StopAllResponse
	if err := c.do(ctx, http.MethodPost, ownerPath(owner, "stop-all"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Clear deletes owner's saved accounts.
func (c *Client) Clear(ctx context.Context, owner string) (*ClearResponse, error) {
	var res ClearResponse
	if err := c.do(ctx, http.MethodDelete, ownerPath(owner, "accounts"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Welcome returns the greeting for owner.
func (c *Client) Welcome(ctx context.Context, owner string) (string, error) {
	var res TextResponse
	if err := c.do(ctx, http.MethodGet, ownerPath(owner, "welcome"), nil, &res); err != nil {
		return "", err
	}
	return res.Text, nil
}

// Help returns the command overview.
func (c *Client) Help(ctx context.Context) (string, error) {
	var res TextResponse
	if err := c.do(ctx, http.MethodGet, "/api/help", nil, &res); err != nil {
		return "", err
	}
	return res.Text, nil
}

func ownerPath(owner, action string) string {
	return "/api/owners/" + url.PathEscape(owner) + "/" + action
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var e ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
			apiErr.Text = e.Text
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
