package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/system/auth"
	"go.uber.org/zap"
)

// Identity is sent as gateway identity headers. The server must run with
// trust_identity_headers enabled.
type Identity struct {
	ID   string
	Name string
	Role string
}

// Client is an HTTP client for the DikshaHub scheduling API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Identity   Identity
	Logger     *zap.Logger
}

// NewClient creates a DikshaHub API client.
func NewClient(baseURL string, id Identity, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Identity:   id,
		Logger:     logger,
	}
}

// APIError is a non-2xx response. Kind is the engine error kind (or
// "unauthorized", "forbidden", "internal").
type APIError struct {
	Status  int
	Kind    string
	Message string
	Body    map[string]any
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (HTTP %d)", e.Kind, e.Status)
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	switch e.Kind {
	case "housefull":
		fmt.Fprintf(&b, " [needed %v, remaining %v]", e.Body["needed"], e.Body["remaining"])
	case "cooldown_active":
		fmt.Fprintf(&b, " [retry in %vs]", e.Body["remaining_seconds"])
	case "concurrent_modification":
		fmt.Fprintf(&b, " [expected version %v, actual %v]", e.Body["expected_version"], e.Body["actual_version"])
	}
	if fields, ok := e.Body["fields"].(map[string]any); ok {
		for k, v := range fields {
			fmt.Fprintf(&b, "\n  %s: %v", k, v)
		}
	}
	return b.String()
}

// do performs an HTTP request and decodes a 2xx JSON body into out (if
// non-nil). Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	url := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		c.Logger.Debug("HTTP request body", zap.ByteString("body", data))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Identity.ID != "" {
		req.Header.Set(auth.HeaderUserID, c.Identity.ID)
		req.Header.Set(auth.HeaderUserName, c.Identity.Name)
		req.Header.Set(auth.HeaderUserRole, c.Identity.Role)
	}

	c.Logger.Debug("HTTP request", zap.String("method", method), zap.String("url", url))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.Logger.Debug("HTTP response", zap.Int("status", resp.StatusCode), zap.ByteString("body", respBody))

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Kind: http.StatusText(resp.StatusCode)}
		if json.Unmarshal(respBody, &apiErr.Body) == nil {
			if k, ok := apiErr.Body["error"].(string); ok {
				apiErr.Kind = k
			}
			apiErr.Message, _ = apiErr.Body["message"].(string)
		}
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response (status %d): %w\nbody: %s", resp.StatusCode, err, string(respBody))
	}
	return nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}
