// Package client talks to the inventory backend's auth endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stockroom-labs/inventory-gate/auth"
	"go.uber.org/zap"
)

// DefaultTimeout applies to every backend request.
const DefaultTimeout = 15 * time.Second

var (
	// ErrUnauthorized means the bearer token was rejected (401).
	ErrUnauthorized = auth.ErrUnauthorized
	// ErrInvalidCredentials means the login was refused for bad credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Error is a non-2xx backend answer that is not an authentication failure.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client is the boundary to the backend.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *zap.Logger
}

// New creates a client for the backend at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend base URL is required")
	}
	u, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend base URL scheme %q", u.Scheme)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Client{
		baseURL: u,
		http:    httpClient,
		logger:  cfg.Logger,
	}, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", "", loginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		var apiErr *Error
		switch {
		case errors.Is(err, ErrUnauthorized):
			return "", ErrInvalidCredentials
		case errors.As(err, &apiErr) && apiErr.Status < 500 && isCredentialMessage(apiErr.Message):
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if resp.AccessToken == "" {
		return "", errors.New("login response carried no access token")
	}
	return resp.AccessToken, nil
}

func isCredentialMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "credential") || strings.Contains(msg, "password") || strings.Contains(msg, "incorrect")
}

// CurrentUser fetches the permission record for token. An empty token is not
// an error: no request is made and the result is nil.
func (c *Client) CurrentUser(ctx context.Context, token string) (*auth.User, error) {
	if token == "" {
		return nil, nil
	}
	var user auth.User
	if err := c.do(ctx, http.MethodGet, "/auth/user", token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Registration is the payload for creating a user.
type Registration struct {
	Username    string
	Password    string
	JobName     string
	PhoneNumber string
	Flags       map[auth.Flag]bool
}

func (r Registration) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"username":     r.Username,
		"password":     r.Password,
		"job_name":     r.JobName,
		"phone_number": r.PhoneNumber,
	}
	for f, v := range r.Flags {
		out[string(f)] = v
	}
	return json.Marshal(out)
}

// Register creates a user.
func (c *Client) Register(ctx context.Context, token string, reg Registration) (*auth.User, error) {
	var user auth.User
	if err := c.do(ctx, http.MethodPost, "/auth/register", token, reg, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UserUpdate changes descriptive fields and permission flags of a user. Nil
// fields and absent flags are left untouched.
type UserUpdate struct {
	Username    *string
	JobName     *string
	PhoneNumber *string
	Flags       map[auth.Flag]bool
}

func (u UserUpdate) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(u.Flags)+3)
	if u.Username != nil {
		out["username"] = *u.Username
	}
	if u.JobName != nil {
		out["job_name"] = *u.JobName
	}
	if u.PhoneNumber != nil {
		out["phone_number"] = *u.PhoneNumber
	}
	for f, v := range u.Flags {
		out[string(f)] = v
	}
	return json.Marshal(out)
}

// UpdateUser edits the user with the given id. The edited user's own session
// is not refreshed by this; each session owns its single fetch.
func (c *Client) UpdateUser(ctx context.Context, token string, id int, update UserUpdate) (*auth.User, error) {
	var user auth.User
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/auth/user/%d", id), token, update, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword sets a new password for the user with the given id.
func (c *Client) ChangePassword(ctx context.Context, token string, id int, password string) error {
	body := map[string]string{"password": password}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/auth/user/%d/change-password", id), token, body, nil)
}

// DeleteUser removes the user with the given id.
func (c *Client) DeleteUser(ctx context.Context, token string, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/auth/user/%d", id), token, nil, nil)
}

// do sends one JSON request and decodes a JSON response into out when out is
// non-nil.
func (c *Client) do(ctx context.Context, method, path, token string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Status: resp.StatusCode, Message: readMessage(resp.Body)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// readMessage extracts a human-readable message from an error body shaped as
// {"message": ...}, {"detail": ...} or {"error": ...}.
func readMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}
	for _, key := range []string{"message", "detail", "error"} {
		if s, ok := body[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
