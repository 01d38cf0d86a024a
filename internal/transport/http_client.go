package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/http2"

	"github.com/fmwatch/fmwatch/internal/config"
	"github.com/fmwatch/fmwatch/internal/events"
	"github.com/fmwatch/fmwatch/internal/models"
)

// HTTPClient handles HTTP communication with the API. Session state lives in
// the cookie jar, which the WebSocket dialer shares.
type HTTPClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
	jar       *cookiejar.Jar
	logger    *events.Logger

	maxRetries int
	retryDelay time.Duration
}

// NewHTTPClient creates an HTTP client.
func NewHTTPClient(cfg *config.APIConfig, logger *events.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	jar, _ := cookiejar.New(nil)

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			Jar:       jar,
		},
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		jar:        jar,
		maxRetries: cfg.MaxRetries,
		retryDelay: time.Second,
		logger:     logger.WithField("component", "http_client"),
	}
}

// Jar exposes the session cookie jar for the WebSocket dialer.
func (c *HTTPClient) Jar() *cookiejar.Jar {
	return c.jar
}

// Login starts a session; the server answers with a session cookie that the
// jar retains for every later request.
func (c *HTTPClient) Login(ctx context.Context, username, password string) error {
	body, status, err := c.do(ctx, "POST", "/api/login", nil, models.LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			return &models.APIError{StatusCode: status, Message: payload.Error, Business: true}
		}
		return &models.APIError{StatusCode: status, Message: string(body)}
	}
	return nil
}

// Logout ends the session.
func (c *HTTPClient) Logout(ctx context.Context) error {
	_, status, err := c.do(ctx, "POST", "/api/logout", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &models.APIError{StatusCode: status, Message: "logout failed"}
	}
	return nil
}

// QueryTasks pulls the current task list. The endpoint returns a bare JSON
// array, not the command envelope.
func (c *HTTPClient) QueryTasks(ctx context.Context) ([]models.TaskPatch, error) {
	body, status, err := c.do(ctx, "GET", "/api/task/query", nil, nil)
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus(status, body); err != nil {
		return nil, err
	}

	var patches []models.TaskPatch
	if err := json.Unmarshal(body, &patches); err != nil {
		return nil, fmt.Errorf("parse task list: %w", err)
	}
	return patches, nil
}

// FetchConfig reads the public server configuration.
func (c *HTTPClient) FetchConfig(ctx context.Context) (*models.PublicConfig, error) {
	body, status, err := c.do(ctx, "GET", "/api/config", nil, nil)
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus(status, body); err != nil {
		return nil, err
	}

	var cfg models.PublicConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("parse public config: %w", err)
	}
	return &cfg, nil
}

// TaskCommand issues one of the per-task verbs (suspend/resume/cancel/delete)
// that address the task through an id query parameter.
func (c *HTTPClient) TaskCommand(ctx context.Context, method, path, id string) error {
	query := url.Values{"id": {id}}
	body, status, err := c.do(ctx, method, path+"?"+query.Encode(), nil, nil)
	if err != nil {
		return err
	}
	return c.checkResponse(status, body)
}

// PostCommand posts a JSON payload to an envelope-returning endpoint.
func (c *HTTPClient) PostCommand(ctx context.Context, path string, payload interface{}) error {
	body, status, err := c.do(ctx, "POST", path, nil, payload)
	if err != nil {
		return err
	}
	return c.checkResponse(status, body)
}

// checkResponse validates an APIResponse envelope, converting the business
// flag into a typed error.
func (c *HTTPClient) checkResponse(status int, body []byte) error {
	if err := c.checkStatus(status, body); err != nil {
		return err
	}

	var resp models.APIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if !resp.Code {
		return &models.APIError{StatusCode: status, Message: resp.Message, Business: true}
	}
	return nil
}

// checkStatus converts a non-2xx transport status into a typed error.
func (c *HTTPClient) checkStatus(status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP %d", models.ErrNotAuthenticated, status)
	case status < 200 || status > 299:
		return &models.APIError{StatusCode: status, Message: string(body)}
	}
	return nil
}

// do executes one request with retry and returns the raw body and status.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, int, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody []byte
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal payload: %w", err)
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"method": method,
		"url":    reqURL,
		"size":   len(reqBody),
	}).Debug("Sending request")

	var respBody []byte
	var respStatus int

	err := c.retry(ctx, func() error {
		var bodyReader io.Reader
		if reqBody != nil {
			bodyReader = bytes.NewReader(reqBody)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("execute request: %w", err)
		}
		defer resp.Body.Close()

		if c.isRetryable(resp.StatusCode) {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server error %d: %s", resp.StatusCode, body)
		}

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		respStatus = resp.StatusCode
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	c.logger.WithFields(map[string]interface{}{
		"status": respStatus,
		"size":   len(respBody),
	}).Debug("Received response")

	return respBody, respStatus, nil
}

// retry executes a function with exponential backoff.
func (c *HTTPClient) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   delay,
			}).Debug("Retrying request")

			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable checks if an HTTP status code is retryable.
func (c *HTTPClient) isRetryable(status int) bool {
	return status == http.StatusTooManyRequests ||
		(status >= 500 && status < 600)
}
