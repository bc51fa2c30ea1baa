// Package client talks to a workcal server: one-shot mutation requests over
// HTTP and a live Session that keeps a local copy of the list in sync.
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
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/workcal/internal/model"
)

// APIError is returned for any non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err (or any error in its chain) is a 404
// APIError.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// TransportError is returned when a request never got a response.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("executing request %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether the same request may succeed later: the server
// answered 503, or it could not be reached at all. Anything else, including
// a response that could not be decoded, fails the same way again.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusServiceUnavailable
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return !errors.Is(err, context.Canceled)
	}
	return false
}

// Client is a thin HTTP client for the mutation API. It is independent of
// any Session: mutations may be sent whatever the push channel is doing.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a client for the server at baseURL
// (e.g., http://localhost:3000). token is sent as a Bearer token when set.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		maxRetries: 2,
	}
}

// BaseURL returns the server root the client was created with.
func (c *Client) BaseURL() string { return c.baseURL }

// Token returns the bearer token, if any.
func (c *Client) Token() string { return c.token }

// List fetches the full current list, oldest first.
func (c *Client) List(ctx context.Context) (model.Snapshot, error) {
	var records []model.Record
	resp, err := c.do(ctx, http.MethodGet, "/api/workItems", "", nil, &records)
	if err != nil {
		return model.Snapshot{}, err
	}

	snap := model.Snapshot{Records: records}
	if v := resp.Header.Get("X-Snapshot-Version"); v != "" {
		snap.Version, _ = strconv.ParseUint(v, 10, 64)
	}
	return snap, nil
}

// Create adds a record. A fresh idempotency key is attached so that the
// built-in retry on 503 cannot create the record twice.
func (c *Client) Create(ctx context.Context, date, content string) (model.Record, error) {
	var rec model.Record
	body := model.CreateRequest{Date: date, Content: content}
	if _, err := c.do(ctx, http.MethodPost, "/api/workItems", uuid.NewString(), body, &rec); err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

// SetCompleted sets the completion flag of the record with the given id.
func (c *Client) SetCompleted(ctx context.Context, id string, completed bool) error {
	body := model.SetCompletedRequest{Completed: &completed}
	_, err := c.do(ctx, http.MethodPut, "/api/workItems/"+url.PathEscape(id), "", body, nil)
	return err
}

// Delete removes the record with the given id.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/workItems/"+url.PathEscape(id), "", nil, nil)
	return err
}

// do builds the request, handles auth, retries 503 responses honouring
// Retry-After, and decodes the JSON response into result.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	idempotencyKey string,
	body any,
	result any,
) (*http.Response, error) {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if data != nil {
			bodyReader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &TransportError{Method: method, Path: path, Err: err}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(respBody)}
			if resp.StatusCode != http.StatusServiceUnavailable || attempt == c.maxRetries {
				return nil, apiErr
			}
			lastErr = apiErr

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}

		if result != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, result); err != nil {
				return nil, fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
			}
		}
		return resp, nil
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

func errorMessage(body []byte) string {
	var eb model.ErrorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		return eb.Error
	}
	return strings.TrimSpace(string(body))
}

// retryAfterDuration reads the Retry-After header, falling back to
// 1s, 2s, 4s... capped at 10s.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 10*time.Second {
		backoff = 10 * time.Second
	}
	return backoff
}
