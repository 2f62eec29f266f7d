// Package remote is a client for the prompt-execution service that ingests
// web content, applies prompt templates to it and returns named results.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL  = "https://builder.impromptu-labs.com/api_tools"
	maxResponseSize = 10 << 20 // 10MB
)

// Operation names, used in errors, logs and exchanges.
const (
	OpIngest    = "ingest"
	OpTransform = "transform"
	OpRetrieve  = "retrieve"
	OpDelete    = "delete"
)

// Client talks to the prompt service over HTTP with bearer authentication.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client for the default service URL.
func NewClient(token string) *Client {
	return &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 0,
		},
		logger: slog.Default().With("component", "remote"),
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// SetTimeout bounds every request. Zero means no client-side timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// BaseURL returns the service root the client sends requests to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CreateInputObject asks the service to create a named object from in.Values.
func (c *Client) CreateInputObject(ctx context.Context, in InputObject) (Exchange, error) {
	if len(in.Values) == 0 {
		return Exchange{}, fmt.Errorf("%s: %w", OpIngest, ErrNoValues)
	}
	body := inputDataRequest{
		CreatedObjectName: in.Name,
		DataType:          in.DataType,
		InputData:         in.Values,
	}
	ex, _, err := c.do(ctx, OpIngest, http.MethodPost, "/input_data", body)
	return ex, err
}

// ApplyTransformation asks the service to produce t.Targets from t.Prompt.
func (c *Client) ApplyTransformation(ctx context.Context, t Transformation) (Exchange, error) {
	inputs := make([]promptInput, len(t.Inputs))
	for i, b := range t.Inputs {
		inputs[i] = promptInput{InputObjectName: b.Name, Mode: b.Mode}
	}
	body := applyPromptRequest{
		CreatedObjectNames: t.Targets,
		PromptString:       t.Prompt,
		Inputs:             inputs,
	}
	ex, _, err := c.do(ctx, OpTransform, http.MethodPost, "/apply_prompt", body)
	return ex, err
}

// FetchObject returns the named object with all of its fields.
func (c *Client) FetchObject(ctx context.Context, name string) (Object, Exchange, error) {
	ex, data, err := c.do(ctx, OpRetrieve, http.MethodGet, "/return_data/"+url.PathEscape(name), nil)
	if err != nil {
		return Object{}, ex, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Object{}, ex, fmt.Errorf("%s: decoding response: %w", OpRetrieve, err)
	}
	if fields == nil {
		// null decodes into a nil map without error.
		return Object{}, ex, fmt.Errorf("%s: decoding response: %w", OpRetrieve, ErrNotObject)
	}

	obj := Object{Name: name, Fields: fields, Raw: json.RawMessage(data)}
	if tv, ok := fields["text_value"]; ok {
		if err := json.Unmarshal(tv, &obj.TextValue); err != nil {
			obj.TextValue = string(tv)
		}
	}
	return obj, ex, nil
}

// DeleteObject removes the named object from the service.
func (c *Client) DeleteObject(ctx context.Context, name string) (Exchange, error) {
	ex, _, err := c.do(ctx, OpDelete, http.MethodDelete, "/objects/"+url.PathEscape(name), nil)
	return ex, err
}

// do performs one request. The returned Exchange is populated whenever the
// request was actually sent, including on failure.
func (c *Client) do(ctx context.Context, op, method, path string, body any) (Exchange, []byte, error) {
	ex := Exchange{Op: op, Method: method, Endpoint: path}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Exchange{}, nil, fmt.Errorf("%s: marshaling request: %w", op, err)
		}
		ex.Request = data
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Exchange{}, nil, fmt.Errorf("%s: creating request: %w", op, err)
	}
	c.setHeaders(req)

	ex.Started = time.Now().UTC()
	resp, err := c.httpClient.Do(req)
	ex.Duration = time.Since(ex.Started)
	if err != nil {
		ex.Response = errorPayload(err)
		c.logger.Debug("remote call failed", "op", op, "method", method, "endpoint", path, "error", err)
		return ex, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	ex.Status = resp.StatusCode
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		ex.Response = errorPayload(err)
		return ex, nil, &TransportError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}
	ex.Response = responsePayload(data)

	c.logger.Debug("remote call",
		"op", op,
		"method", method,
		"endpoint", path,
		"status", resp.StatusCode,
		"duration", ex.Duration,
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ex, data, &Error{
			Op:       op,
			Method:   method,
			Endpoint: path,
			Status:   resp.StatusCode,
			Detail:   detailFrom(data),
		}
	}
	return ex, data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
}

// responsePayload keeps JSON bodies as-is and wraps anything else so the
// recorded exchange is always valid JSON.
func responsePayload(data []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	b, _ := json.Marshal(map[string]string{"body": string(data)})
	return b
}

// Sent reports whether the exchange reached the network.
func (e Exchange) Sent() bool {
	return !e.Started.IsZero()
}
