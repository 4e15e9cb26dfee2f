package tool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPTool performs GET and POST requests on behalf of a model.
//
// Input keys:
//   - url (string, required)
//   - method (string, "GET" or "POST"; defaults to "GET")
//   - headers (map of string values; optional)
//   - body (string; optional, POST payloads)
//
// Output keys: status_code (int), headers (map), body (string). Timeouts
// come from ctx; the tool sets none of its own.
type HTTPTool struct {
	client *http.Client
}

// NewHTTPTool returns an HTTPTool using a dedicated http.Client.
func NewHTTPTool() *HTTPTool {
	return &HTTPTool{client: &http.Client{}}
}

// Name returns "http_request".
func (h *HTTPTool) Name() string { return "http_request" }

// Call issues the request described by input and returns the response.
func (h *HTTPTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	url, ok := input["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("url parameter required (string)")
	}

	method := "GET"
	if m, ok := input["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("unsupported HTTP method: %s (supported: GET, POST)", method)
	}

	var body io.Reader
	if s, ok := input["body"].(string); ok && s != "" {
		body = bytes.NewBufferString(s)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if headers, ok := input["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	respHeaders := make(map[string]interface{}, len(resp.Header))
	for k, vs := range resp.Header {
		if len(vs) == 1 {
			respHeaders[k] = vs[0]
		} else {
			respHeaders[k] = vs
		}
	}

	return map[string]interface{}{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        string(respBody),
	}, nil
}
