// Package apicall provides the API call node handler for outbound HTTP requests.
package apicall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/orchestrix/orchestrix/pkg/protocol"
)

// ErrUnsupportedMethod indicates a configured HTTP method outside the
// supported set. Only GET and POST are guaranteed.
var ErrUnsupportedMethod = errors.New("unsupported HTTP method")

const defaultTimeout = 30 * time.Second

// APICallConfig defines the configuration for API call nodes.
type APICallConfig struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    map[string]any
	Timeout time.Duration
}

type APICallNode struct {
	id     string
	config APICallConfig
	client *http.Client
}

func NewAPICallNode(id string, config map[string]any) (*APICallNode, error) {
	callConfig := APICallConfig{
		Method:  http.MethodGet,
		Headers: make(map[string]string),
		Timeout: defaultTimeout,
	}

	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, errors.New("missing required field 'url'")
	}

	callConfig.URL = url

	if method, ok := config["method"].(string); ok {
		callConfig.Method = strings.ToUpper(method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			if strValue, ok := value.(string); ok {
				callConfig.Headers[key] = strValue
			}
		}
	}

	if body, ok := config["body"].(map[string]any); ok {
		callConfig.Body = body
	}

	if timeout, ok := config["timeout"].(float64); ok && timeout > 0 {
		callConfig.Timeout = time.Duration(timeout) * time.Second
	}

	return &APICallNode{
		id:     id,
		config: callConfig,
		client: &http.Client{Timeout: callConfig.Timeout},
	}, nil
}

func (n *APICallNode) Execute(ctx context.Context, _ map[string]any, logs protocol.LogSink) (map[string]any, error) {
	logs.Append("info", fmt.Sprintf("Making %s request to %s", n.config.Method, n.config.URL), nil)

	var reqBody io.Reader

	switch n.config.Method {
	case http.MethodGet:
	case http.MethodPost:
		payload, err := json.Marshal(n.config.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}

		reqBody = bytes.NewReader(payload)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, n.config.Method)
	}

	req, err := http.NewRequestWithContext(ctx, n.config.Method, n.config.URL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range n.config.Headers {
		req.Header.Set(key, value)
	}

	if reqBody != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		logs.Append("error", fmt.Sprintf("API call failed: %v", err), nil)

		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logs.Append("error", fmt.Sprintf("API call failed: HTTP %d", resp.StatusCode), nil)

		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var responseData any = string(respBody)

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var jsonBody any
		if err := json.Unmarshal(respBody, &jsonBody); err == nil {
			responseData = jsonBody
		}
	}

	return map[string]any{
		"status_code":   resp.StatusCode,
		"response_data": responseData,
		"url":           n.config.URL,
		"method":        n.config.Method,
	}, nil
}
