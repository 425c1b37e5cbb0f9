package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"
)

// AsyncEndpoint invokes a hosted asynchronous inference endpoint over HTTP.
// The endpoint accepts a reference to a payload object and responds with the
// storage locations it will write the outcome to.
type AsyncEndpoint struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewAsyncEndpoint(baseURL, apiKey string, timeout time.Duration) *AsyncEndpoint {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AsyncEndpoint{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type invokeRequest struct {
	InputLocation string `json:"input_location"`
}

type invokeResponse struct {
	OutputLocation  string `json:"output_location"`
	FailureLocation string `json:"failure_location"`
}

func (e *AsyncEndpoint) InvokeAsync(ctx context.Context, payloadKey string) (Handle, error) {
	body, err := json.Marshal(invokeRequest{InputLocation: payloadKey})
	if err != nil {
		return Handle{}, fmt.Errorf("encode invoke request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/invocations", bytes.NewReader(body))
	if err != nil {
		return Handle{}, fmt.Errorf("build invoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Handle{}, fmt.Errorf("invoke endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Handle{}, fmt.Errorf("read invoke response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Handle{}, fmt.Errorf("invoke endpoint: status %d: %s", resp.StatusCode, string(raw))
	}

	var out invokeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Handle{}, fmt.Errorf("decode invoke response: %w", err)
	}
	if out.OutputLocation == "" {
		// Endpoints that only echo the accepted payload derive the outcome
		// keys from the payload's prefix.
		prefix := path.Dir(payloadKey)
		out.OutputLocation = prefix + "/result.json"
		out.FailureLocation = prefix + "/failure.json"
	}

	return Handle{
		SuccessKey:  out.OutputLocation,
		FailureKey:  out.FailureLocation,
		SubmittedAt: time.Now(),
	}, nil
}
