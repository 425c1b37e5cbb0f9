package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	hfDefaultTimeout = 120 * time.Second
	hfDefaultBaseURL = "https://api-inference.huggingface.co"

	// Guidance is sampled from this range when the caller leaves it unset;
	// slight variation keeps repeated generations from collapsing to the
	// same composition.
	hfGuidanceMin = 6.0
	hfGuidanceMax = 9.0
)

type HFOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	// RandFloat overrides the guidance sampler. Tests use it.
	RandFloat func() float64
}

// HFGenerator calls the Hugging Face inference API, which answers with raw
// image bytes.
type HFGenerator struct {
	apiKey    string
	model     string
	baseURL   string
	client    *http.Client
	randFloat func() float64
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	GuidanceScale float64 `json:"guidance_scale"`
}

func NewHFGenerator(opts HFOptions) (*HFGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("huggingface api key is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("huggingface model is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = hfDefaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: hfDefaultTimeout}
	}
	randFloat := opts.RandFloat
	if randFloat == nil {
		randFloat = rand.Float64
	}
	return &HFGenerator{
		apiKey:    strings.TrimSpace(opts.APIKey),
		model:     strings.TrimSpace(opts.Model),
		baseURL:   baseURL,
		client:    client,
		randFloat: randFloat,
	}, nil
}

func (h *HFGenerator) Generate(ctx context.Context, req GenerateRequest) ([]byte, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("prompt is required")
	}
	guidance := req.GuidanceScale
	if guidance == 0 {
		guidance = hfGuidanceMin + h.randFloat()*(hfGuidanceMax-hfGuidanceMin)
	}

	payload := hfRequest{
		Inputs:     req.Prompt,
		Parameters: hfParameters{GuidanceScale: guidance},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s", h.baseURL, h.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("huggingface status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if len(data) == 0 {
		return nil, errors.New("empty image response")
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ Generator = (*HFGenerator)(nil)
