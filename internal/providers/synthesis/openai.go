package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"imagebot/internal/domain"
)

const openAIDefaultTimeout = 30 * time.Second

const defaultOpenAIModel = "gpt-4o-mini"

type OpenAIOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAISynthesizer talks to the chat-completions API with JSON-constrained
// responses.
type OpenAISynthesizer struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewOpenAISynthesizer(opts OpenAIOptions) (*OpenAISynthesizer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAISynthesizer{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   model,
		baseURL: baseURL,
		client:  client,
	}, nil
}

func (o *OpenAISynthesizer) ProposeThemes(ctx context.Context, req ThemeRequest) ([]string, error) {
	text, err := o.complete(ctx, buildThemePayload(req), req.Temperature)
	if err != nil {
		return nil, err
	}
	parsed, err := parseModelPayload[themePayload](text)
	if err != nil {
		return nil, fmt.Errorf("themes: %v: %w", err, domain.ErrSynthesisParse)
	}
	themes := trimNonEmpty(parsed.Themes)
	if len(themes) != proposalCount {
		return nil, fmt.Errorf("themes: got %d options, want %d: %w", len(themes), proposalCount, domain.ErrSynthesisParse)
	}
	return themes, nil
}

func (o *OpenAISynthesizer) ProposeDesigns(ctx context.Context, req DesignRequest) ([]domain.DesignRecord, error) {
	text, err := o.complete(ctx, buildDesignPayload(req), req.Temperature)
	if err != nil {
		return nil, err
	}
	parsed, err := parseModelPayload[designPayload](text)
	if err != nil {
		return nil, fmt.Errorf("designs: %v: %w", err, domain.ErrSynthesisParse)
	}
	designs := make([]domain.DesignRecord, 0, len(parsed.Designs))
	for _, d := range parsed.Designs {
		if strings.TrimSpace(d.Description) == "" {
			continue
		}
		designs = append(designs, d)
	}
	if len(designs) != proposalCount {
		return nil, fmt.Errorf("designs: got %d options, want %d: %w", len(designs), proposalCount, domain.ErrSynthesisParse)
	}
	return designs, nil
}

func (o *OpenAISynthesizer) ComposePrompt(ctx context.Context, req PromptRequest) (string, error) {
	text, err := o.complete(ctx, buildPromptPayload(req), 0)
	if err != nil {
		return "", err
	}
	parsed, err := parseModelPayload[promptPayload](text)
	if err != nil {
		return "", fmt.Errorf("prompt: %v: %w", err, domain.ErrSynthesisParse)
	}
	prompt := strings.TrimSpace(parsed.Prompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt: empty: %w", domain.ErrSynthesisParse)
	}
	return prompt, nil
}

func (o *OpenAISynthesizer) complete(ctx context.Context, content string, temperature float64) (string, error) {
	payload := openAIChatRequest{
		Model:       o.model,
		Temperature: temperature,
		ResponseFormat: &openAIFormat{
			Type: "json_object",
		},
		Messages: []openAIMessage{
			{Role: "system", Content: "You are a visual branding assistant that only responds with valid JSON."},
			{Role: "user", Content: content},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/chat/completions", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai status %d", resp.StatusCode)
	}
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("no choices")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty response")
	}
	return text, nil
}

func trimNonEmpty(values []string) []string {
	var result []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		result = append(result, v)
	}
	return result
}

var _ Synthesizer = (*OpenAISynthesizer)(nil)
