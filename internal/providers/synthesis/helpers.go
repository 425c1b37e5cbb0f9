package synthesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"imagebot/internal/domain"
)

type themePayload struct {
	Themes []string `json:"themes"`
}

type designPayload struct {
	Designs []domain.DesignRecord `json:"designs"`
}

type promptPayload struct {
	Prompt string `json:"prompt"`
}

func buildThemePayload(req ThemeRequest) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "You are an art director proposing visual themes for a business image. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"themes":string[]}`)
	fmt.Fprintf(sb, ". Propose exactly %d distinct themes, each a short phrase. Business details: company=%q, image_type=%q, purpose=%q.", proposalCount, req.Company, req.ImageType, req.Purpose)
	return sb.String()
}

func buildDesignPayload(req DesignRequest) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "You are an art director proposing image designs for a business image. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"designs":[{"image_description":string,"foreground_object":string,"image_style":string}]}`)
	fmt.Fprintf(sb, ". Propose exactly %d distinct designs. Business details: company=%q, image_type=%q, purpose=%q, theme=%q.", proposalCount, req.Company, req.ImageType, req.Purpose, req.Theme)
	return sb.String()
}

func buildPromptPayload(req PromptRequest) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "You are a prompt engineer for a text-to-image model. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"prompt":string}`)
	fmt.Fprintf(sb, ". Compose a single vivid generation prompt. Business details: company=%q, image_type=%q, purpose=%q, theme=%q, image_description=%q, foreground_object=%q, image_style=%q.",
		req.Company, req.ImageType, req.Purpose, req.Theme, req.Design.Description, req.Design.Foreground, req.Design.Style)
	return sb.String()
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errors.New("empty payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
