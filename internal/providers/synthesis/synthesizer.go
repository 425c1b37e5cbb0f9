// Package synthesis turns collected conversation facts into theme proposals,
// design proposals, and the final generation prompt via a chat-completion
// model constrained to JSON output.
package synthesis

import (
	"context"

	"imagebot/internal/domain"
)

// proposalCount is how many options every proposal round must return.
const proposalCount = 5

type ThemeRequest struct {
	Company     string
	ImageType   string
	Purpose     string
	Temperature float64
}

type DesignRequest struct {
	Company     string
	ImageType   string
	Purpose     string
	Theme       string
	Temperature float64
}

type PromptRequest struct {
	Company   string
	ImageType string
	Purpose   string
	Theme     string
	Design    domain.DesignRecord
}

type Synthesizer interface {
	ProposeThemes(ctx context.Context, req ThemeRequest) ([]string, error)
	ProposeDesigns(ctx context.Context, req DesignRequest) ([]domain.DesignRecord, error)
	ComposePrompt(ctx context.Context, req PromptRequest) (string, error)
}
