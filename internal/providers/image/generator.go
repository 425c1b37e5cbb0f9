// Package image generates images from finished prompts via a hosted
// text-to-image model.
package image

import "context"

type GenerateRequest struct {
	Prompt string
	// GuidanceScale controls prompt adherence. Zero means the provider
	// picks a value.
	GuidanceScale float64
}

type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]byte, error)
}
