package image

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func newTestGenerator(t *testing.T, rt roundTripFunc, randFloat func() float64) *HFGenerator {
	t.Helper()
	g, err := NewHFGenerator(HFOptions{
		APIKey:     "hf-key",
		Model:      "stabilityai/stable-diffusion-2",
		HTTPClient: &http.Client{Transport: rt},
		RandFloat:  randFloat,
	})
	if err != nil {
		t.Fatalf("NewHFGenerator: %v", err)
	}
	return g
}

func TestGenerateSendsPromptAndSampledGuidance(t *testing.T) {
	t.Parallel()

	var sent hfRequest
	g := newTestGenerator(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/models/stabilityai/stable-diffusion-2" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte("png-bytes"))),
		}, nil
	}, func() float64 { return 0.5 })

	data, err := g.Generate(context.Background(), GenerateRequest{Prompt: "a red barn at dusk"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("data = %q", data)
	}
	if sent.Inputs != "a red barn at dusk" {
		t.Fatalf("inputs = %q", sent.Inputs)
	}
	if sent.Parameters.GuidanceScale != 7.5 {
		t.Fatalf("guidance = %v, want midpoint 7.5", sent.Parameters.GuidanceScale)
	}
}

func TestGenerateUsesExplicitGuidance(t *testing.T) {
	t.Parallel()

	var sent hfRequest
	g := newTestGenerator(t, func(r *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte("x"))),
		}, nil
	}, nil)

	if _, err := g.Generate(context.Background(), GenerateRequest{Prompt: "p", GuidanceScale: 8.25}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sent.Parameters.GuidanceScale != 8.25 {
		t.Fatalf("guidance = %v, want 8.25", sent.Parameters.GuidanceScale)
	}
}

func TestGenerateSurfacesAPIError(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"error":"model loading"}`))),
		}, nil
	}, nil)

	if _, err := g.Generate(context.Background(), GenerateRequest{Prompt: "p"}); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t, func(r *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	}, nil)

	if _, err := g.Generate(context.Background(), GenerateRequest{}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}
