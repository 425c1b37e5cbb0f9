// Package inference submits image-edit payloads to an asynchronous inference
// endpoint and waits for the result to land in object storage. The endpoint
// acknowledges a submission immediately and later writes either a success or
// a failure object; completion is detected by polling for those keys.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"imagebot/internal/domain"
	"imagebot/internal/infra"
	"imagebot/internal/storage"
)

// Handle identifies one in-flight inference run.
type Handle struct {
	SuccessKey  string
	FailureKey  string
	SubmittedAt time.Time
}

// Invoker starts an asynchronous inference run for a payload already staged
// in object storage.
type Invoker interface {
	InvokeAsync(ctx context.Context, payloadKey string) (Handle, error)
}

// resultEnvelope is the success object the endpoint writes.
type resultEnvelope struct {
	GeneratedImages [][]byte `json:"generated_images"`
}

// Client drives a full run: submit, then poll storage until an outcome
// object appears.
type Client struct {
	store        storage.ObjectStore
	invoker      Invoker
	pollInterval time.Duration
	maxWait      time.Duration
	logger       infra.Logger
}

func NewClient(store storage.ObjectStore, invoker Invoker, pollInterval, maxWait time.Duration, logger infra.Logger) *Client {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 10 * time.Minute
	}
	return &Client{
		store:        store,
		invoker:      invoker,
		pollInterval: pollInterval,
		maxWait:      maxWait,
		logger:       logger,
	}
}

// Submit starts a run for the staged payload.
func (c *Client) Submit(ctx context.Context, payloadKey string) (Handle, error) {
	h, err := c.invoker.InvokeAsync(ctx, payloadKey)
	if err != nil {
		return Handle{}, fmt.Errorf("inference: submit %s: %w", payloadKey, err)
	}
	if h.SubmittedAt.IsZero() {
		h.SubmittedAt = time.Now()
	}
	c.logger.Info().
		Str("payload_key", payloadKey).
		Str("success_key", h.SuccessKey).
		Msg("inference run submitted")
	return h, nil
}

// AwaitResult polls until the run writes an outcome object. It returns the
// first generated image on success, domain.ErrInferenceFailed when the
// endpoint reports failure, and domain.ErrTimeout when neither object
// appears before the deadline.
func (c *Client) AwaitResult(ctx context.Context, h Handle) ([]byte, error) {
	started := h.SubmittedAt
	if started.IsZero() {
		started = time.Now()
	}

	for {
		// "Not yet present" and "storage unreachable" are the same retryable
		// condition; only a readable failure object or the deadline ends the
		// wait early.
		data, err := c.store.Get(ctx, h.SuccessKey)
		if err == nil {
			return decodeResult(data)
		}
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.Warn().Err(err).Str("success_key", h.SuccessKey).Msg("result read failed, retrying")
		} else if _, err := c.store.Get(ctx, h.FailureKey); err == nil {
			c.logger.Warn().Str("failure_key", h.FailureKey).Msg("inference run reported failure")
			return nil, fmt.Errorf("inference: run wrote %s: %w", h.FailureKey, domain.ErrInferenceFailed)
		} else if !errors.Is(err, domain.ErrNotFound) {
			c.logger.Warn().Err(err).Str("failure_key", h.FailureKey).Msg("failure marker read failed, retrying")
		}

		if time.Since(started) > c.maxWait {
			return nil, fmt.Errorf("inference: no outcome after %s: %w", c.maxWait, domain.ErrTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func decodeResult(data []byte) ([]byte, error) {
	var env resultEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("inference: decode result: %w", err)
	}
	if len(env.GeneratedImages) == 0 || len(env.GeneratedImages[0]) == 0 {
		return nil, fmt.Errorf("inference: result contains no images: %w", domain.ErrInferenceFailed)
	}
	return env.GeneratedImages[0], nil
}
