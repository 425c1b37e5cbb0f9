package editjob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"imagebot/internal/domain"
	"imagebot/internal/inference"
	"imagebot/internal/infra"
	"imagebot/internal/mask"
	"imagebot/internal/queue"
	"imagebot/internal/storage"
	"imagebot/internal/transport"
)

const (
	payloadSteps    = 50
	payloadGuidance = 7.5
	payloadSeed     = 0

	payloadMaxWidth  = 500
	payloadMaxHeight = 800

	jpegQuality = 90
)

const (
	msgDimensionMismatch = "Your edited image does not match the original's dimensions. Please edit the original photo with the built-in brush tool and send it again."
	msgEditFailed        = "Sorry, something went wrong while editing your image. Please try again."
)

// inferencePayload is the request document staged for the async endpoint.
// Byte fields serialize as base64.
type inferencePayload struct {
	Prompt            string  `json:"prompt"`
	Image             []byte  `json:"image"`
	MaskImage         []byte  `json:"mask_image,omitempty"`
	Direction         string  `json:"direction,omitempty"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Seed              int     `json:"seed"`
}

// Processor is the consumer side of the pipeline. It runs in a separate
// process from the collector so a crashed edit never takes the bot down.
type Processor struct {
	store     storage.ObjectStore
	infer     *inference.Client
	messenger transport.Messenger
	logger    infra.Logger
}

func NewProcessor(store storage.ObjectStore, infer *inference.Client, messenger transport.Messenger, logger infra.Logger) *Processor {
	return &Processor{store: store, infer: infer, messenger: messenger, logger: logger}
}

// Run consumes descriptors until ctx is canceled. dispatch is called for
// every message; callers use it to bound concurrency.
func (p *Processor) Run(ctx context.Context, q queue.Queue, dispatch func(func())) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("editjob: consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			body := m.Body
			dispatch(func() {
				if err := p.Process(ctx, body); err != nil {
					p.logger.Error().Err(err).Msg("edit job processing failed")
				}
			})
		}
	}
}

// Process handles one dequeued job descriptor end to end. Every terminal
// path delivers exactly one message to the originating chat.
func (p *Processor) Process(ctx context.Context, body []byte) error {
	desc, err := DecodeDescriptor(body)
	if err != nil {
		// No chat to answer without a descriptor.
		return err
	}

	job := desc.Job()
	log := p.logger.With().Str("job_id", job.ID).Int64("chat_id", job.ChatID).Logger()
	log.Info().Str("job_type", string(job.Type)).Str("status", string(job.Status)).Msg("edit job processing")

	result, err := p.run(ctx, desc)
	if err != nil {
		job.Status = domain.EditStatusFailed
		msg := msgEditFailed
		if errors.Is(err, domain.ErrDimensionMismatch) {
			msg = msgDimensionMismatch
		}
		if sendErr := p.messenger.SendText(ctx, job.ChatID, msg); sendErr != nil {
			log.Error().Err(sendErr).Msg("failure notice delivery failed")
		}
		return err
	}

	if err := p.messenger.SendPhoto(ctx, job.ChatID, result, job.Prompt); err != nil {
		job.Status = domain.EditStatusFailed
		log.Error().Err(err).Msg("result delivery failed")
		return fmt.Errorf("editjob: deliver %s: %w", job.ID, err)
	}
	job.Status = domain.EditStatusSucceeded
	log.Info().Str("status", string(job.Status)).Msg("edit job delivered")
	return nil
}

func (p *Processor) run(ctx context.Context, desc Descriptor) ([]byte, error) {
	baseRaw, err := p.store.Get(ctx, desc.BaseImageKey)
	if err != nil {
		return nil, fmt.Errorf("editjob: fetch base image %s: %w", desc.BaseImageKey, err)
	}
	baseImg, _, err := image.Decode(bytes.NewReader(baseRaw))
	if err != nil {
		return nil, fmt.Errorf("editjob: decode base image: %w", err)
	}

	payload := inferencePayload{
		Prompt:            desc.Prompt,
		Direction:         string(desc.Direction),
		NumInferenceSteps: payloadSteps,
		GuidanceScale:     payloadGuidance,
		Seed:              payloadSeed,
	}

	if desc.Type == domain.EditTypeInpaint {
		editedRaw, err := p.store.Get(ctx, desc.MaskImageKey)
		if err != nil {
			return nil, fmt.Errorf("editjob: fetch edited image %s: %w", desc.MaskImageKey, err)
		}
		editedImg, _, err := image.Decode(bytes.NewReader(editedRaw))
		if err != nil {
			return nil, fmt.Errorf("editjob: decode edited image: %w", err)
		}
		maskImg, err := mask.Diff(baseImg, editedImg)
		if err != nil {
			return nil, err
		}
		payload.MaskImage, err = encodeJPEG(mask.FitWithin(maskImg, payloadMaxWidth, payloadMaxHeight))
		if err != nil {
			return nil, fmt.Errorf("editjob: encode mask: %w", err)
		}
	}

	payload.Image, err = encodeJPEG(mask.FitWithin(baseImg, payloadMaxWidth, payloadMaxHeight))
	if err != nil {
		return nil, fmt.Errorf("editjob: encode base image: %w", err)
	}

	prefix := storage.ResultPrefix(desc.BaseImageKey)
	payloadKey := storage.PayloadKey(prefix)
	body, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	if err := p.store.Put(ctx, payloadKey, body, "application/json"); err != nil {
		return nil, fmt.Errorf("editjob: stage payload %s: %w", payloadKey, err)
	}

	handle, err := p.infer.Submit(ctx, payloadKey)
	if err != nil {
		return nil, err
	}
	return p.infer.AwaitResult(ctx, handle)
}

func encodePayload(p inferencePayload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("editjob: encode payload: %w", err)
	}
	return body, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
