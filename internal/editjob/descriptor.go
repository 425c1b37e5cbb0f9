// Package editjob collects inpaint/outpaint requests chat-side, enqueues them
// durably, and processes them worker-side through mask computation and async
// inference.
package editjob

import (
	"encoding/json"
	"fmt"
	"time"

	"imagebot/internal/domain"
)

// Descriptor is the queue message for one edit job. It carries everything the
// consumer needs, including the originating chat event, so processing never
// depends on chat-side state.
type Descriptor struct {
	JobID        string                   `json:"job_id"`
	Type         domain.EditType          `json:"job_type"`
	BaseImageKey string                   `json:"base_image_key"`
	MaskImageKey string                   `json:"mask_image_key,omitempty"`
	Direction    domain.OutpaintDirection `json:"outpaint_direction,omitempty"`
	Prompt       string                   `json:"text_prompt"`
	ChatID       int64                    `json:"origin_chat_id"`
	Username     string                   `json:"username"`
	Event        json.RawMessage          `json:"event,omitempty"`
	SubmittedAt  time.Time                `json:"submitted_at"`
}

// EncodeDescriptor builds the queue message for a job ready to enqueue.
func EncodeDescriptor(job *domain.ImageEditJob, event json.RawMessage) ([]byte, error) {
	d := Descriptor{
		JobID:        job.ID,
		Type:         job.Type,
		BaseImageKey: job.BaseImageKey,
		MaskImageKey: job.MaskImageKey,
		Direction:    job.Direction,
		Prompt:       job.Prompt,
		ChatID:       job.ChatID,
		Username:     job.Username,
		Event:        event,
		SubmittedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("editjob: encode descriptor %s: %w", job.ID, err)
	}
	return data, nil
}

// Job reconstructs the consumer-side job value. Dequeueing is what moves a
// job into the processing state.
func (d Descriptor) Job() *domain.ImageEditJob {
	return &domain.ImageEditJob{
		ID:           d.JobID,
		Type:         d.Type,
		BaseImageKey: d.BaseImageKey,
		MaskImageKey: d.MaskImageKey,
		Direction:    d.Direction,
		Prompt:       d.Prompt,
		ChatID:       d.ChatID,
		Username:     d.Username,
		Status:       domain.EditStatusProcessing,
		CreatedAt:    d.SubmittedAt,
	}
}

// DecodeDescriptor parses a queue message.
func DecodeDescriptor(body []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(body, &d); err != nil {
		return Descriptor{}, fmt.Errorf("editjob: decode descriptor: %w", err)
	}
	if d.JobID == "" || d.BaseImageKey == "" {
		return Descriptor{}, fmt.Errorf("editjob: descriptor missing job_id or base_image_key: %w", domain.ErrValidation)
	}
	return d, nil
}
