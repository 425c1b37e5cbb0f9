package editjob

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"imagebot/internal/domain"
	"imagebot/internal/infra"
	"imagebot/internal/queue"
	"imagebot/internal/storage"
	"imagebot/internal/transport"
)

const jobIDTimestampLayout = "20060102150405"

// Collector gathers the images for at most one edit job per chat and performs
// the durable enqueue once collection completes. Jobs are session-scoped:
// they vanish from the collector as soon as they are enqueued, failed, or
// canceled.
type Collector struct {
	store  storage.ObjectStore
	queue  queue.Queue
	logger infra.Logger

	mu   sync.Mutex
	jobs map[int64]*domain.ImageEditJob

	now   func() time.Time
	newID func() string
}

func NewCollector(store storage.ObjectStore, q queue.Queue, logger infra.Logger) *Collector {
	return &Collector{
		store:  store,
		queue:  q,
		logger: logger,
		jobs:   make(map[int64]*domain.ImageEditJob),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Start opens a new job for the chat, replacing any job still collecting
// images there.
func (c *Collector) Start(chatID int64, username string, typ domain.EditType, dir domain.OutpaintDirection) *domain.ImageEditJob {
	job := &domain.ImageEditJob{
		ID:        fmt.Sprintf("%s-%s", c.newID(), c.now().Format(jobIDTimestampLayout)),
		Type:      typ,
		Direction: dir,
		ChatID:    chatID,
		Username:  username,
		Status:    domain.EditStatusCollectingBase,
		CreatedAt: c.now(),
	}
	c.mu.Lock()
	c.jobs[chatID] = job
	c.mu.Unlock()
	return job
}

// Active returns the chat's collecting job, if any.
func (c *Collector) Active(chatID int64) (*domain.ImageEditJob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[chatID]
	return job, ok
}

// SubmitBaseImage stores the base photo for the chat's job. A caption on the
// photo becomes the job's text prompt. Outpaint jobs enqueue immediately;
// inpaint jobs advance to mask collection.
func (c *Collector) SubmitBaseImage(ctx context.Context, ev transport.Event) (domain.EditStatus, error) {
	c.mu.Lock()
	job, ok := c.jobs[ev.ChatID]
	c.mu.Unlock()
	if !ok || job.Status != domain.EditStatusCollectingBase {
		return "", fmt.Errorf("editjob: chat %d has no job collecting a base image: %w", ev.ChatID, domain.ErrNotFound)
	}

	key := storage.BaseImageKey(ev.Username, ev.FileID, c.now())
	if err := c.store.Put(ctx, key, ev.Photo, "image/jpeg"); err != nil {
		return c.fail(job, fmt.Errorf("editjob: store base image: %v: %w", err, domain.ErrSubmission))
	}
	job.BaseImageKey = key
	if ev.Caption != "" {
		job.Prompt = ev.Caption
	}

	if job.Type == domain.EditTypeOutpaint {
		return c.enqueue(ctx, job, ev)
	}
	job.Status = domain.EditStatusCollectingMask
	return job.Status, nil
}

// SubmitMaskImage stores the user-edited copy of the base image and enqueues
// the inpaint job.
func (c *Collector) SubmitMaskImage(ctx context.Context, ev transport.Event) (domain.EditStatus, error) {
	c.mu.Lock()
	job, ok := c.jobs[ev.ChatID]
	c.mu.Unlock()
	if !ok || job.Status != domain.EditStatusCollectingMask {
		return "", fmt.Errorf("editjob: chat %d has no job collecting a mask image: %w", ev.ChatID, domain.ErrNotFound)
	}

	key := storage.MaskImageKey(ev.Username, ev.FileID, c.now())
	if err := c.store.Put(ctx, key, ev.Photo, "image/jpeg"); err != nil {
		return c.fail(job, fmt.Errorf("editjob: store mask image: %v: %w", err, domain.ErrSubmission))
	}
	job.MaskImageKey = key
	if ev.Caption != "" {
		job.Prompt = ev.Caption
	}
	return c.enqueue(ctx, job, ev)
}

// Cancel drops a job still collecting images. Jobs already enqueued are out
// of reach.
func (c *Collector) Cancel(chatID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[chatID]
	if !ok {
		return fmt.Errorf("editjob: chat %d has no active job: %w", chatID, domain.ErrNotFound)
	}
	delete(c.jobs, chatID)
	c.logger.Info().Str("job_id", job.ID).Int64("chat_id", chatID).Msg("edit job canceled")
	return nil
}

func (c *Collector) enqueue(ctx context.Context, job *domain.ImageEditJob, ev transport.Event) (domain.EditStatus, error) {
	// The raw photo bytes stay in object storage; the descriptor carries
	// only the event metadata.
	ev.Photo = nil
	rawEvent, err := json.Marshal(ev)
	if err != nil {
		return c.fail(job, fmt.Errorf("editjob: encode event: %v: %w", err, domain.ErrSubmission))
	}
	body, err := EncodeDescriptor(job, rawEvent)
	if err != nil {
		return c.fail(job, fmt.Errorf("%v: %w", err, domain.ErrSubmission))
	}
	if err := c.queue.Publish(ctx, body); err != nil {
		return c.fail(job, fmt.Errorf("editjob: enqueue %s: %v: %w", job.ID, err, domain.ErrSubmission))
	}

	job.Status = domain.EditStatusEnqueued
	c.mu.Lock()
	delete(c.jobs, job.ChatID)
	c.mu.Unlock()
	c.logger.Info().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Int64("chat_id", job.ChatID).
		Msg("edit job enqueued")
	return job.Status, nil
}

func (c *Collector) fail(job *domain.ImageEditJob, err error) (domain.EditStatus, error) {
	job.Status = domain.EditStatusFailed
	c.mu.Lock()
	delete(c.jobs, job.ChatID)
	c.mu.Unlock()
	c.logger.Error().Err(err).Str("job_id", job.ID).Msg("edit job submission failed")
	return job.Status, err
}
