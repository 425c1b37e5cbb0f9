package editjob

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"imagebot/internal/domain"
	"imagebot/internal/infra"
	"imagebot/internal/queue"
	"imagebot/internal/storage"
	"imagebot/internal/transport"
)

func newTestCollector() (*Collector, *storage.MemoryStore, *queue.MemoryQueue) {
	store := storage.NewMemoryStore()
	q := queue.NewMemoryQueue(4)
	c := NewCollector(store, q, infra.NewLogger("test", "collector"))
	return c, store, q
}

func photoEvent(chatID int64, fileID string, caption string) transport.Event {
	return transport.Event{
		ChatID:   chatID,
		Username: "alice",
		Photo:    []byte("jpeg-data"),
		Caption:  caption,
		FileID:   fileID,
	}
}

func TestInpaintJobLifecycle(t *testing.T) {
	t.Parallel()

	c, store, q := newTestCollector()
	ctx := context.Background()

	job := c.Start(7, "alice", domain.EditTypeInpaint, "")
	if job.Status != domain.EditStatusCollectingBase {
		t.Fatalf("status = %s, want collecting_base", job.Status)
	}
	if _, ok := c.Active(7); !ok {
		t.Fatal("job not active after Start")
	}

	status, err := c.SubmitBaseImage(ctx, photoEvent(7, "file-1", "replace the sky"))
	if err != nil {
		t.Fatalf("SubmitBaseImage: %v", err)
	}
	if status != domain.EditStatusCollectingMask {
		t.Fatalf("status = %s, want collecting_mask", status)
	}
	if q.Len() != 0 {
		t.Fatal("inpaint job enqueued before mask collection")
	}

	status, err = c.SubmitMaskImage(ctx, photoEvent(7, "file-2", ""))
	if err != nil {
		t.Fatalf("SubmitMaskImage: %v", err)
	}
	if status != domain.EditStatusEnqueued {
		t.Fatalf("status = %s, want enqueued", status)
	}
	if _, ok := c.Active(7); ok {
		t.Fatal("job still active after enqueue")
	}
	if store.Len() != 2 {
		t.Fatalf("stored objects = %d, want 2", store.Len())
	}
	if q.Len() != 1 {
		t.Fatalf("queued messages = %d, want 1", q.Len())
	}

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	desc, err := DecodeDescriptor((<-msgs).Body)
	if err != nil {
		t.Fatalf("DecodeDescriptor: %v", err)
	}
	if desc.Type != domain.EditTypeInpaint || desc.ChatID != 7 {
		t.Fatalf("descriptor = %+v", desc)
	}
	if desc.Prompt != "replace the sky" {
		t.Fatalf("prompt = %q, want base caption", desc.Prompt)
	}
	if !strings.HasPrefix(desc.BaseImageKey, "input/base-image/alice/file-1") {
		t.Fatalf("base key = %q", desc.BaseImageKey)
	}
	if !strings.HasPrefix(desc.MaskImageKey, "input/mask-image/alice/file-2") {
		t.Fatalf("mask key = %q", desc.MaskImageKey)
	}
	var ev transport.Event
	if err := json.Unmarshal(desc.Event, &ev); err != nil {
		t.Fatalf("decode embedded event: %v", err)
	}
	if ev.ChatID != 7 || len(ev.Photo) != 0 {
		t.Fatalf("embedded event = %+v, want metadata without photo bytes", ev)
	}
}

func TestOutpaintJobEnqueuesAfterBaseImage(t *testing.T) {
	t.Parallel()

	c, _, q := newTestCollector()
	ctx := context.Background()

	c.Start(9, "alice", domain.EditTypeOutpaint, domain.OutpaintRight)

	status, err := c.SubmitBaseImage(ctx, photoEvent(9, "file-9", ""))
	if err != nil {
		t.Fatalf("SubmitBaseImage: %v", err)
	}
	if status != domain.EditStatusEnqueued {
		t.Fatalf("status = %s, want enqueued", status)
	}
	if q.Len() != 1 {
		t.Fatalf("queued messages = %d, want 1", q.Len())
	}

	msgs, _ := q.Consume(ctx)
	desc, err := DecodeDescriptor((<-msgs).Body)
	if err != nil {
		t.Fatalf("DecodeDescriptor: %v", err)
	}
	if desc.Direction != domain.OutpaintRight {
		t.Fatalf("direction = %q, want right", desc.Direction)
	}
	if desc.MaskImageKey != "" {
		t.Fatalf("mask key = %q, want empty for outpaint", desc.MaskImageKey)
	}
}

func TestSubmitWithoutActiveJob(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCollector()
	if _, err := c.SubmitBaseImage(context.Background(), photoEvent(1, "f", "")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want domain.ErrNotFound", err)
	}
}

func TestQueueFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	c, _, q := newTestCollector()
	ctx := context.Background()

	c.Start(3, "alice", domain.EditTypeOutpaint, domain.OutpaintTop)
	q.FailNext()

	status, err := c.SubmitBaseImage(ctx, photoEvent(3, "file-3", ""))
	if !errors.Is(err, domain.ErrSubmission) {
		t.Fatalf("err = %v, want domain.ErrSubmission", err)
	}
	if status != domain.EditStatusFailed {
		t.Fatalf("status = %s, want failed", status)
	}
	if _, ok := c.Active(3); ok {
		t.Fatal("failed job still active")
	}
}

func TestCancelBeforeEnqueue(t *testing.T) {
	t.Parallel()

	c, _, q := newTestCollector()
	ctx := context.Background()

	c.Start(5, "alice", domain.EditTypeInpaint, "")
	if _, err := c.SubmitBaseImage(ctx, photoEvent(5, "file-5", "")); err != nil {
		t.Fatalf("SubmitBaseImage: %v", err)
	}
	if err := c.Cancel(5); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, ok := c.Active(5); ok {
		t.Fatal("job still active after cancel")
	}
	if q.Len() != 0 {
		t.Fatal("canceled job reached the queue")
	}
	if err := c.Cancel(5); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second cancel err = %v, want domain.ErrNotFound", err)
	}
}

func TestStartReplacesCollectingJob(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCollector()
	first := c.Start(2, "alice", domain.EditTypeInpaint, "")
	second := c.Start(2, "alice", domain.EditTypeOutpaint, domain.OutpaintLeft)
	if first.ID == second.ID {
		t.Fatal("restarted job reused the previous job id")
	}
	active, ok := c.Active(2)
	if !ok || active.ID != second.ID {
		t.Fatalf("active = %+v, want the second job", active)
	}
}

func TestDescriptorJobEntersProcessing(t *testing.T) {
	t.Parallel()

	src := &domain.ImageEditJob{
		ID:           "job-9",
		Type:         domain.EditTypeOutpaint,
		BaseImageKey: "input/base-image/alice/file-9.jpg",
		Direction:    domain.OutpaintLeft,
		Prompt:       "extend the skyline",
		ChatID:       9,
		Username:     "alice",
		Status:       domain.EditStatusEnqueued,
	}
	body, err := EncodeDescriptor(src, nil)
	if err != nil {
		t.Fatalf("EncodeDescriptor: %v", err)
	}
	desc, err := DecodeDescriptor(body)
	if err != nil {
		t.Fatalf("DecodeDescriptor: %v", err)
	}

	job := desc.Job()
	if job.Status != domain.EditStatusProcessing {
		t.Fatalf("status = %s, want processing", job.Status)
	}
	if job.ID != src.ID || job.Type != src.Type || job.BaseImageKey != src.BaseImageKey {
		t.Fatalf("job fields lost in transit: %+v", job)
	}
	if job.Direction != src.Direction || job.Prompt != src.Prompt || job.ChatID != src.ChatID {
		t.Fatalf("job fields lost in transit: %+v", job)
	}
}
