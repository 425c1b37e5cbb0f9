package domain

import "time"

// EditType enumerates supported image-edit job categories.
type EditType string

const (
	EditTypeInpaint  EditType = "inpaint"
	EditTypeOutpaint EditType = "outpaint"
)

// EditStatus enumerates the edit-job lifecycle states. A job transitions
// enqueued -> processing -> succeeded|failed exactly once and is never
// re-enqueued automatically.
type EditStatus string

const (
	EditStatusCollectingBase EditStatus = "collecting_base"
	EditStatusCollectingMask EditStatus = "collecting_mask"
	EditStatusEnqueued       EditStatus = "enqueued"
	EditStatusProcessing     EditStatus = "processing"
	EditStatusSucceeded      EditStatus = "succeeded"
	EditStatusFailed         EditStatus = "failed"
)

// OutpaintDirection selects which edge an outpaint job extends.
type OutpaintDirection string

const (
	OutpaintLeft   OutpaintDirection = "left"
	OutpaintRight  OutpaintDirection = "right"
	OutpaintTop    OutpaintDirection = "top"
	OutpaintBottom OutpaintDirection = "bottom"
)

// ParseOutpaintDirection maps user text onto a direction, if any.
func ParseOutpaintDirection(s string) (OutpaintDirection, bool) {
	switch OutpaintDirection(s) {
	case OutpaintLeft, OutpaintRight, OutpaintTop, OutpaintBottom:
		return OutpaintDirection(s), true
	}
	return "", false
}

// ImageEditJob is one inpainting or outpainting request, from image collection
// through delivery. It is session-scoped on the collecting side and carried in
// full by the queue descriptor on the processing side; job state always
// travels with the value, never in shared singletons.
type ImageEditJob struct {
	ID           string
	Type         EditType
	BaseImageKey string
	// MaskImageKey stores the user-edited copy of the base image for inpaint
	// jobs; the binary mask itself is computed downstream. Absent for outpaint.
	MaskImageKey string
	Direction    OutpaintDirection
	Prompt       string
	ChatID       int64
	Username     string
	Status       EditStatus
	CreatedAt    time.Time
}
