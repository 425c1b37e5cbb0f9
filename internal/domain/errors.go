package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("invalid input")
	ErrSynthesisParse    = errors.New("synthesis output unparseable")
	ErrDimensionMismatch = errors.New("image dimensions do not match")
	ErrSubmission        = errors.New("job submission failed")
	ErrInferenceFailed   = errors.New("inference failed")
	ErrTimeout           = errors.New("timed out")
)
