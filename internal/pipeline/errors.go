package pipeline

import (
	"errors"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/detection"
)

var (
	// ErrInvalidInput is returned when a submission cannot be mapped onto
	// Content at all: unknown kind, oversized text or no sender.
	ErrInvalidInput = errors.New("pipeline: invalid input")

	// ErrStorageUnavailable is returned when the verification could not be
	// persisted after retries. Callers should redeliver.
	ErrStorageUnavailable = errors.New("pipeline: storage unavailable")

	// ErrNotFound is returned when resolving an unknown verification.
	ErrNotFound = errors.New("pipeline: verification not found")

	// ErrDetectorFailure marks a detector that errored. It never escapes
	// Submit; the detector is treated as clean.
	ErrDetectorFailure = detection.ErrDetectorFailure
)
