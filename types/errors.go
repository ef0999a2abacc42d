package types

import (
	"errors"
	"fmt"
	"time"
)

// Pipeline error taxonomy. Everything a pipeline returns wraps one of these.
var (
	ErrAdmissionBusy     = errors.New("actor already has a pipeline in progress")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrAuthRequired      = fmt.Errorf("%w: authentication required", ErrSourceUnavailable)
	ErrSplitIO           = errors.New("split failed")
	ErrUploadTransient   = errors.New("transient upload failure")
	ErrUploadFatal       = errors.New("upload failed")
	ErrCancelled         = errors.New("pipeline cancelled")
)

// RateLimitError is returned by a sink when the remote asked us to slow down.
type RateLimitError struct {
	RetryAfter  time.Duration
	Description string
}

func (e *RateLimitError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("rate limited, retry after %s: %s", e.RetryAfter, e.Description)
	}
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrUploadTransient
}

// SinkError is a non rate-limit failure reported by a sink.
type SinkError struct {
	StatusCode  int
	Description string
	Retryable   bool
	Err         error
}

func (e *SinkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("sink error %d: %s: %v", e.StatusCode, e.Description, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("sink error %d: %s", e.StatusCode, e.Description)
	case e.Err != nil:
		return fmt.Sprintf("sink error: %s: %v", e.Description, e.Err)
	}
	return "sink error: " + e.Description
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

func (e *SinkError) Is(target error) bool {
	return e.Retryable && target == ErrUploadTransient
}
