package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/moyoez/splitsend-go/fetch"
	"github.com/moyoez/splitsend-go/metrics"
	"github.com/moyoez/splitsend-go/types"
)

const (
	BusyMessage      = "You already have a task in progress. Please wait until it finishes."
	CancelledMessage = "Cancelled."
)

// UserMessage is the single terminal text shown for a pipeline error.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, types.ErrAdmissionBusy):
		return BusyMessage
	case errors.Is(err, types.ErrCancelled):
		return CancelledMessage
	case errors.Is(err, types.ErrAuthRequired):
		return fetch.AuthRequiredMessage
	case errors.Is(err, types.ErrSourceUnavailable):
		return "Task failed: the video could not be downloaded."
	case errors.Is(err, types.ErrSplitIO):
		return "Task failed: the video could not be split."
	case errors.Is(err, types.ErrUploadFatal):
		return "Task failed: sending the parts failed."
	default:
		return "Task failed: internal error."
	}
}

// classify makes sure err carries one of the taxonomy sentinels. stage is
// the state the pipeline was in when err happened.
func classify(ctx context.Context, stage State, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && !errors.Is(err, types.ErrCancelled) {
		return fmt.Errorf("%w: %w", types.ErrCancelled, err)
	}
	for _, known := range []error{
		types.ErrAdmissionBusy,
		types.ErrCancelled,
		types.ErrSourceUnavailable,
		types.ErrSplitIO,
		types.ErrUploadFatal,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	switch stage {
	case Fetching:
		return fmt.Errorf("%w: %w", types.ErrSourceUnavailable, err)
	case Splitting:
		return fmt.Errorf("%w: %w", types.ErrSplitIO, err)
	case Uploading:
		return fmt.Errorf("%w: %w", types.ErrUploadFatal, err)
	}
	return err
}

// metricResult maps a pipeline outcome to the pipelines_total label.
func metricResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultCompleted
	case errors.Is(err, types.ErrAdmissionBusy):
		return metrics.ResultBusy
	case errors.Is(err, types.ErrCancelled):
		return metrics.ResultCancelled
	}
	return metrics.ResultFailed
}
