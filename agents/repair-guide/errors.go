package repairguide

import (
	"context"
	"errors"
	"fmt"

	"repair-stack/shared/config"
)

// Status is the outcome reported across the pipeline boundary.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

var ErrEmptyResult = errors.New("no usable videos")

// ExternalServiceError reports that the catalog, downloader or reasoning
// service could not be reached or answered with a failure.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// FormatError reports malformed downloaded artifacts for one video. It only
// ever drops that video.
type FormatError struct {
	VideoID string
	Err     error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("video %s: malformed artifact: %v", e.VideoID, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// EmptyResultError carries the stage at which the pipeline ran dry.
type EmptyResultError struct {
	Reason string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("%v: %s", ErrEmptyResult, e.Reason)
}

func (e *EmptyResultError) Unwrap() error { return ErrEmptyResult }

// StatusFor maps a pipeline error onto the boundary status.
func StatusFor(err error) Status {
	if err == nil {
		return StatusOK
	}
	return StatusError
}

// Describe returns a one-line message suitable for callers of the pipeline.
// Service payloads and paths stay in the logs.
func Describe(err error) string {
	if err == nil {
		return "ok"
	}

	var (
		cfgErr   *config.ConfigurationError
		svcErr   *ExternalServiceError
		emptyErr *EmptyResultError
		fmtErr   *FormatError
	)
	switch {
	case errors.As(err, &cfgErr):
		return "configuration error: " + cfgErr.Field
	case errors.As(err, &emptyErr):
		return "no results: " + emptyErr.Reason
	case errors.As(err, &svcErr):
		if errors.Is(err, context.DeadlineExceeded) {
			return svcErr.Service + " timed out"
		}
		return svcErr.Service + " unavailable"
	case errors.As(err, &fmtErr):
		return "malformed data for video " + fmtErr.VideoID
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	default:
		return "internal error"
	}
}
