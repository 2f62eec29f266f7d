package workflow

import (
	"errors"
	"fmt"

	"github.com/kalambet/sitesum/internal/remote"
)

var (
	// ErrBlankURL is wrapped by the ValidationError returned for blank input.
	ErrBlankURL = errors.New("url is blank")

	// ErrSuperseded is returned to a caller whose run was reset or replaced by
	// a newer submission before it finished.
	ErrSuperseded = errors.New("run superseded")
)

// Messages shown to the user when a stage fails without a service detail.
const (
	ValidationMessage = "Please enter a valid URL"
	FallbackIngest    = "Failed to fetch webpage content"
	FallbackTransform = "Failed to generate summary"
	FallbackRetrieve  = "Failed to retrieve summary"
	GenericFailure    = "An error occurred while processing the URL"
)

// ValidationError rejects input before anything reaches the network.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Err }

// StageError is a pipeline stage failure. Message is what the run displays.
type StageError struct {
	Stage   string
	Message string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// failureMessage picks the text shown for a failed stage: the service's own
// detail when it sent one, the stage fallback for a bare non-2xx answer, and
// the error text for anything else.
func failureMessage(fallback string, err error) string {
	var rerr *remote.Error
	switch {
	case errors.As(err, &rerr):
		if rerr.Detail != "" {
			return rerr.Detail
		}
		if fallback != "" {
			return fallback
		}
		return GenericFailure
	case err != nil && err.Error() != "":
		return err.Error()
	default:
		return GenericFailure
	}
}
