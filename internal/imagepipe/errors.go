package imagepipe

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the stable, caller-visible taxonomy of §7.
//
// Cancelled and the two bare sentinels below are matched with errors.Is.
// LoadingError additionally carries the underlying transport error and is
// matched with errors.As.
var (
	// ErrCancelled means the task or load was cancelled before completion.
	ErrCancelled = errors.New("imagepipe: cancelled")

	// ErrDecodingFailed means the decoder returned no image.
	ErrDecodingFailed = errors.New("imagepipe: decoding failed")

	// ErrProcessingFailed means the Processor composition returned no
	// image; wrapped with the failing Processor's name when available.
	ErrProcessingFailed = errors.New("imagepipe: processing failed")
)

// LoadingError wraps a DataLoading collaborator's failure. The underlying
// cause is preserved and reachable with errors.As / errors.Unwrap.
type LoadingError struct {
	Cause error
}

func (e *LoadingError) Error() string {
	if e.Cause == nil {
		return "imagepipe: loading failed"
	}
	return fmt.Sprintf("imagepipe: loading failed: %s", e.Cause.Error())
}

func (e *LoadingError) Unwrap() error { return e.Cause }

// NewLoadingError wraps cause as a LoadingFailed error. Passing a nil
// cause is a programmer error but yields a valid, non-nil LoadingError
// rather than panicking.
func NewLoadingError(cause error) error {
	return &LoadingError{Cause: cause}
}

func wrapProcessingFailed(processorName string, cause error) error {
	if processorName == "" {
		return fmt.Errorf("%w", ErrProcessingFailed)
	}
	return fmt.Errorf("%w: processor %q: %s", ErrProcessingFailed, processorName, causeMessage(cause))
}

func causeMessage(err error) string {
	if err == nil {
		return "nil image"
	}
	return err.Error()
}
