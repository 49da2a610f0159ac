package service

import (
	"fmt"
)

// UpstreamError reports a failed fetch from an origin or object store.
// StatusCode is set when the origin answered with an unexpected status; Err is
// set when no usable response was received.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream request failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
