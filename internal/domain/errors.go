package domain

import (
	"errors"
	"fmt"
)

// Failure kinds shared by every upstream adapter.
var (
	ErrTransport             = errors.New("transport failure")
	ErrUpstreamStatus        = errors.New("upstream status failure")
	ErrMalformedResponse     = errors.New("malformed response")
	ErrClassificationMissing = errors.New("classification missing from AI")
)

// StatusError reports a non-success HTTP status from an upstream service.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Service, e.Code)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrUpstreamStatus
}
