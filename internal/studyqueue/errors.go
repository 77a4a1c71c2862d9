package studyqueue

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport matches failures to send the request or read the response.
	ErrTransport = errors.New("studyqueue: transport failure")
	// ErrPayload matches responses whose body is not the expected JSON.
	ErrPayload = errors.New("studyqueue: malformed payload")
)

// TransportError reports that the request could not be completed.
type TransportError struct {
	URL string // api key redacted
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("study queue request %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// PayloadError reports that the response body could not be decoded.
type PayloadError struct {
	URL    string // api key redacted
	Status int
	Err    error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("study queue response %s (status %d): %v", e.URL, e.Status, e.Err)
}

func (e *PayloadError) Unwrap() error        { return e.Err }
func (e *PayloadError) Is(target error) bool { return target == ErrPayload }
