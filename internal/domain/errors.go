package domain

import (
	"errors"
	"fmt"
)

// ErrMissingUpstreamID is the record error for payloads without a HubSpot id.
var ErrMissingUpstreamID = errors.New("Event missing HubSpot ID") //nolint:staticcheck // shown to operators verbatim

// ConfigurationError means the connector cannot run with its current settings.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// TransportError is a failed or non-2xx upstream call.
type TransportError struct {
	Status   int
	Message  string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("hubspot %s: status %d: %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("hubspot %s: %s", e.Endpoint, e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConcurrencyError means another sync holds the lock.
type ConcurrencyError struct {
	Message string
}

func (e *ConcurrencyError) Error() string { return e.Message }

// RecordError is a failure to persist a single upstream record.
type RecordError struct {
	UpstreamID string
	Err        error
}

func (e *RecordError) Error() string {
	if e.UpstreamID == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("event %s: %s", e.UpstreamID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// ImageFetchError is a failed image download or save.
type ImageFetchError struct {
	URL string
	Err error
}

func (e *ImageFetchError) Error() string {
	return fmt.Sprintf("fetch image %s: %s", e.URL, e.Err)
}

func (e *ImageFetchError) Unwrap() error { return e.Err }
