// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

package forecast

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates a malformed coordinate or location key
	ErrInvalidInput = errors.New("invalid input")
	// ErrNetwork indicates a transport-level failure while talking to a provider
	ErrNetwork = errors.New("network failure")
	// ErrDecode indicates a malformed provider payload
	ErrDecode = errors.New("malformed provider payload")
	// ErrNotFound indicates that neither a cached nor a freshly fetched forecast is available
	ErrNotFound = errors.New("no forecast available")
)

// ProviderError represents a remote 4xx/5xx response from a forecast provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

// Error satisfies the error interface
func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider %s returned status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("provider %s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Recoverable reports whether the given fetch error may be recovered from by serving
// stale cached data. Invalid input is never recoverable.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidInput) {
		return false
	}
	var perr *ProviderError
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrDecode) || errors.As(err, &perr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
