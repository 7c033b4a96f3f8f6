// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

// Package testhelper provides shared helpers for the weathervane test suites.
package testhelper

import (
	"net/http"
	"os"
	"testing"
)

const (
	// TestOnlineAPIURL is an online endpoint used by integration tests that require real network I/O
	TestOnlineAPIURL = "https://api.open-meteo.com/v1/forecast"
	// integrationEnv enables tests that perform real network I/O
	integrationEnv = "WEATHERVANE_INTEGRATION_TESTS"
)

// MockRoundTripper is a http.RoundTripper that delegates to the given function
type MockRoundTripper struct {
	Fn func(req *http.Request) (*http.Response, error)
}

// RoundTrip satisfies the http.RoundTripper interface
func (m MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Fn(req)
}

// PerformIntegrationTests skips the calling test unless integration tests are enabled
// via the environment
func PerformIntegrationTests(t *testing.T) {
	t.Helper()
	if os.Getenv(integrationEnv) == "" {
		t.Skip("skipping integration test, set " + integrationEnv + " to enable")
	}
}
