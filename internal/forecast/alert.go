// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

package forecast

import (
	"encoding/json"
	"strings"
	"time"
)

// Severity classifies the impact of an Alert. The ordering of the constants is the
// total order used for threshold filtering.
type Severity int

const (
	SeverityMinor Severity = iota
	SeverityModerate
	SeveritySevere
	SeverityExtreme
)

// ParseSeverity maps a provider severity string to a Severity. Unknown or unparseable
// values map to SeverityModerate.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minor":
		return SeverityMinor
	case "moderate":
		return SeverityModerate
	case "severe":
		return SeveritySevere
	case "extreme":
		return SeverityExtreme
	default:
		return SeverityModerate
	}
}

// String satisfies the fmt.Stringer interface
func (s Severity) String() string {
	switch s {
	case SeverityMinor:
		return "minor"
	case SeveritySevere:
		return "severe"
	case SeverityExtreme:
		return "extreme"
	default:
		return "moderate"
	}
}

// AtLeast reports whether the severity is at or above the given threshold.
func (s Severity) AtLeast(min Severity) bool {
	return s >= min
}

// MarshalJSON satisfies the json.Marshaler interface. Severities are stored as their
// string form so cache records stay readable.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON satisfies the json.Unmarshaler interface
func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseSeverity(str)
	return nil
}

// Alert is a transient weather alert reported by a provider. The ID is the stable
// deduplication key across refreshes.
type Alert struct {
	ID          string     `json:"id"`
	Headline    string     `json:"headline"`
	Description string     `json:"description"`
	Severity    Severity   `json:"severity"`
	Event       string     `json:"event"`
	Start       time.Time  `json:"start"`
	End         *time.Time `json:"end,omitempty"`
}
