// Package bep reads Bazel Build Event Protocol files in their newline-delimited
// JSON form and extracts test results from them.
package bep

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// BuildEvent is the subset of a BEP JSON record this agent cares about.
// All fields are optional; anything missing decodes to its zero value so that
// events written by newer Bazel versions stay readable.
type BuildEvent struct {
	LastMessage bool         `json:"lastMessage"`
	ID          *EventID     `json:"id"`
	TestSummary *TestSummary `json:"testSummary"`
}

// EventID identifies the build event. Only test summary IDs are recognized.
type EventID struct {
	TestSummary *TestSummaryID `json:"testSummary"`
}

// TestSummaryID carries the label of the test target the summary belongs to.
type TestSummaryID struct {
	Label string `json:"label"`
}

// TestSummary holds the overall result of a test target and the outputs of its
// failed runs.
type TestSummary struct {
	OverallStatus string         `json:"overallStatus"`
	Failed        []FailedOutput `json:"failed"`
}

// FailedOutput points at the log file of one failed test run.
type FailedOutput struct {
	URI string `json:"uri"`
}

// ParseBuildEvent decodes a single line of a BEP JSON file. The line must be a
// JSON object; anything else (arrays, bare scalars, null, invalid syntax) is an
// error, because it usually means the producer has not finished writing the line.
func ParseBuildEvent(data []byte) (*BuildEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("not a JSON object")
	}

	var event BuildEvent
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return nil, fmt.Errorf("invalid build event: %w", err)
	}
	return &event, nil
}

// IsLastMessage reports whether this event is the terminal message of the
// stream. No bytes after it are ever read.
func (e *BuildEvent) IsLastMessage() bool {
	return e.LastMessage
}

// IsTestSummary reports whether this event carries the summary of a test target.
func (e *BuildEvent) IsTestSummary() bool {
	return e.ID != nil && e.ID.TestSummary != nil
}

// Label returns the target label of a test summary event, or "" if absent.
func (e *BuildEvent) Label() string {
	if !e.IsTestSummary() {
		return ""
	}
	return e.ID.TestSummary.Label
}

// OverallStatus returns the overall test status (for example PASSED, FAILED,
// TIMEOUT or FLAKY), or "" if absent.
func (e *BuildEvent) OverallStatus() string {
	if e.TestSummary == nil {
		return ""
	}
	return e.TestSummary.OverallStatus
}

// FailedOutputURIs returns the URIs of the log files of all failed runs, in the
// order Bazel reported them. Outputs without a URI contribute an empty string so
// callers see the same number of entries Bazel wrote.
func (e *BuildEvent) FailedOutputURIs() []string {
	if e.TestSummary == nil || len(e.TestSummary.Failed) == 0 {
		return nil
	}
	uris := make([]string, 0, len(e.TestSummary.Failed))
	for _, output := range e.TestSummary.Failed {
		uris = append(uris, output.URI)
	}
	return uris
}
