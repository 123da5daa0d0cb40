// Package slaconfig loads SLA configuration snapshots from files and
// validates them against a JSON schema.
package slaconfig

import "strings"

// SnapshotFile pairs a loaded snapshot with its source file path
type SnapshotFile struct {
	Snapshot map[string]any
	File     string
}

// ValidationError represents a validation error for a specific snapshot
type ValidationError struct {
	File    string `json:"file"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e ValidationError) Error() string {
	prefix := ""
	if e.File != "" {
		prefix = e.File + ": "
	}
	if e.Path != "" {
		return prefix + e.Path + ": " + e.Message
	}
	return prefix + e.Message
}

// ValidationErrors is returned when a snapshot fails validation
type ValidationErrors []ValidationError

// Error implements the error interface
func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
