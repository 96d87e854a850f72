package store

import (
	"os"
)

// TrialMarker is the third redundant store: a single file whose existence
// means the trial has been consumed. It carries no other state, so it
// survives database corruption and keystore resets.
type TrialMarker struct {
	path string
}

// NewTrialMarker creates a marker store at path
func NewTrialMarker(path string) *TrialMarker {
	return &TrialMarker{path: path}
}

// Name identifies the store in reconciliation logs
func (m *TrialMarker) Name() string { return "trial_marker" }

// Handles restricts this store to the consumed flag
func (m *TrialMarker) Handles(key string) bool {
	return key == KeyTrialConsumed
}

// Get reports "true" when the marker file exists
func (m *TrialMarker) Get(key string) (string, bool) {
	if key != KeyTrialConsumed {
		return "", false
	}
	if _, err := os.Stat(m.path); err != nil {
		return "", false
	}
	return "true", true
}

// Set creates the marker for "true". The consumed flag is monotonic: a
// "false" or empty write leaves an existing marker in place.
func (m *TrialMarker) Set(key, value string) bool {
	if key != KeyTrialConsumed {
		return false
	}
	if value != "true" {
		return true
	}
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
