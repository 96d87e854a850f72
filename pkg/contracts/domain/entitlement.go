// Package domain contains the DTOs shared between the entitlement daemon
// and the host application UI.
package domain

import "time"

// EntitlementStatus is the snapshot the host UI renders on its settings
// screen. Secrets never appear here; the license key is reduced to its
// last-four hint.
type EntitlementStatus struct {
	HasAccess           bool `json:"has_access"`
	EnforcementDisabled bool `json:"enforcement_disabled"`

	IsActivated    bool       `json:"is_activated"`
	KeyHint        string     `json:"key_hint,omitempty"`
	Email          string     `json:"email,omitempty"`
	DeviceName     string     `json:"device_name,omitempty"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`

	TrialConsumed   bool       `json:"trial_consumed"`
	TrialActive     bool       `json:"trial_active"`
	TrialStartedAt  *time.Time `json:"trial_started_at,omitempty"`
	TrialExpiresAt  *time.Time `json:"trial_expires_at,omitempty"`
	TrialRemaining  float64    `json:"trial_remaining_seconds"`
	RemoteTrialMode bool       `json:"remote_trial_mode"`

	StatusMessage string    `json:"status_message,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}
