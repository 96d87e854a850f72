package errors

import (
	"errors"
	"net/http"
)

// Entitlement-specific sentinel errors. The engine returns these; the
// transport layer maps them to APIErrors via MapEntitlementError.
var (
	ErrInvalidLicenseKey   = errors.New("invalid license key")
	ErrEmailMismatch       = errors.New("purchase email does not match")
	ErrSeatConflict        = errors.New("license already active on another device")
	ErrSeatTakenElsewhere  = errors.New("license seat taken by another device")
	ErrNotActivated        = errors.New("no license activated")
	ErrAlreadyActivated    = errors.New("a license is already activated")
	ErrTrialConsumed       = errors.New("trial already used on this installation")
	ErrTrialEmailRequired  = errors.New("email required to start trial")
	ErrTrialNotEligible    = errors.New("not eligible for a trial")
	ErrNetwork             = errors.New("license server unreachable")
	ErrServer              = errors.New("license server error")
	ErrPersistence         = errors.New("failed to persist entitlement state")
	ErrOperationInProgress = errors.New("another entitlement operation is in progress")
)

// MapEntitlementError converts an engine error into a structured APIError
// for the transport layer.
func MapEntitlementError(err error) *APIError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidLicenseKey):
		return New(http.StatusBadRequest, "INVALID_LICENSE_KEY", "The provided license key is invalid")
	case errors.Is(err, ErrEmailMismatch):
		return New(http.StatusBadRequest, "EMAIL_MISMATCH", "The email does not match the purchase record")
	case errors.Is(err, ErrSeatConflict), errors.Is(err, ErrSeatTakenElsewhere):
		return New(http.StatusConflict, "SEAT_CONFLICT", "This license is already active on another device")
	case errors.Is(err, ErrAlreadyActivated):
		return New(http.StatusConflict, "ALREADY_ACTIVATED", "A license is already activated on this device")
	case errors.Is(err, ErrNotActivated):
		return New(http.StatusPreconditionRequired, "NOT_ACTIVATED", "No license has been activated")
	case errors.Is(err, ErrTrialConsumed):
		return New(http.StatusConflict, "TRIAL_CONSUMED", "The trial has already been used on this installation")
	case errors.Is(err, ErrTrialEmailRequired):
		return New(http.StatusBadRequest, "TRIAL_EMAIL_REQUIRED", "An email address is required to start the trial")
	case errors.Is(err, ErrTrialNotEligible):
		return New(http.StatusForbidden, "TRIAL_NOT_ELIGIBLE", "This account is not eligible for a trial")
	case errors.Is(err, ErrOperationInProgress):
		return New(http.StatusConflict, "OPERATION_IN_PROGRESS", "Another entitlement operation is in progress")
	case errors.Is(err, ErrNetwork):
		return New(http.StatusServiceUnavailable, "NETWORK_ERROR", "Unable to reach the license server")
	case errors.Is(err, ErrServer):
		return New(http.StatusBadGateway, "SERVER_ERROR", "The license server reported an error")
	case errors.Is(err, ErrPersistence):
		return New(http.StatusInternalServerError, "PERSISTENCE_FAILED", "Failed to persist entitlement state")
	default:
		return NewWithDetails(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An unexpected error occurred", err.Error())
	}
}
