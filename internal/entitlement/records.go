package entitlement

import (
	"context"
	"time"

	"droppy/internal/store"
)

// LicenseRecord is the engine's view of the activated license. The key
// itself lives only in the secure store; everything else is mirrored to the
// settings store for redundancy.
type LicenseRecord struct {
	Key            string
	KeyHint        string
	Email          string
	DeviceName     string
	LastVerifiedAt time.Time
	IsActive       bool
}

// TrialRecord is the engine's view of the trial. Consumed is monotonic:
// once true it never returns to false for the lifetime of the installation.
type TrialRecord struct {
	Consumed         bool
	StartedAt        time.Time
	ExpiresAt        time.Time
	LastSeenAt       time.Time
	LastRemoteSyncAt time.Time
	DeviceID         string
	AccountHash      string
}

// loadLicenseRecord reconciles the persisted license fields. The key is
// read from the secure store only.
func loadLicenseRecord(ctx context.Context, secure store.StateStore, rec *store.Reconciler) LicenseRecord {
	var lr LicenseRecord

	if v, ok := secure.Get(store.KeyLicenseKey); ok {
		lr.Key = v
	}
	lr.IsActive = lr.Key != "" && rec.Bool(ctx, store.KeyLicenseActive)
	lr.KeyHint, _ = rec.String(ctx, store.KeyLicenseHint)
	lr.Email, _ = rec.String(ctx, store.KeyLicenseEmail)
	lr.DeviceName, _ = rec.String(ctx, store.KeyDeviceName)
	lr.LastVerifiedAt, _ = rec.Time(ctx, store.KeyLastVerifiedAt)

	return lr
}

// loadTrialRecord reconciles the persisted trial fields across all stores
func loadTrialRecord(ctx context.Context, rec *store.Reconciler) TrialRecord {
	var tr TrialRecord

	tr.Consumed = rec.Bool(ctx, store.KeyTrialConsumed)
	tr.StartedAt, _ = rec.Time(ctx, store.KeyTrialStartedAt)
	tr.ExpiresAt, _ = rec.Time(ctx, store.KeyTrialExpiresAt)
	tr.LastSeenAt, _ = rec.Time(ctx, store.KeyTrialLastSeenAt)
	tr.LastRemoteSyncAt, _ = rec.Time(ctx, store.KeyTrialLastSyncAt)
	tr.DeviceID, _ = rec.String(ctx, store.KeyTrialDeviceID)
	tr.AccountHash, _ = rec.String(ctx, store.KeyTrialAccountHash)

	return tr
}

// persistTrialRecord mirrors the trial record to every store. Reports true
// when at least one store accepted the consumed flag.
func persistTrialRecord(ctx context.Context, rec *store.Reconciler, tr TrialRecord) bool {
	ok := true
	if tr.Consumed {
		ok = rec.SetAll(ctx, store.KeyTrialConsumed, "true")
	}
	if !tr.StartedAt.IsZero() {
		rec.SetAllTime(ctx, store.KeyTrialStartedAt, tr.StartedAt)
	}
	if !tr.ExpiresAt.IsZero() {
		rec.SetAllTime(ctx, store.KeyTrialExpiresAt, tr.ExpiresAt)
	}
	if !tr.LastSeenAt.IsZero() {
		rec.SetAllTime(ctx, store.KeyTrialLastSeenAt, tr.LastSeenAt)
	}
	if !tr.LastRemoteSyncAt.IsZero() {
		rec.SetAllTime(ctx, store.KeyTrialLastSyncAt, tr.LastRemoteSyncAt)
	}
	if tr.DeviceID != "" {
		rec.SetAll(ctx, store.KeyTrialDeviceID, tr.DeviceID)
	}
	if tr.AccountHash != "" {
		rec.SetAll(ctx, store.KeyTrialAccountHash, tr.AccountHash)
	}
	return ok
}
