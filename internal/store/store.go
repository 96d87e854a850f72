package store

import (
	"context"
	"log/slog"
	"time"

	"droppy/internal/infrastructure"
)

// Well-known keys shared across all stores. Every key is mirrored to every
// store that can hold it; no single store is ever trusted in isolation.
const (
	KeyLicenseKey     = "license.key"
	KeyLicenseActive  = "license.active"
	KeyLicenseEmail   = "license.email"
	KeyLicenseHint    = "license.key_hint"
	KeyDeviceName     = "license.device_name"
	KeyLastVerifiedAt = "license.last_verified_at"

	KeyTrialConsumed    = "trial.consumed"
	KeyTrialStartedAt   = "trial.started_at"
	KeyTrialExpiresAt   = "trial.expires_at"
	KeyTrialLastSeenAt  = "trial.last_seen_at"
	KeyTrialLastSyncAt  = "trial.last_remote_sync_at"
	KeyTrialDeviceID    = "trial.device_id"
	KeyTrialAccountHash = "trial.account_hash"
)

// timeLayout is the on-disk encoding for timestamps
const timeLayout = time.RFC3339Nano

// StateStore is the capability each redundant store implements. Values are
// strings; booleans are "true"/"false" and timestamps RFC 3339. Set reports
// success rather than returning an error because callers treat individual
// store failures as degraded redundancy, not as operation failures.
type StateStore interface {
	Get(key string) (string, bool)
	Set(key, value string) bool
	Name() string
}

// Deleter is implemented by stores that support removing a key outright.
type Deleter interface {
	Delete(key string) error
}

// KeyFilter is implemented by stores that only hold a subset of keys, such
// as the trial marker file. The reconciler skips a filtered store for keys
// it does not handle instead of recording a failed write.
type KeyFilter interface {
	Handles(key string) bool
}

// handles reports whether a store participates for the given key
func handles(s StateStore, key string) bool {
	if f, ok := s.(KeyFilter); ok {
		return f.Handles(key)
	}
	return true
}

// EncodeTime formats a timestamp for storage
func EncodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// DecodeTime parses a stored timestamp
func DecodeTime(value string) (time.Time, bool) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Reconciler reads each key across every store with a permissive combinator
// and repairs whichever store lost the value. Order matters only for string
// reads: earlier stores win ties.
type Reconciler struct {
	stores []StateStore
	logger *slog.Logger
}

// NewReconciler creates a reconciler over the given stores
func NewReconciler(logger *slog.Logger, stores ...StateStore) *Reconciler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Reconciler{
		stores: stores,
		logger: logger.With(slog.String("component", "store_reconciler")),
	}
}

// Stores returns the underlying store set
func (r *Reconciler) Stores() []StateStore {
	return r.stores
}

// Bool reconciles a boolean key: logical OR across every store. A true
// value discovered anywhere is written back to every store that lost it,
// which is what makes the flag monotonic across partial tampering.
func (r *Reconciler) Bool(ctx context.Context, key string) bool {
	result := false
	missing := make([]StateStore, 0, len(r.stores))

	for _, s := range r.stores {
		if !handles(s, key) {
			continue
		}
		if v, ok := s.Get(key); ok && v == "true" {
			result = true
		} else {
			missing = append(missing, s)
		}
	}

	if result && len(missing) > 0 {
		for _, s := range missing {
			if !s.Set(key, "true") {
				r.logger.WarnContext(ctx, "failed to repair store",
					slog.String("key", key),
					slog.String("store", s.Name()),
				)
			}
		}
		r.logger.InfoContext(ctx, "repaired boolean across stores",
			slog.String("key", key),
			slog.Int("repaired_stores", len(missing)),
		)
	}

	return result
}

// Time reconciles a timestamp key: prefer non-null, then newest. The
// reconciled value is written back to every store that disagreed.
func (r *Reconciler) Time(ctx context.Context, key string) (time.Time, bool) {
	var newest time.Time
	found := false

	for _, s := range r.stores {
		if !handles(s, key) {
			continue
		}
		v, ok := s.Get(key)
		if !ok {
			continue
		}
		t, ok := DecodeTime(v)
		if !ok {
			continue
		}
		if !found || t.After(newest) {
			newest = t
			found = true
		}
	}

	if found {
		r.repair(ctx, key, EncodeTime(newest))
	}

	return newest, found
}

// String reconciles a string key: first non-empty value in store order wins.
func (r *Reconciler) String(ctx context.Context, key string) (string, bool) {
	for _, s := range r.stores {
		if !handles(s, key) {
			continue
		}
		if v, ok := s.Get(key); ok && v != "" {
			r.repair(ctx, key, v)
			return v, true
		}
	}
	return "", false
}

// SetAll writes a key to every store. Reports true when at least one store
// accepted the write; redundancy requires one survivor, not unanimity.
func (r *Reconciler) SetAll(ctx context.Context, key, value string) bool {
	any := false
	for _, s := range r.stores {
		if !handles(s, key) {
			continue
		}
		if s.Set(key, value) {
			any = true
		} else {
			r.logger.WarnContext(ctx, "store write failed",
				slog.String("key", key),
				slog.String("store", s.Name()),
			)
		}
	}
	return any
}

// SetAllTime writes a timestamp to every store
func (r *Reconciler) SetAllTime(ctx context.Context, key string, t time.Time) bool {
	return r.SetAll(ctx, key, EncodeTime(t))
}

// DeleteAll removes a key from every store that supports deletion and
// overwrites it with the empty string elsewhere.
func (r *Reconciler) DeleteAll(ctx context.Context, key string) {
	for _, s := range r.stores {
		if !handles(s, key) {
			continue
		}
		if d, ok := s.(Deleter); ok {
			if err := d.Delete(key); err != nil {
				r.logger.WarnContext(ctx, "store delete failed",
					slog.String("key", key),
					slog.String("store", s.Name()),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		s.Set(key, "")
	}
}

// repair writes the reconciled value back to any store holding a different
// or missing value.
func (r *Reconciler) repair(ctx context.Context, key, value string) {
	for _, s := range r.stores {
		if !handles(s, key) {
			continue
		}
		if v, ok := s.Get(key); !ok || v != value {
			if !s.Set(key, value) {
				r.logger.WarnContext(ctx, "failed to repair store",
					slog.String("key", key),
					slog.String("store", s.Name()),
				)
			}
		}
	}
}
