package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStores(t *testing.T) (*SecureStore, *SettingsStore, *TrialMarker) {
	t.Helper()
	dir := t.TempDir()

	secure := NewSecureStore(filepath.Join(dir, "entitlement.sec"), DeriveStoreSecret("test-device"))

	settings, err := OpenSettingsStore(filepath.Join(dir, "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { settings.Close() })

	marker := NewTrialMarker(filepath.Join(dir, ".trial-consumed"))

	return secure, settings, marker
}

func newTestReconciler(t *testing.T) (*Reconciler, *SecureStore, *SettingsStore, *TrialMarker) {
	t.Helper()
	secure, settings, marker := newTestStores(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewReconciler(logger, secure, settings, marker), secure, settings, marker
}

func TestSecureStoreRoundTrip(t *testing.T) {
	secure, _, _ := newTestStores(t)

	require.True(t, secure.Set(KeyLicenseKey, "KEY123"))

	v, ok := secure.Get(KeyLicenseKey)
	require.True(t, ok)
	assert.Equal(t, "KEY123", v)
}

func TestSecureStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entitlement.sec")
	secret := DeriveStoreSecret("test-device")

	first := NewSecureStore(path, secret)
	require.True(t, first.Set(KeyLicenseKey, "KEY123"))

	second := NewSecureStore(path, secret)
	v, ok := second.Get(KeyLicenseKey)
	require.True(t, ok)
	assert.Equal(t, "KEY123", v)
}

func TestSecureStoreWrongSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entitlement.sec")

	first := NewSecureStore(path, DeriveStoreSecret("device-a"))
	require.True(t, first.Set(KeyLicenseKey, "KEY123"))

	// A different machine secret cannot decrypt the file
	other := NewSecureStore(path, DeriveStoreSecret("device-b"))
	_, ok := other.Get(KeyLicenseKey)
	assert.False(t, ok)
}

func TestSecureStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entitlement.sec")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0600))

	secure := NewSecureStore(path, DeriveStoreSecret("test-device"))

	_, ok := secure.Get(KeyLicenseKey)
	assert.False(t, ok)

	// A write replaces the corrupt file and recovers the store
	require.True(t, secure.Set(KeyLicenseKey, "RECOVERED"))
	v, ok := secure.Get(KeyLicenseKey)
	require.True(t, ok)
	assert.Equal(t, "RECOVERED", v)
}

func TestSecureStoreDelete(t *testing.T) {
	secure, _, _ := newTestStores(t)

	require.True(t, secure.Set(KeyLicenseKey, "KEY123"))
	require.NoError(t, secure.Delete(KeyLicenseKey))

	_, ok := secure.Get(KeyLicenseKey)
	assert.False(t, ok)
}

func TestSettingsStoreRoundTrip(t *testing.T) {
	_, settings, _ := newTestStores(t)

	require.True(t, settings.Set(KeyLicenseEmail, "user@example.com"))

	v, ok := settings.Get(KeyLicenseEmail)
	require.True(t, ok)
	assert.Equal(t, "user@example.com", v)

	// Overwrite
	require.True(t, settings.Set(KeyLicenseEmail, "other@example.com"))
	v, _ = settings.Get(KeyLicenseEmail)
	assert.Equal(t, "other@example.com", v)

	require.NoError(t, settings.Delete(KeyLicenseEmail))
	_, ok = settings.Get(KeyLicenseEmail)
	assert.False(t, ok)
}

func TestTrialMarkerSemantics(t *testing.T) {
	_, _, marker := newTestStores(t)

	assert.True(t, marker.Handles(KeyTrialConsumed))
	assert.False(t, marker.Handles(KeyLicenseKey))

	_, ok := marker.Get(KeyTrialConsumed)
	assert.False(t, ok)

	require.True(t, marker.Set(KeyTrialConsumed, "true"))
	v, ok := marker.Get(KeyTrialConsumed)
	require.True(t, ok)
	assert.Equal(t, "true", v)

	// The consumed flag is monotonic: writing false leaves the marker
	require.True(t, marker.Set(KeyTrialConsumed, "false"))
	_, ok = marker.Get(KeyTrialConsumed)
	assert.True(t, ok)
}

func TestReconcilerBoolORsAcrossStores(t *testing.T) {
	r, secure, settings, marker := newTestReconciler(t)
	ctx := context.Background()

	// Only the marker survives a wipe of the other two stores
	require.True(t, marker.Set(KeyTrialConsumed, "true"))

	assert.True(t, r.Bool(ctx, KeyTrialConsumed))

	// Reconciliation repaired the stores that lost the flag
	v, ok := secure.Get(KeyTrialConsumed)
	require.True(t, ok)
	assert.Equal(t, "true", v)
	v, ok = settings.Get(KeyTrialConsumed)
	require.True(t, ok)
	assert.Equal(t, "true", v)
}

func TestReconcilerBoolFalseWhenAbsent(t *testing.T) {
	r, _, _, _ := newTestReconciler(t)
	assert.False(t, r.Bool(context.Background(), KeyTrialConsumed))
}

func TestReconcilerTimePrefersNewest(t *testing.T) {
	r, secure, settings, _ := newTestReconciler(t)
	ctx := context.Background()

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(48 * time.Hour)

	require.True(t, secure.Set(KeyTrialLastSeenAt, EncodeTime(older)))
	require.True(t, settings.Set(KeyTrialLastSeenAt, EncodeTime(newer)))

	got, ok := r.Time(ctx, KeyTrialLastSeenAt)
	require.True(t, ok)
	assert.True(t, got.Equal(newer))

	// The older store was repaired to the newest value
	v, _ := secure.Get(KeyTrialLastSeenAt)
	repaired, ok := DecodeTime(v)
	require.True(t, ok)
	assert.True(t, repaired.Equal(newer))
}

func TestReconcilerTimeAbsent(t *testing.T) {
	r, _, _, _ := newTestReconciler(t)
	_, ok := r.Time(context.Background(), KeyTrialExpiresAt)
	assert.False(t, ok)
}

func TestReconcilerStringRepairsGaps(t *testing.T) {
	r, secure, settings, _ := newTestReconciler(t)
	ctx := context.Background()

	require.True(t, settings.Set(KeyTrialDeviceID, "device-123"))

	v, ok := r.String(ctx, KeyTrialDeviceID)
	require.True(t, ok)
	assert.Equal(t, "device-123", v)

	repaired, ok := secure.Get(KeyTrialDeviceID)
	require.True(t, ok)
	assert.Equal(t, "device-123", repaired)
}

func TestReconcilerSetAllAndDeleteAll(t *testing.T) {
	r, secure, settings, _ := newTestReconciler(t)
	ctx := context.Background()

	require.True(t, r.SetAll(ctx, KeyLicenseKey, "KEY123"))

	v, ok := secure.Get(KeyLicenseKey)
	require.True(t, ok)
	assert.Equal(t, "KEY123", v)
	v, ok = settings.Get(KeyLicenseKey)
	require.True(t, ok)
	assert.Equal(t, "KEY123", v)

	r.DeleteAll(ctx, KeyLicenseKey)

	_, ok = secure.Get(KeyLicenseKey)
	assert.False(t, ok)
	_, ok = settings.Get(KeyLicenseKey)
	assert.False(t, ok)
}

func TestEncodeDecodeTime(t *testing.T) {
	now := time.Now()
	decoded, ok := DecodeTime(EncodeTime(now))
	require.True(t, ok)
	assert.True(t, decoded.Equal(now))

	_, ok = DecodeTime("garbage")
	assert.False(t, ok)
}
