package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droppy/internal/config"
	"droppy/internal/entitlement"
	apperrors "droppy/internal/errors"
	"droppy/internal/licenseapi"
	"droppy/internal/security"
	"droppy/internal/store"
)

func newTestService(t *testing.T, verifyURL string) EntitlementService {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Product.ID = "prod_droppy"
	cfg.License.VerifyEndpoint = verifyURL

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	secure := store.NewSecureStore(filepath.Join(dir, "ent.sec"), store.DeriveStoreSecret("svc-test"))
	settings, err := store.OpenSettingsStore(filepath.Join(dir, "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { settings.Close() })
	marker := store.NewTrialMarker(filepath.Join(dir, ".trial-consumed"))

	stores := store.NewReconciler(logger, secure, settings, marker)
	license := licenseapi.NewClient(licenseapi.Config{
		Endpoint:  verifyURL,
		ProductID: cfg.Product.ID,
		Timeout:   5 * time.Second,
	}, logger)

	engine := entitlement.NewEngine(cfg, secure, stores, license, nil,
		security.NewFingerprintManager(cfg.Product.BundleID), logger)
	return NewEntitlementService(engine, logger)
}

func newOkVerifyServer(t *testing.T) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	uses := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mu.Lock()
		if r.PostFormValue("increment_uses_count") == "true" {
			uses++
		}
		if r.PostFormValue("decrement_uses_count") == "true" {
			uses--
		}
		resp := licenseapi.VerifyResponse{
			Success:  true,
			Purchase: &licenseapi.Purchase{Email: "user@example.com", Uses: uses},
		}
		mu.Unlock()
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestActivateValidation(t *testing.T) {
	svc := newTestService(t, "http://invalid.invalid")

	tests := []struct {
		name string
		req  ActivateRequest
	}{
		{"missing key", ActivateRequest{Email: "user@example.com"}},
		{"short key", ActivateRequest{LicenseKey: "ab", Email: "user@example.com"}},
		{"missing email", ActivateRequest{LicenseKey: "KEY123"}},
		{"malformed email", ActivateRequest{LicenseKey: "KEY123", Email: "not-an-email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Activate(context.Background(), tt.req)
			require.Error(t, err)

			var apiErr *apperrors.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
			assert.Equal(t, "VALIDATION_ERROR", apiErr.ErrorCode)
		})
	}
}

func TestValidationErrorCarriesFieldDetails(t *testing.T) {
	svc := newTestService(t, "http://invalid.invalid")

	_, err := svc.Activate(context.Background(), ActivateRequest{LicenseKey: "KEY123", Email: "not-an-email"})
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)

	fields, ok := apiErr.Details.([]apperrors.ValidationError)
	require.True(t, ok)
	require.Len(t, fields, 1)
	assert.Equal(t, "Email", fields[0].Field)
	assert.NotEmpty(t, fields[0].Message)
}

func TestActivateThroughService(t *testing.T) {
	srv := newOkVerifyServer(t)
	svc := newTestService(t, srv.URL)

	status, err := svc.Activate(context.Background(), ActivateRequest{
		LicenseKey: "KEY123",
		Email:      "user@example.com",
	})
	require.NoError(t, err)
	assert.True(t, status.IsActivated)
	assert.True(t, status.HasAccess)
	assert.Equal(t, "License activated.", status.StatusMessage)
}

func TestDeactivateScopeValidation(t *testing.T) {
	svc := newTestService(t, "http://invalid.invalid")

	_, err := svc.Deactivate(context.Background(), DeactivateRequest{Scope: "everything"})
	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.ErrorCode)
}

func TestDeactivateDeviceScope(t *testing.T) {
	srv := newOkVerifyServer(t)
	svc := newTestService(t, srv.URL)

	ctx := context.Background()
	_, err := svc.Activate(ctx, ActivateRequest{LicenseKey: "KEY123", Email: "user@example.com"})
	require.NoError(t, err)

	status, err := svc.Deactivate(ctx, DeactivateRequest{Scope: "device"})
	require.NoError(t, err)
	assert.False(t, status.IsActivated)
}

func TestStartTrialThroughService(t *testing.T) {
	srv := newOkVerifyServer(t)
	svc := newTestService(t, srv.URL)

	status, err := svc.StartTrial(context.Background(), StartTrialRequest{})
	require.NoError(t, err)
	assert.True(t, status.TrialActive)
	assert.True(t, status.HasAccess)
}

func TestStartTrialEmailValidation(t *testing.T) {
	svc := newTestService(t, "http://invalid.invalid")

	_, err := svc.StartTrial(context.Background(), StartTrialRequest{Email: "nope"})
	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.ErrorCode)
}

func TestRevalidateThroughService(t *testing.T) {
	srv := newOkVerifyServer(t)
	svc := newTestService(t, srv.URL)

	ctx := context.Background()
	_, err := svc.Activate(ctx, ActivateRequest{LicenseKey: "KEY123", Email: "user@example.com"})
	require.NoError(t, err)

	status, err := svc.Revalidate(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsActivated)
	assert.Equal(t, "License verified.", status.StatusMessage)
}

func TestRevalidateWithoutLicense(t *testing.T) {
	srv := newOkVerifyServer(t)
	svc := newTestService(t, srv.URL)

	_, err := svc.Revalidate(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNotActivated)
}
