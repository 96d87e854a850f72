package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"droppy/internal/config"
	apperrors "droppy/internal/errors"
	"droppy/internal/infrastructure"
	"droppy/internal/licenseapi"
	"droppy/internal/security"
	"droppy/internal/store"
	"droppy/internal/trialapi"
	"droppy/pkg/contracts/domain"
)

// Status messages surfaced to the host UI
const (
	msgActivated      = "License activated."
	msgDeactivated    = "License deactivated on this device."
	msgOffline        = "Using last verified license (offline)."
	msgVerified       = "License verified."
	msgInvalid        = "License is no longer valid."
	msgSeatConflict   = "This license is already active on another device."
	msgSeatTaken      = "License seat taken by another device."
	msgTrialStarted   = "Trial started."
	msgTrialConsumed  = "Trial already used on this installation."
	msgEnforcementOff = "License enforcement is disabled."
)

// Engine owns the entitlement records and composes the access decision.
// It is the only writer of license and trial state; collaborators read one
// boolean and call the handful of entry points below.
//
// A single mutex guards the records. The isChecking flag additionally
// rejects overlapping activate/revalidate/deactivate calls so the
// claim-and-compensate protocol never interleaves with itself on one
// device.
type Engine struct {
	cfg     *config.Config
	secure  store.StateStore
	stores  *store.Reconciler
	license *licenseapi.Client
	trial   *trialapi.Client
	fp      *security.FingerprintManager
	logger  *slog.Logger
	metrics *engineMetrics

	mu         sync.Mutex
	isChecking bool

	licenseRec LicenseRecord
	trialRec   TrialRecord

	rollbackSeen  bool
	trialActive   bool
	withinGrace   bool
	statusMessage string

	lastAccess bool
	onChange   func(hasAccess bool)
}

// NewEngine builds the engine and reconciles persisted state. The trial
// client may be nil when no remote trial service is configured.
func NewEngine(
	cfg *config.Config,
	secure store.StateStore,
	stores *store.Reconciler,
	license *licenseapi.Client,
	trial *trialapi.Client,
	fp *security.FingerprintManager,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	e := &Engine{
		cfg:     cfg,
		secure:  secure,
		stores:  stores,
		license: license,
		trial:   trial,
		fp:      fp,
		logger:  logger.With(slog.String("component", "entitlement_engine")),
		metrics: newEngineMetrics(),
	}

	ctx := context.Background()
	e.licenseRec = loadLicenseRecord(ctx, secure, stores)
	e.trialRec = loadTrialRecord(ctx, stores)
	e.ensureDeviceID(ctx)

	e.refreshTrialStateLocked(ctx, time.Now())
	e.lastAccess = e.hasAccessLocked()
	if e.cfg.EnforcementDisabled() {
		e.statusMessage = msgEnforcementOff
	}

	e.logInfo(ctx, "init", "entitlement engine initialized",
		slog.Bool("enforcement_disabled", cfg.EnforcementDisabled()),
		slog.Bool("remote_trial_mode", cfg.RemoteTrialMode()),
		slog.Bool("is_activated", e.licenseRec.IsActive),
		slog.Bool("trial_consumed", e.trialRec.Consumed),
	)

	return e
}

// OnAccessChange registers the edge-triggered access notification callback.
// The callback fires only when the access boolean actually flips, from its
// own goroutine.
func (e *Engine) OnAccessChange(fn func(hasAccess bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = fn
}

// HasAccess recomputes and returns the access decision
func (e *Engine) HasAccess(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshTrialStateLocked(ctx, time.Now())
	e.notifyAccessLocked(ctx)
	return e.hasAccessLocked()
}

// RefreshTrialState recomputes the trial machine against the supplied
// reference instant. Every entry point calls this internally; exposing it
// lets the host refresh on wake without any network traffic.
func (e *Engine) RefreshTrialState(ctx context.Context, reference time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshTrialStateLocked(ctx, reference)
	e.notifyAccessLocked(ctx)
}

// Status returns a snapshot for the host UI
func (e *Engine) Status(ctx context.Context) domain.EntitlementStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	e.refreshTrialStateLocked(ctx, now)
	e.notifyAccessLocked(ctx)

	st := domain.EntitlementStatus{
		HasAccess:           e.hasAccessLocked(),
		EnforcementDisabled: e.cfg.EnforcementDisabled(),
		IsActivated:         e.licenseRec.IsActive,
		KeyHint:             e.licenseRec.KeyHint,
		Email:               e.licenseRec.Email,
		DeviceName:          e.licenseRec.DeviceName,
		TrialConsumed:       e.trialRec.Consumed,
		TrialActive:         e.trialActive,
		RemoteTrialMode:     e.cfg.RemoteTrialMode(),
		StatusMessage:       e.statusMessage,
		CheckedAt:           now,
	}
	if !e.licenseRec.LastVerifiedAt.IsZero() {
		t := e.licenseRec.LastVerifiedAt
		st.LastVerifiedAt = &t
	}
	if !e.trialRec.StartedAt.IsZero() {
		t := e.trialRec.StartedAt
		st.TrialStartedAt = &t
	}
	if !e.trialRec.ExpiresAt.IsZero() {
		t := e.trialRec.ExpiresAt
		st.TrialExpiresAt = &t
	}
	if e.trialActive {
		st.TrialRemaining = e.trialRec.ExpiresAt.Sub(now).Seconds()
	}

	return st
}

// Activate claims the single seat for the given license key. The claim is
// optimistic: a read-only preflight, the side-effecting claim, then a
// post-claim check that releases the seat when a concurrent device won the
// race, the email mismatches, or the key cannot be persisted locally.
func (e *Engine) Activate(ctx context.Context, licenseKey, email string) error {
	if e.cfg.EnforcementDisabled() {
		return nil
	}
	if err := e.beginExclusive(); err != nil {
		return err
	}
	defer e.endExclusive()

	start := time.Now()
	defer e.metrics.recordDuration(ctx, "activate", start)

	licenseKey = strings.TrimSpace(licenseKey)
	if licenseKey == "" {
		e.metrics.recordActivation(ctx, "invalid")
		return apperrors.ErrInvalidLicenseKey
	}

	e.mu.Lock()
	alreadyActive := e.licenseRec.IsActive
	e.mu.Unlock()
	if alreadyActive {
		e.metrics.recordActivation(ctx, "already_active")
		return apperrors.ErrAlreadyActivated
	}

	// Preflight: read-only, rejects without any server side effect
	pre, err := e.license.Verify(ctx, licenseKey, false, false)
	if err != nil {
		e.metrics.recordActivation(ctx, "error")
		return err
	}
	if err := e.rejectPreflight(ctx, pre, email); err != nil {
		return err
	}

	// Claim: the only step with a server side effect (uses +1)
	token, err := e.license.Claim(ctx, licenseKey)
	if err != nil {
		e.metrics.recordActivation(ctx, "error")
		return err
	}
	if err := e.rejectPostClaim(ctx, token, email); err != nil {
		return err
	}

	if err := e.persistActivation(ctx, token, licenseKey, email); err != nil {
		return err
	}

	e.metrics.recordActivation(ctx, "success")
	e.logInfo(ctx, "activate", "license activated",
		slog.String("license_key_masked", security.MaskLicenseKey(licenseKey)),
	)
	return nil
}

func (e *Engine) rejectPreflight(ctx context.Context, pre *licenseapi.VerifyResponse, email string) error {
	if !pre.IsValidPurchase() {
		e.metrics.recordActivation(ctx, "invalid")
		e.setMessage(ctx, msgInvalid)
		if pre.Message != "" {
			return fmt.Errorf("%w: %s", apperrors.ErrInvalidLicenseKey, pre.Message)
		}
		return apperrors.ErrInvalidLicenseKey
	}
	if pre.Purchase.Uses >= e.cfg.License.MaxDeviceActivations {
		e.metrics.recordActivation(ctx, "seat_conflict")
		e.setMessage(ctx, msgSeatConflict)
		return apperrors.ErrSeatConflict
	}
	if pre.Purchase.Email != "" && !security.EmailsMatch(pre.Purchase.Email, email) {
		e.metrics.recordActivation(ctx, "email_mismatch")
		return apperrors.ErrEmailMismatch
	}
	return nil
}

// rejectPostClaim re-checks the claim response and compensates the seat
// when another device won the race between preflight and claim.
func (e *Engine) rejectPostClaim(ctx context.Context, token *licenseapi.ClaimToken, email string) error {
	claim := token.Response

	if !claim.IsValidPurchase() {
		e.compensate(ctx, token)
		e.metrics.recordActivation(ctx, "invalid")
		e.setMessage(ctx, msgInvalid)
		return apperrors.ErrInvalidLicenseKey
	}
	if claim.Purchase.Uses > e.cfg.License.MaxDeviceActivations {
		e.compensate(ctx, token)
		e.metrics.recordActivation(ctx, "seat_conflict")
		e.setMessage(ctx, msgSeatConflict)
		e.logWarn(ctx, "activate", "seat race lost, claim released",
			slog.Int("uses", claim.Purchase.Uses),
			slog.Int("max_activations", e.cfg.License.MaxDeviceActivations),
		)
		return apperrors.ErrSeatConflict
	}
	if claim.Purchase.Email != "" && !security.EmailsMatch(claim.Purchase.Email, email) {
		e.compensate(ctx, token)
		e.metrics.recordActivation(ctx, "email_mismatch")
		return apperrors.ErrEmailMismatch
	}
	return nil
}

// persistActivation writes the claimed license locally. A failed secure
// write releases the seat so no claim leaks without a local record able to
// release it later.
func (e *Engine) persistActivation(ctx context.Context, token *licenseapi.ClaimToken, licenseKey, email string) error {
	if !e.secure.Set(store.KeyLicenseKey, licenseKey) {
		e.compensate(ctx, token)
		e.metrics.recordActivation(ctx, "persistence_failed")
		e.logError(ctx, "activate", "secure store rejected license key, seat released")
		return apperrors.ErrPersistence
	}

	deviceName := "unknown-host"
	if sig, err := e.fp.Signature(); err == nil {
		deviceName = sig.Hostname
	}

	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.licenseRec = LicenseRecord{
		Key:            licenseKey,
		KeyHint:        security.KeyHint(licenseKey),
		Email:          security.NormalizeEmail(email),
		DeviceName:     deviceName,
		LastVerifiedAt: now,
		IsActive:       true,
	}
	e.stores.SetAll(ctx, store.KeyLicenseActive, "true")
	e.stores.SetAll(ctx, store.KeyLicenseEmail, e.licenseRec.Email)
	e.stores.SetAll(ctx, store.KeyLicenseHint, e.licenseRec.KeyHint)
	e.stores.SetAll(ctx, store.KeyDeviceName, deviceName)
	e.stores.SetAllTime(ctx, store.KeyLastVerifiedAt, now)

	e.statusMessage = msgActivated
	e.refreshTrialStateLocked(ctx, now)
	e.notifyAccessLocked(ctx)
	return nil
}

// DeactivateLocally clears activation state without contacting the server.
// The remote seat stays claimed; DeactivateCurrentDevice releases it.
func (e *Engine) DeactivateLocally(ctx context.Context) error {
	if err := e.beginExclusive(); err != nil {
		return err
	}
	defer e.endExclusive()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.licenseRec.IsActive {
		return apperrors.ErrNotActivated
	}

	e.clearLicenseLocked(ctx)
	e.statusMessage = msgDeactivated
	e.refreshTrialStateLocked(ctx, time.Now())
	e.notifyAccessLocked(ctx)

	e.logInfo(ctx, "deactivate_local", "license deactivated locally")
	return nil
}

// DeactivateCurrentDevice releases the remote seat and clears local state.
// The local clear is unconditional; a network failure never leaves the app
// locked into a stale activation it cannot shed.
func (e *Engine) DeactivateCurrentDevice(ctx context.Context) error {
	if err := e.beginExclusive(); err != nil {
		return err
	}
	defer e.endExclusive()

	e.mu.Lock()
	key := e.licenseRec.Key
	active := e.licenseRec.IsActive
	e.mu.Unlock()
	if !active || key == "" {
		return apperrors.ErrNotActivated
	}

	if _, err := e.license.Verify(ctx, key, false, true); err != nil {
		e.logWarn(ctx, "deactivate_device", "remote seat release failed, clearing local state anyway",
			slog.String("license_key_masked", security.MaskLicenseKey(key)),
			slog.String("error", err.Error()),
		)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearLicenseLocked(ctx)
	e.statusMessage = msgDeactivated
	e.refreshTrialStateLocked(ctx, time.Now())
	e.notifyAccessLocked(ctx)

	e.logInfo(ctx, "deactivate_device", "license deactivated",
		slog.String("license_key_masked", security.MaskLicenseKey(key)),
	)
	return nil
}

// RevalidateStoredLicense re-checks the stored key against the server.
// Network failure keeps the last verified state; an already-activated
// device never loses access to transient connectivity loss. An invalid or
// displaced key deactivates locally without compensation, since this
// device no longer owns a claim to release.
func (e *Engine) RevalidateStoredLicense(ctx context.Context) error {
	if e.cfg.EnforcementDisabled() {
		return nil
	}
	if err := e.beginExclusive(); err != nil {
		return err
	}
	defer e.endExclusive()

	start := time.Now()
	defer e.metrics.recordDuration(ctx, "revalidate", start)

	e.mu.Lock()
	key := e.licenseRec.Key
	active := e.licenseRec.IsActive
	e.mu.Unlock()
	if !active || key == "" {
		return apperrors.ErrNotActivated
	}

	resp, err := e.license.Verify(ctx, key, false, false)
	if err != nil {
		if errors.Is(err, apperrors.ErrNetwork) {
			e.metrics.recordRevalidation(ctx, "offline")
			e.setMessage(ctx, msgOffline)
			e.logWarn(ctx, "revalidate", "license server unreachable, keeping last verified state",
				slog.String("license_key_masked", security.MaskLicenseKey(key)),
			)
			return nil
		}
		e.metrics.recordRevalidation(ctx, "error")
		return err
	}

	now := time.Now()

	if !resp.IsValidPurchase() {
		e.metrics.recordRevalidation(ctx, "invalidated")
		e.mu.Lock()
		e.clearLicenseLocked(ctx)
		e.statusMessage = msgInvalid
		e.refreshTrialStateLocked(ctx, now)
		e.notifyAccessLocked(ctx)
		e.mu.Unlock()
		e.logWarn(ctx, "revalidate", "stored license no longer valid, deactivated",
			slog.String("license_key_masked", security.MaskLicenseKey(key)),
		)
		return apperrors.ErrInvalidLicenseKey
	}

	if resp.Purchase.Uses > e.cfg.License.MaxDeviceActivations {
		e.metrics.recordRevalidation(ctx, "seat_taken")
		e.mu.Lock()
		e.clearLicenseLocked(ctx)
		e.statusMessage = msgSeatTaken
		e.refreshTrialStateLocked(ctx, now)
		e.notifyAccessLocked(ctx)
		e.mu.Unlock()
		e.logWarn(ctx, "revalidate", "seat claimed by another device, deactivated",
			slog.String("license_key_masked", security.MaskLicenseKey(key)),
			slog.Int("uses", resp.Purchase.Uses),
		)
		return apperrors.ErrSeatTakenElsewhere
	}

	e.metrics.recordRevalidation(ctx, "success")
	e.mu.Lock()
	e.licenseRec.IsActive = true
	e.licenseRec.LastVerifiedAt = now
	e.stores.SetAllTime(ctx, store.KeyLastVerifiedAt, now)
	e.statusMessage = msgVerified
	e.refreshTrialStateLocked(ctx, now)
	e.notifyAccessLocked(ctx)
	e.mu.Unlock()
	return nil
}

// StartTrial begins the trial. In remote mode the server is authoritative
// and an account hash is mandatory; otherwise the trial clock is purely
// local and the consumed flag plus expiry are written to every store.
func (e *Engine) StartTrial(ctx context.Context, email string) error {
	if e.cfg.EnforcementDisabled() {
		return nil
	}
	if err := e.beginExclusive(); err != nil {
		return err
	}
	defer e.endExclusive()

	start := time.Now()
	defer e.metrics.recordDuration(ctx, "start_trial", start)

	now := time.Now()
	e.mu.Lock()
	e.refreshTrialStateLocked(ctx, now)
	if e.licenseRec.IsActive {
		e.mu.Unlock()
		return apperrors.ErrAlreadyActivated
	}
	if e.trialRec.Consumed {
		e.mu.Unlock()
		e.setMessage(ctx, msgTrialConsumed)
		return apperrors.ErrTrialConsumed
	}
	deviceID := e.trialRec.DeviceID
	accountHash := e.trialRec.AccountHash
	e.mu.Unlock()

	if !e.cfg.RemoteTrialMode() {
		e.startLocalTrial(ctx, now)
		return nil
	}

	if accountHash == "" {
		accountHash = security.AccountHash(email)
	}
	if accountHash == "" {
		return apperrors.ErrTrialEmailRequired
	}

	resp, err := e.trial.Request(ctx, trialapi.ActionStart, deviceID, accountHash)
	if err != nil {
		// First-time flows fail closed; there is no prior state to keep
		e.metrics.recordTrialSync(ctx, "error")
		return err
	}
	e.metrics.recordTrialSync(ctx, "success")

	e.mu.Lock()
	defer e.mu.Unlock()
	e.trialRec.AccountHash = accountHash
	e.applyTrialResponseLocked(ctx, resp, now)

	switch {
	case !resp.IsEligible():
		e.statusMessage = messageOr(resp.Message, msgTrialConsumed)
		e.notifyAccessLocked(ctx)
		return apperrors.ErrTrialNotEligible
	case resp.Consumed && !resp.Active:
		e.statusMessage = messageOr(resp.Message, msgTrialConsumed)
		e.notifyAccessLocked(ctx)
		return apperrors.ErrTrialConsumed
	default:
		e.statusMessage = messageOr(resp.Message, msgTrialStarted)
		e.notifyAccessLocked(ctx)
		e.logInfo(ctx, "start_trial", "remote trial started",
			slog.Time("expires_at", e.trialRec.ExpiresAt),
		)
		return nil
	}
}

// startLocalTrial writes the locally-clocked trial to every store
func (e *Engine) startLocalTrial(ctx context.Context, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.trialRec.Consumed = true
	e.trialRec.StartedAt = now
	e.trialRec.ExpiresAt = now.Add(e.cfg.Trial.Duration)
	e.trialRec.LastSeenAt = now
	persistTrialRecord(ctx, e.stores, e.trialRec)

	e.statusMessage = msgTrialStarted
	e.refreshTrialStateLocked(ctx, now)
	e.notifyAccessLocked(ctx)

	e.logInfo(ctx, "start_trial", "local trial started",
		slog.Time("expires_at", e.trialRec.ExpiresAt),
	)
}

// SyncTrial refreshes trial state from the remote service. A failed sync
// keeps cached state; the grace window alone decides how long that state
// stays trustworthy.
func (e *Engine) SyncTrial(ctx context.Context) error {
	if e.cfg.EnforcementDisabled() || !e.cfg.RemoteTrialMode() {
		return nil
	}

	e.mu.Lock()
	deviceID := e.trialRec.DeviceID
	accountHash := e.trialRec.AccountHash
	consumed := e.trialRec.Consumed
	e.mu.Unlock()
	if !consumed {
		return nil
	}

	resp, err := e.trial.Request(ctx, trialapi.ActionStatus, deviceID, accountHash)
	if err != nil {
		e.metrics.recordTrialSync(ctx, "error")
		e.logWarn(ctx, "sync_trial", "trial sync failed, keeping cached state",
			slog.String("error", err.Error()),
		)
		return err
	}
	e.metrics.recordTrialSync(ctx, "success")

	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyTrialResponseLocked(ctx, resp, time.Now())
	e.notifyAccessLocked(ctx)
	return nil
}

// applyTrialResponseLocked overwrites local trial timestamps with the
// server's values and recomputes activity against the server clock, so a
// client lying about its own clock gains nothing.
func (e *Engine) applyTrialResponseLocked(ctx context.Context, resp *trialapi.Response, localNow time.Time) {
	tr := &e.trialRec

	if resp.Consumed || resp.Active || !resp.IsEligible() {
		tr.Consumed = true
	}
	if !resp.StartedAt.IsZero() {
		tr.StartedAt = resp.StartedAt.Time
	}
	if !resp.ExpiresAt.IsZero() {
		tr.ExpiresAt = resp.ExpiresAt.Time
	} else if !tr.StartedAt.IsZero() && tr.ExpiresAt.IsZero() {
		tr.ExpiresAt = tr.StartedAt.Add(e.cfg.Trial.Duration)
	}

	serverNow := resp.ServerNow.Time
	if serverNow.IsZero() {
		serverNow = localNow
	}
	if localNow.After(tr.LastSeenAt) {
		tr.LastSeenAt = localNow
	}
	tr.LastRemoteSyncAt = localNow

	persistTrialRecord(ctx, e.stores, *tr)

	e.trialActive = tr.Consumed && !e.rollbackSeen &&
		!tr.ExpiresAt.IsZero() && serverNow.Before(tr.ExpiresAt)
	e.withinGrace = true
}

// refreshTrialStateLocked reloads the reconciled trial record and
// recomputes the derived booleans against the reference instant.
func (e *Engine) refreshTrialStateLocked(ctx context.Context, ref time.Time) {
	e.trialRec = loadTrialRecord(ctx, e.stores)
	tr := &e.trialRec

	if !tr.LastSeenAt.IsZero() && tr.LastSeenAt.Sub(ref) > e.cfg.Trial.RollbackTolerance {
		if !e.rollbackSeen {
			e.logWarn(ctx, "refresh_trial", "clock rollback beyond tolerance, trial ended",
				slog.Time("last_seen_at", tr.LastSeenAt),
				slog.Time("reference", ref),
				slog.Duration("tolerance", e.cfg.Trial.RollbackTolerance),
			)
		}
		e.rollbackSeen = true
	}
	if !e.rollbackSeen && ref.After(tr.LastSeenAt) && tr.Consumed {
		tr.LastSeenAt = ref
		e.stores.SetAllTime(ctx, store.KeyTrialLastSeenAt, ref)
	}

	e.trialActive = tr.Consumed && !e.rollbackSeen &&
		!tr.ExpiresAt.IsZero() && ref.Before(tr.ExpiresAt)

	if e.cfg.RemoteTrialMode() {
		e.withinGrace = !tr.LastRemoteSyncAt.IsZero() &&
			ref.Sub(tr.LastRemoteSyncAt) <= e.cfg.Trial.RemoteGraceWindow
	} else {
		e.withinGrace = true
	}
}

// hasAccessLocked composes the access decision from the derived state
func (e *Engine) hasAccessLocked() bool {
	if e.cfg.EnforcementDisabled() {
		return true
	}
	if e.licenseRec.IsActive {
		return true
	}
	return e.trialActive && e.withinGrace
}

// notifyAccessLocked fires the change callback when the access boolean
// flips. Level changes without a flip stay silent.
func (e *Engine) notifyAccessLocked(ctx context.Context) {
	access := e.hasAccessLocked()
	if access == e.lastAccess {
		return
	}
	e.lastAccess = access
	e.logInfo(ctx, "access_change", "access state changed",
		slog.Bool("has_access", access),
	)
	if fn := e.onChange; fn != nil {
		go fn(access)
	}
}

// clearLicenseLocked removes every license field from every store
func (e *Engine) clearLicenseLocked(ctx context.Context) {
	if d, ok := e.secure.(store.Deleter); ok {
		if err := d.Delete(store.KeyLicenseKey); err != nil {
			e.logWarn(ctx, "clear_license", "failed to delete license key",
				slog.String("error", err.Error()),
			)
		}
	} else {
		e.secure.Set(store.KeyLicenseKey, "")
	}

	for _, key := range []string{
		store.KeyLicenseActive,
		store.KeyLicenseEmail,
		store.KeyLicenseHint,
		store.KeyDeviceName,
		store.KeyLastVerifiedAt,
	} {
		e.stores.DeleteAll(ctx, key)
	}

	e.licenseRec = LicenseRecord{}
}

// ensureDeviceID generates and persists the pseudonymous device ID once
func (e *Engine) ensureDeviceID(ctx context.Context) {
	if e.trialRec.DeviceID != "" {
		return
	}
	id, err := e.fp.DeviceID()
	if err != nil || id == "" {
		id = uuid.NewString()
		e.logWarn(ctx, "init", "fingerprint unavailable, using random device id")
	}
	e.trialRec.DeviceID = id
	e.stores.SetAll(ctx, store.KeyTrialDeviceID, id)
}

func (e *Engine) setMessage(ctx context.Context, msg string) {
	e.mu.Lock()
	e.statusMessage = msg
	e.mu.Unlock()
}

func (e *Engine) compensate(ctx context.Context, token *licenseapi.ClaimToken) {
	if err := token.Compensate(ctx); err != nil {
		e.logError(ctx, "activate", "failed to release claimed seat",
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) beginExclusive() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isChecking {
		return apperrors.ErrOperationInProgress
	}
	e.isChecking = true
	return nil
}

func (e *Engine) endExclusive() {
	e.mu.Lock()
	e.isChecking = false
	e.mu.Unlock()
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
