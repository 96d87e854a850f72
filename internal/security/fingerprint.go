package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
)

// DeviceSignature holds the stable machine identification material used to
// derive the device ID and the secure-store secret. None of the raw fields
// ever leave the machine; only the SHA-256 digest is transmitted.
type DeviceSignature struct {
	Hostname  string
	OS        string
	BundleID  string
	Signature string
}

// FingerprintManager derives and caches the device signature
type FingerprintManager struct {
	bundleID string

	mu     sync.Mutex
	cached *DeviceSignature
}

// NewFingerprintManager creates a fingerprint manager for the given bundle ID
func NewFingerprintManager(bundleID string) *FingerprintManager {
	return &FingerprintManager{bundleID: bundleID}
}

// Signature returns the stable machine signature, computing it once
func (fm *FingerprintManager) Signature() (*DeviceSignature, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.cached != nil {
		return fm.cached, nil
	}

	hostname, err := os.Hostname()
	if err != nil || strings.TrimSpace(hostname) == "" {
		hostname = "unknown-host"
	}
	hostname = strings.ToLower(strings.TrimSpace(hostname))

	osVersion := osVersionString()

	sig := &DeviceSignature{
		Hostname:  hostname,
		OS:        osVersion,
		BundleID:  fm.bundleID,
		Signature: fmt.Sprintf("%s|%s|%s", hostname, osVersion, fm.bundleID),
	}

	fm.cached = sig
	return sig, nil
}

// DeviceID returns the pseudonymous device identifier: the SHA-256 digest
// of the machine signature.
func (fm *FingerprintManager) DeviceID() (string, error) {
	sig, err := fm.Signature()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(sig.Signature))
	return hex.EncodeToString(sum[:]), nil
}

// osVersionString builds a best-effort OS identification string
func osVersionString() string {
	base := fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)

	if runtime.GOOS == "linux" {
		if data, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
			return base + "-" + strings.TrimSpace(string(data))
		}
	}

	return base
}
