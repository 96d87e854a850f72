package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters sized for a once-per-launch derivation
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	nonceSize    = 12
	saltSize     = 32
)

// securePayload is the on-disk envelope for the encrypted record map
type securePayload struct {
	Version    uint8  `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// SecureStore is the OS-keystore analog: an encrypted key/value file holding
// the license key and trial markers. The encryption key is derived from a
// machine-bound secret so the file is not portable between installations.
type SecureStore struct {
	path   string
	secret []byte
	mu     sync.Mutex
	values map[string]string
	loaded bool
}

// NewSecureStore opens (or lazily creates) the encrypted store at path.
// The secret binds the file to this installation; the engine derives it
// from the device signature.
func NewSecureStore(path string, secret []byte) *SecureStore {
	return &SecureStore{
		path:   path,
		secret: secret,
		values: make(map[string]string),
	}
}

// Name identifies the store in reconciliation logs
func (s *SecureStore) Name() string { return "secure" }

// Get returns the value for key if present
func (s *SecureStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return "", false
	}

	v, ok := s.values[key]
	return v, ok && v != ""
}

// Set stores a value and persists the file. Reports false on any I/O or
// crypto failure; callers treat that as degraded redundancy.
func (s *SecureStore) Set(key, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		// A corrupt or unreadable file is replaced rather than kept
		s.values = make(map[string]string)
		s.loaded = true
	}

	if value == "" {
		delete(s.values, key)
	} else {
		s.values[key] = value
	}

	return s.persistLocked() == nil
}

// Delete removes a key and persists the file
func (s *SecureStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}

	delete(s.values, key)
	return s.persistLocked()
}

// loadLocked reads and decrypts the file once per process
func (s *SecureStore) loadLocked() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read secure store: %w", err)
	}

	var payload securePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to parse secure store: %w", err)
	}

	key, err := scrypt.Key(s.secret, payload.Salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, payload.Nonce, payload.Ciphertext, nil)
	if err != nil {
		return fmt.Errorf("failed to decrypt secure store: %w", err)
	}

	values := make(map[string]string)
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return fmt.Errorf("failed to parse secure store contents: %w", err)
	}

	s.values = values
	s.loaded = true
	return nil
}

// persistLocked encrypts and writes the current record map
func (s *SecureStore) persistLocked() error {
	plaintext, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("failed to encode secure store contents: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := scrypt.Key(s.secret, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	payload := securePayload{
		Version:    1,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode secure store: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write secure store: %w", err)
	}

	return nil
}

// DeriveStoreSecret builds the machine-bound secret for the secure store
// from a stable device signature.
func DeriveStoreSecret(signature string) []byte {
	sum := sha256.Sum256([]byte("droppy-secure-store:" + signature))
	return sum[:]
}
