// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain provides centralized, thread-safe keychain operations for fhirq.
// It stores the FHIR service access token, refresh token, serialized session state
// and an optional PostgreSQL export DSN in the OS credential store.
//
// macOS uses the security command directly; other platforms go through
// github.com/99designs/keyring (Keychain, Windows Credential Manager, Secret Service,
// pass, or an encrypted file as last resort on Linux).
package keychain

import (
	"errors"
	"os"
	"runtime"
	"sync"

	"github.com/99designs/keyring"
)

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "fhirq"

// Keys used for storing secrets in the OS keychain.
const (
	KeyAccessToken  = "auth_access_token"
	KeyRefreshToken = "auth_refresh_token"
	KeyAuthState    = "auth_state"
	KeyPostgresDSN  = "export_pg_dsn"
)

// EnvAccessToken overrides the stored access token, for CI and scripts.
const EnvAccessToken = "FHIRQ_ACCESS_TOKEN"

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("keychain: key not found")

// backend is the minimal set of operations the manager needs from a store.
type backend interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// Manager provides thread-safe access to stored secrets.
type Manager struct {
	mu      sync.RWMutex
	backend backend
}

// NewManager opens the platform credential store.
func NewManager() (*Manager, error) {
	if runtime.GOOS == "darwin" {
		if b, err := newSecurityBackend(); err == nil {
			return &Manager{backend: b}, nil
		}
	}
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return NewManagerWithRing(ring), nil
}

// NewManagerWithRing wraps an already opened keyring.
func NewManagerWithRing(ring keyring.Keyring) *Manager {
	return &Manager{backend: ringBackend{ring: ring}}
}

func openRing() (keyring.Keyring, error) {
	var allowed []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		allowed = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		allowed = []keyring.BackendType{keyring.WinCredBackend}
	default:
		allowed = []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		}
	}

	cfg := keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowed,
		PassPrefix:      ServiceName,
		WinCredPrefix:   ServiceName,
		FileDir:         "~/.local/share/fhirq/keyring",
		FilePasswordFunc: func(string) (string, error) {
			if p := os.Getenv("FHIRQ_KEYRING_PASSWORD"); p != "" {
				return p, nil
			}
			return "", errors.New("set FHIRQ_KEYRING_PASSWORD to unlock the file keyring")
		},
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		if runtime.GOOS == "darwin" {
			return nil, errors.New("macOS Keychain unavailable. On macOS 26.0+, install 'pass': brew install pass gnupg && gpg --generate-key && pass init <gpg-key-id>")
		}
		return nil, err
	}
	return ring, nil
}

// ringBackend adapts keyring.Keyring to backend.
type ringBackend struct {
	ring keyring.Keyring
}

func (r ringBackend) Set(key, value string) error {
	return r.ring.Set(keyring.Item{Key: key, Label: ServiceName + " " + key, Data: []byte(value)})
}

func (r ringBackend) Get(key string) (string, error) {
	it, err := r.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(it.Data), nil
}

func (r ringBackend) Delete(key string) error {
	err := r.ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (m *Manager) load(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, err := m.backend.Get(key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

// SaveAuthTokens stores the access and refresh tokens. Empty values are skipped so
// a refresh that does not rotate the refresh token keeps the stored one.
func (m *Manager) SaveAuthTokens(accessToken, refreshToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if accessToken != "" {
		if err := m.backend.Set(KeyAccessToken, accessToken); err != nil {
			return err
		}
	}
	if refreshToken != "" {
		if err := m.backend.Set(KeyRefreshToken, refreshToken); err != nil {
			return err
		}
	}
	return nil
}

// LoadAccessToken returns FHIRQ_ACCESS_TOKEN when set, else the stored token.
func (m *Manager) LoadAccessToken() (string, error) {
	if t := os.Getenv(EnvAccessToken); t != "" {
		return t, nil
	}
	return m.load(KeyAccessToken)
}

// LoadRefreshToken returns the stored refresh token.
func (m *Manager) LoadRefreshToken() (string, error) {
	return m.load(KeyRefreshToken)
}

// SaveAuthState stores serialized session state.
func (m *Manager) SaveAuthState(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Set(KeyAuthState, string(data))
}

// LoadAuthState returns serialized session state, or nil when none is stored.
func (m *Manager) LoadAuthState() ([]byte, error) {
	v, err := m.load(KeyAuthState)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

// ClearAuth removes tokens and session state.
func (m *Manager) ClearAuth() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, k := range []string{KeyAccessToken, KeyRefreshToken, KeyAuthState} {
		if err := m.backend.Delete(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SavePostgresDSN stores the default export database DSN.
func (m *Manager) SavePostgresDSN(dsn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Set(KeyPostgresDSN, dsn)
}

// LoadPostgresDSN returns the stored export database DSN.
func (m *Manager) LoadPostgresDSN() (string, error) {
	return m.load(KeyPostgresDSN)
}

// ClearPostgresDSN removes the stored export database DSN.
func (m *Manager) ClearPostgresDSN() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Delete(KeyPostgresDSN)
}
