// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package keychain

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func newTestManager() *Manager {
	return NewManagerWithRing(keyring.NewArrayKeyring(nil))
}

func TestSaveAndLoadTokens(t *testing.T) {
	t.Setenv(EnvAccessToken, "")
	m := newTestManager()

	if _, err := m.LoadAccessToken(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadAccessToken() error = %v, want ErrNotFound", err)
	}

	if err := m.SaveAuthTokens("access-1", "refresh-1"); err != nil {
		t.Fatalf("SaveAuthTokens() error = %v", err)
	}
	// rotating only the access token keeps the refresh token
	if err := m.SaveAuthTokens("access-2", ""); err != nil {
		t.Fatalf("SaveAuthTokens() error = %v", err)
	}

	if got, _ := m.LoadAccessToken(); got != "access-2" {
		t.Errorf("LoadAccessToken() = %q, want %q", got, "access-2")
	}
	if got, _ := m.LoadRefreshToken(); got != "refresh-1" {
		t.Errorf("LoadRefreshToken() = %q, want %q", got, "refresh-1")
	}
}

func TestAccessTokenEnvOverride(t *testing.T) {
	t.Setenv(EnvAccessToken, "from-env")
	m := newTestManager()
	_ = m.SaveAuthTokens("stored", "")

	if got, _ := m.LoadAccessToken(); got != "from-env" {
		t.Errorf("LoadAccessToken() = %q, want %q", got, "from-env")
	}
}

func TestClearAuth(t *testing.T) {
	t.Setenv(EnvAccessToken, "")
	m := newTestManager()
	_ = m.SaveAuthTokens("a", "r")
	_ = m.SaveAuthState([]byte(`{"account":"acme"}`))
	_ = m.SavePostgresDSN("postgres://localhost/db")

	if err := m.ClearAuth(); err != nil {
		t.Fatalf("ClearAuth() error = %v", err)
	}
	if state, err := m.LoadAuthState(); err != nil || state != nil {
		t.Errorf("LoadAuthState() = %q, %v; want nil, nil", state, err)
	}
	if _, err := m.LoadRefreshToken(); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadRefreshToken() error = %v, want ErrNotFound", err)
	}
	if dsn, _ := m.LoadPostgresDSN(); dsn == "" {
		t.Error("ClearAuth() removed the export DSN")
	}
}
