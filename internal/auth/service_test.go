// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/keychain"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func token(t *testing.T, exp time.Time, extra jwt.MapClaims) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": "user-1", "client_id": "client-9", "exp": exp.Unix()}
	for k, v := range extra {
		claims[k] = v
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test"))
	require.NoError(t, err)
	return s
}

type fakeOAuth struct {
	t     *testing.T
	calls atomic.Int32
	delay time.Duration
	err   error
	gotID string
	next  string
}

func (f *fakeOAuth) RefreshToken(_ context.Context, clientID, refreshToken string) (string, string, error) {
	f.calls.Add(1)
	f.gotID = clientID
	time.Sleep(f.delay)
	if f.err != nil {
		return "", "", f.err
	}
	return f.next, "rotated-" + refreshToken, nil
}

func newService(t *testing.T, oauth Refresher) (*Service, *keychain.Manager) {
	t.Helper()
	t.Setenv(keychain.EnvAccessToken, "")
	keys := keychain.NewManagerWithRing(keyring.NewArrayKeyring(nil))
	s := NewService(keys, oauth, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s, keys
}

func TestParseClaims(t *testing.T) {
	tok := token(t, now.Add(time.Hour), jwt.MapClaims{"cognito:username": "ada"})
	c, err := ParseClaims(tok)
	require.NoError(t, err)
	assert.Equal(t, "client-9", c.ClientID)
	assert.Equal(t, "user-1", c.Subject)
	assert.Equal(t, "ada", c.Username)
	assert.True(t, c.Expiry.Equal(now.Add(time.Hour)))

	_, err = ParseClaims("opaque-token")
	assert.True(t, errors.IsKind(err, errors.Auth))
}

func TestSessionExpired(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"valid", token(t, now.Add(time.Hour), nil), false},
		{"past", token(t, now.Add(-time.Minute), nil), true},
		{"inside leeway", token(t, now.Add(10*time.Second), nil), true},
		{"opaque", "not-a-jwt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Session{Token: tt.token}).Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenNotLoggedIn(t *testing.T) {
	s, _ := newService(t, &fakeOAuth{})
	_, err := s.Token(context.Background())
	assert.True(t, errors.IsKind(err, errors.Auth))
}

func TestTokenValidIsReturnedWithoutRefresh(t *testing.T) {
	oauth := &fakeOAuth{}
	s, _ := newService(t, oauth)
	tok := token(t, now.Add(time.Hour), nil)
	_, err := s.Login(tok, "r1")
	require.NoError(t, err)

	got, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tok, got)
	assert.Zero(t, oauth.calls.Load())
}

func TestTokenExpiredRefreshes(t *testing.T) {
	fresh := token(t, now.Add(time.Hour), nil)
	oauth := &fakeOAuth{next: fresh}
	s, keys := newService(t, oauth)
	_, err := s.Login(token(t, now.Add(-time.Hour), nil), "r1")
	require.NoError(t, err)

	got, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
	assert.Equal(t, "client-9", oauth.gotID, "client id comes from the stale token")

	stored, _ := keys.LoadAccessToken()
	assert.Equal(t, fresh, stored)
	rotated, _ := keys.LoadRefreshToken()
	assert.Equal(t, "rotated-r1", rotated)
}

func TestTokenExpiredWithoutRefreshToken(t *testing.T) {
	oauth := &fakeOAuth{}
	s, keys := newService(t, oauth)
	require.NoError(t, keys.SaveAuthTokens(token(t, now.Add(-time.Hour), nil), ""))

	_, err := s.Token(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.Auth))
	assert.Contains(t, err.Error(), "The session token has expired.")
	assert.Zero(t, oauth.calls.Load(), "no network without refresh token")
}

func TestLoginRejectsExpiredTokenWithoutRefresh(t *testing.T) {
	s, _ := newService(t, &fakeOAuth{})
	_, err := s.Login(token(t, now.Add(-time.Hour), nil), "")
	assert.True(t, errors.IsKind(err, errors.Auth))

	_, err = s.Login("  ", "")
	assert.True(t, errors.IsKind(err, errors.Validation))
}

func TestConcurrentRefreshSharesOneRequest(t *testing.T) {
	fresh := token(t, now.Add(time.Hour), nil)
	oauth := &fakeOAuth{next: fresh, delay: 20 * time.Millisecond}
	s, _ := newService(t, oauth)
	stale := token(t, now.Add(-time.Hour), nil)
	_, err := s.Login(stale, "r1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := s.Refresh(context.Background(), stale)
			assert.NoError(t, err)
			results[i] = tok
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), oauth.calls.Load())
	for _, r := range results {
		assert.Equal(t, fresh, r)
	}
}

func TestRefreshFailurePropagates(t *testing.T) {
	oauth := &fakeOAuth{err: errors.New(errors.Auth, "refresh token expired or invalid")}
	s, _ := newService(t, oauth)
	_, err := s.Login(token(t, now.Add(-time.Hour), nil), "r1")
	require.NoError(t, err)

	_, err = s.Token(context.Background())
	assert.True(t, errors.IsKind(err, errors.Auth))
}

func TestRefreshWithEnvTokenFails(t *testing.T) {
	oauth := &fakeOAuth{}
	s, _ := newService(t, oauth)
	t.Setenv(keychain.EnvAccessToken, "ci-token")

	tok, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ci-token", tok)

	_, err = s.Refresh(context.Background(), tok)
	assert.True(t, errors.IsKind(err, errors.Auth))
	assert.Zero(t, oauth.calls.Load())
}

func TestStatusAndLogout(t *testing.T) {
	s, _ := newService(t, &fakeOAuth{})
	tok := token(t, now.Add(time.Hour), jwt.MapClaims{"email": "ada@example.com"})
	st, err := s.Login(tok, "r1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", st.User)
	assert.Equal(t, "client-9", st.ClientID)

	got, claims, err := s.Status()
	require.NoError(t, err)
	assert.True(t, got.LoggedIn)
	assert.Equal(t, "ada@example.com", got.User)
	assert.Equal(t, "user-1", claims.Subject)

	sess, err := s.Session(context.Background(), "acme", "p1")
	require.NoError(t, err)
	assert.Equal(t, Session{Token: tok, RefreshToken: "r1", Account: "acme", Project: "p1"}, sess)

	require.NoError(t, s.Logout())
	got, _, err = s.Status()
	require.NoError(t, err)
	assert.False(t, got.LoggedIn)
}
