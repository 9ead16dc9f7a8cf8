// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"context"
	stderrors "errors"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/keychain"
)

// Refresher exchanges a refresh token for new tokens.
type Refresher interface {
	RefreshToken(ctx context.Context, clientID, refreshToken string) (newAccessToken, newRefreshToken string, err error)
}

// Service hands out access tokens, refreshing them through a Refresher when they
// expire. Concurrent refreshes of the same refresh token share one request.
type Service struct {
	keys  *keychain.Manager
	oauth Refresher
	log   zerolog.Logger
	now   func() time.Time
	group singleflight.Group
}

// NewService creates a Service over keys.
func NewService(keys *keychain.Manager, oauth Refresher, log zerolog.Logger) *Service {
	return &Service{keys: keys, oauth: oauth, log: log, now: time.Now}
}

// Login stores the given tokens and records who they belong to.
func (s *Service) Login(accessToken, refreshToken string) (State, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return State{}, errors.New(errors.Validation, "access token is empty")
	}
	st := State{LoggedIn: true, LoggedInAt: s.now().UTC()}
	if c, err := ParseClaims(accessToken); err == nil {
		if !c.Expiry.IsZero() && tokenExpired(accessToken, s.now()) && refreshToken == "" {
			return State{}, errors.New(errors.Auth, "The session token has expired.")
		}
		st.User = firstNonEmpty(c.Username, c.Subject)
		st.ClientID = c.ClientID
	}
	if err := s.keys.ClearAuth(); err != nil {
		s.log.Debug().Err(err).Msg("clear previous session")
	}
	if err := s.keys.SaveAuthTokens(accessToken, strings.TrimSpace(refreshToken)); err != nil {
		return State{}, errors.Wrap(errors.Auth, "store tokens", err)
	}
	if err := SaveState(s.keys, st); err != nil {
		return State{}, errors.Wrap(errors.Auth, "store session state", err)
	}
	return st, nil
}

// Logout removes tokens and state.
func (s *Service) Logout() error {
	return s.keys.ClearAuth()
}

// Status returns the stored state and the claims of the current token.
func (s *Service) Status() (State, Claims, error) {
	st, err := LoadState(s.keys)
	if err != nil {
		return State{}, Claims{}, err
	}
	tok, err := s.keys.LoadAccessToken()
	if stderrors.Is(err, keychain.ErrNotFound) {
		return State{}, Claims{}, nil
	}
	if err != nil {
		return st, Claims{}, err
	}
	c, _ := ParseClaims(tok)
	if !st.LoggedIn {
		// token from FHIRQ_ACCESS_TOKEN
		st = State{LoggedIn: true, User: firstNonEmpty(c.Username, c.Subject), ClientID: c.ClientID}
	}
	return st, c, nil
}

// Session returns the current tokens bound to account and project.
func (s *Service) Session(ctx context.Context, account, project string) (Session, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return Session{}, err
	}
	refresh, _ := s.keys.LoadRefreshToken()
	return Session{Token: tok, RefreshToken: refresh, Account: account, Project: project}, nil
}

// Token returns a usable access token. An expired token is refreshed first; an
// expired token without a refresh token is an auth error and no request is made.
func (s *Service) Token(ctx context.Context) (string, error) {
	tok, err := s.keys.LoadAccessToken()
	if stderrors.Is(err, keychain.ErrNotFound) {
		return "", errors.New(errors.Auth, "not logged in; run 'fhirq login'")
	}
	if err != nil {
		return "", errors.Wrap(errors.Auth, "load access token", err)
	}
	if !tokenExpired(tok, s.now()) {
		return tok, nil
	}
	return s.Refresh(ctx, tok)
}

// Refresh replaces stale. When another caller already refreshed it, the newer
// stored token is returned without a request.
func (s *Service) Refresh(ctx context.Context, stale string) (string, error) {
	if os.Getenv(keychain.EnvAccessToken) != "" {
		return "", errors.New(errors.Auth, keychain.EnvAccessToken+" was rejected or has expired")
	}
	refresh, err := s.keys.LoadRefreshToken()
	if err != nil || refresh == "" {
		return "", errors.New(errors.Auth, "The session token has expired.")
	}

	v, err, shared := s.group.Do(refresh, func() (any, error) {
		if cur, err := s.keys.LoadAccessToken(); err == nil && cur != stale && !tokenExpired(cur, s.now()) {
			return cur, nil
		}
		clientID := ""
		if c, err := ParseClaims(stale); err == nil {
			clientID = c.ClientID
		}
		if clientID == "" {
			if st, err := LoadState(s.keys); err == nil {
				clientID = st.ClientID
			}
		}
		access, rotated, err := s.oauth.RefreshToken(ctx, clientID, refresh)
		if err != nil {
			return "", err
		}
		if err := s.keys.SaveAuthTokens(access, rotated); err != nil {
			return "", errors.Wrap(errors.Auth, "store refreshed token", err)
		}
		s.log.Debug().Bool("rotated", rotated != "").Msg("access token refreshed")
		return access, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		s.log.Debug().Msg("joined in-flight token refresh")
	}
	return v.(string), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
