// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package auth manages the fhirq session: the access and refresh tokens kept in
// the OS keychain, expiry checks on the access token, and serialized refresh.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fhirq/cli/internal/errors"
)

// ExpiryLeeway treats tokens this close to expiry as already expired.
const ExpiryLeeway = 30 * time.Second

// Claims are the access token fields fhirq reads. The signature is not verified;
// the server does that.
type Claims struct {
	ClientID string
	Subject  string
	Username string
	Expiry   time.Time
}

// ParseClaims decodes token without verifying it.
func ParseClaims(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, mc); err != nil {
		return Claims{}, errors.Wrap(errors.Auth, "access token is not a JWT", err)
	}
	var c Claims
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.Expiry = exp.Time
	}
	c.Subject, _ = mc.GetSubject()
	c.ClientID, _ = mc["client_id"].(string)
	for _, k := range []string{"cognito:username", "username", "email"} {
		if v, ok := mc[k].(string); ok && v != "" {
			c.Username = v
			break
		}
	}
	return c, nil
}

// Session is the credential set used for one run.
type Session struct {
	Token        string
	RefreshToken string
	Account      string
	Project      string
}

// Expired reports whether the access token expires within ExpiryLeeway of now.
// Tokens that are not JWTs or carry no exp never expire locally.
func (s Session) Expired(now time.Time) bool {
	return tokenExpired(s.Token, now)
}

func tokenExpired(token string, now time.Time) bool {
	c, err := ParseClaims(token)
	if err != nil || c.Expiry.IsZero() {
		return false
	}
	return !now.Add(ExpiryLeeway).Before(c.Expiry)
}
