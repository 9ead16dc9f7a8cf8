// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"encoding/json"
	"time"

	"fhirq/cli/internal/keychain"
)

// State is the non-secret login record kept next to the tokens, used to answer
// whoami without a network round trip.
type State struct {
	LoggedIn   bool      `json:"logged_in"`
	User       string    `json:"user"`
	ClientID   string    `json:"client_id,omitempty"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

// LoadState reads the state from keys. Missing state yields the zero value.
func LoadState(keys *keychain.Manager) (State, error) {
	var s State
	data, err := keys.LoadAuthState()
	if err != nil || len(data) == 0 {
		return s, err
	}
	err = json.Unmarshal(data, &s)
	return s, err
}

// SaveState writes s to keys.
func SaveState(keys *keychain.Manager, s State) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return keys.SaveAuthState(b)
}
