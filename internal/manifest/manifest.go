// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package manifest resolves the service endpoints the CLI talks to.
// Endpoints come from a named environment, optionally overridden per URL by config.
package manifest

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"fhirq/cli/internal/errors"
)

// Endpoints holds the base URLs of the platform APIs.
type Endpoints struct {
	// API serves accounts, files and OAuth (e.g. "https://api.us.lifeomic.com/v1").
	API string `json:"api" yaml:"api"`
	// FHIR serves the DSL and SQL search endpoints.
	FHIR string `json:"fhir" yaml:"fhir"`
}

// DefaultEnvironment is used when no environment is configured.
const DefaultEnvironment = "us"

var environments = map[string]Endpoints{
	"us": {
		API:  "https://api.us.lifeomic.com/v1",
		FHIR: "https://fhir.us.lifeomic.com/v1",
	},
	"dev": {
		API:  "https://api.dev.lifeomic.com/v1",
		FHIR: "https://fhir.dev.lifeomic.com/v1",
	},
}

// Environments returns the known environment names, sorted.
func Environments() []string {
	names := make([]string, 0, len(environments))
	for n := range environments {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the endpoints of env with non-empty apiURL and fhirURL taking
// precedence. An empty env means DefaultEnvironment. Every resulting URL must be
// absolute http(s).
func Resolve(env, apiURL, fhirURL string) (Endpoints, error) {
	if env == "" {
		env = DefaultEnvironment
	}
	e, ok := environments[env]
	if !ok && (apiURL == "" || fhirURL == "") {
		return Endpoints{}, errors.Newf(errors.Config, "unknown environment %q (known: %s)", env, strings.Join(Environments(), ", "))
	}
	if apiURL != "" {
		e.API = apiURL
	}
	if fhirURL != "" {
		e.FHIR = fhirURL
	}
	for name, raw := range map[string]string{"api_url": e.API, "fhir_url": e.FHIR} {
		if err := checkBase(raw); err != nil {
			return Endpoints{}, errors.Wrap(errors.Config, "invalid "+name, err)
		}
	}
	e.API = strings.TrimRight(e.API, "/")
	e.FHIR = strings.TrimRight(e.FHIR, "/")
	return e, nil
}

func checkBase(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("'%s' must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("'%s' has no host", raw)
	}
	return nil
}

// APIURL joins path onto the API base.
func (e Endpoints) APIURL(path ...string) string { return join(e.API, path) }

// FHIRURL joins path onto the FHIR base.
func (e Endpoints) FHIRURL(path ...string) string { return join(e.FHIR, path) }

func join(base string, path []string) string {
	parts := make([]string, 0, len(path)+1)
	parts = append(parts, strings.TrimRight(base, "/"))
	for _, p := range path {
		parts = append(parts, url.PathEscape(strings.Trim(p, "/")))
	}
	return strings.Join(parts, "/")
}

// Host returns the host of the API endpoint, for messages.
func (e Endpoints) Host() string {
	u, err := url.Parse(e.API)
	if err != nil || u.Host == "" {
		return "server"
	}
	return u.Host
}
