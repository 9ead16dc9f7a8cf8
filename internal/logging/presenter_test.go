// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pterm/pterm"

	"fhirq/cli/internal/errors"
)

func TestFormatError(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	tests := []struct {
		name      string
		err       error
		wantTitle string
		wantHint  string
	}{
		{"auth", errors.New(errors.Auth, "The session token has expired."), "Authentication failed", "fhirq login"},
		{"validation", errors.New(errors.Validation, "patient key is empty"), "Invalid input", "query file"},
		{"server", errors.Wrap(errors.Transport, "request failed", fmt.Errorf("POST x: 503 Service Unavailable")), "Server error", "try again"},
		{"cancel", fmt.Errorf("retrieve: %w", context.Canceled), "Cancelled", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatError(tt.err)
			if !strings.Contains(got, tt.wantTitle) {
				t.Errorf("FormatError() = %q, want title %q", got, tt.wantTitle)
			}
			if tt.wantHint != "" && !strings.Contains(got, tt.wantHint) {
				t.Errorf("FormatError() = %q, want hint containing %q", got, tt.wantHint)
			}
		})
	}
}

func TestFormatErrorMasks(t *testing.T) {
	got := FormatError(errors.Wrap(errors.Auth, "rejected", fmt.Errorf("Bearer abc123")))
	if strings.Contains(got, "abc123") {
		t.Errorf("FormatError() leaked token: %q", got)
	}
}

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", false, &buf)
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output %q", buf.String())
	}

	buf.Reset()
	verbose := New("bogus", true, &buf)
	verbose.Debug().Msg("verbose")
	if !strings.Contains(buf.String(), "verbose") {
		t.Errorf("verbose logger dropped debug: %q", buf.String())
	}
}
