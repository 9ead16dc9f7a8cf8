// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package httperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

type statusErr int

func (s statusErr) Error() string   { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) HTTPStatus() int { return int(s) }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), Timeout},
		{"dns", &net.DNSError{Err: "no such host", Name: "fhir.example"}, DNS},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, ConnectionRefused},
		{"tls", errors.New("x509: certificate signed by unknown authority"), TLS},
		{"5xx text", errors.New("POST x: 502 Bad Gateway"), Server},
		{"5xx status", fmt.Errorf("wrapped: %w", statusErr(503)), Server},
		{"429", statusErr(429), RateLimited},
		{"404", statusErr(404), NotFound},
		{"400", statusErr(400), Generic},
		{"other", errors.New("boom"), Generic},
		{"nil", nil, Generic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestExtractHostFromURL(t *testing.T) {
	if got := ExtractHostFromURL("https://fhir.us.lifeomic.com/v1"); got != "fhir.us.lifeomic.com" {
		t.Errorf("got %s", got)
	}
	if got := ExtractHostFromURL("::"); got != "server" {
		t.Errorf("got %s", got)
	}
}
