// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors classifies HTTP and network failures for user-friendly reporting.
package httperrors

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
)

// Class is a category of transport failure.
type Class int

const (
	Generic Class = iota
	Timeout
	DNS
	ConnectionRefused
	TLS
	Server
	RateLimited
	NotFound
)

// statusCoder is implemented by response errors that know their HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// Classify returns the class of err.
func Classify(err error) Class {
	if err == nil {
		return Generic
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		switch code := sc.HTTPStatus(); {
		case code == 429:
			return RateLimited
		case code == 404:
			return NotFound
		case code >= 500:
			return Server
		}
		return Generic
	}
	switch {
	case isTimeoutError(err):
		return Timeout
	case isDNSError(err):
		return DNS
	case isConnectionRefusedError(err):
		return ConnectionRefused
	case isSSLError(err):
		return TLS
	case isServerError(err.Error()):
		return Server
	}
	return Generic
}

// Title is a one-line heading for c.
func (c Class) Title() string {
	switch c {
	case Timeout:
		return "Connection timeout"
	case DNS:
		return "Cannot resolve server address"
	case ConnectionRefused:
		return "Connection refused"
	case TLS:
		return "Secure connection failed"
	case Server:
		return "Server error"
	case RateLimited:
		return "Too many requests"
	case NotFound:
		return "Not found"
	}
	return "Request failed"
}

// Hints are troubleshooting suggestions for c.
func (c Class) Hints() []string {
	switch c {
	case Timeout:
		return []string{"The server took too long to respond", "Lower --page-size or try again in a few moments"}
	case DNS:
		return []string{"Check your internet connection and DNS settings", "Verify api_url and fhir_url with 'fhirq config show'"}
	case ConnectionRefused:
		return []string{"The service may be temporarily down", "Check the configured endpoint and port"}
	case TLS:
		return []string{"Check your system date and time", "Verify network proxy settings"}
	case Server:
		return []string{"The FHIR service encountered an internal error", "Please try again in a few minutes"}
	case RateLimited:
		return []string{"Wait a moment before retrying", "Use the result cache to avoid repeated queries"}
	case NotFound:
		return []string{"Check the project id and resource name"}
	}
	return []string{"Check your internet connection", "Run with --verbose for request details"}
}

// FormatNetworkError prints a friendly message for err and returns it wrapped.
func FormatNetworkError(err error, context string) error {
	if err == nil {
		return nil
	}
	c := Classify(err)
	pterm.Printf("%s while %s\n", c.Title(), context)
	for _, h := range c.Hints() {
		pterm.Println("  • " + h)
	}
	pterm.Println()
	return fmt.Errorf("network error: %w", err)
}

func isTimeoutError(err error) bool {
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isConnectionRefusedError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.ECONNREFUSED)
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

func isSSLError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "x509") ||
		strings.Contains(errStr, "certificate") ||
		strings.Contains(errStr, "handshake")
}

// isServerError checks the message for 5xx status text.
func isServerError(errStr string) bool {
	lower := strings.ToLower(errStr)
	for _, s := range []string{"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "gateway timeout"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// ExtractHostFromURL extracts the hostname from a URL for error messages.
func ExtractHostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "server"
	}
	return u.Host
}
