// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build darwin

package keychain

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// securityBackend stores generic passwords through /usr/bin/security, with the
// fhirq service as account and the key as service name.
type securityBackend struct{}

func newSecurityBackend() (*securityBackend, error) {
	if _, err := exec.LookPath("security"); err != nil {
		return nil, fmt.Errorf("security command not found: %w", err)
	}
	return &securityBackend{}, nil
}

// run invokes security with op for key. missing reports that the item did not exist.
func (s *securityBackend) run(op, key string, extra ...string) (out string, missing bool, err error) {
	args := append([]string{op, "-a", ServiceName, "-s", key}, extra...)
	cmd := exec.Command("security", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "could not be found") {
			return "", true, nil
		}
		return "", false, fmt.Errorf("keychain %s %q: %s: %w", op, key, msg, err)
	}
	return strings.TrimSpace(stdout.String()), false, nil
}

func (s *securityBackend) Set(key, value string) error {
	_ = s.Delete(key)
	_, _, err := s.run("add-generic-password", key, "-w", value, "-U")
	return err
}

func (s *securityBackend) Get(key string) (string, error) {
	v, missing, err := s.run("find-generic-password", key, "-w")
	if missing {
		return "", ErrNotFound
	}
	return v, err
}

func (s *securityBackend) Delete(key string) error {
	_, _, err := s.run("delete-generic-password", key)
	return err
}
