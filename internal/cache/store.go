// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cache

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"fhirq/cli/internal/errors"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Store is a result cache that can also be inspected and emptied.
type Store interface {
	Get(ctx context.Context, fingerprint string) ([]json.RawMessage, bool, error)
	Put(ctx context.Context, fingerprint string, records []json.RawMessage) error
	List(ctx context.Context) ([]Entry, error)
	Clear(ctx context.Context) (int, error)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the store for backend rooted at dir. BackendNone yields a nil Store.
// The returned Closer is never nil.
func Open(backend, dir string) (Store, io.Closer, error) {
	switch backend {
	case BackendNone:
		return nil, nopCloser{}, nil
	case BackendFile, "":
		s, err := NewFileStore(dir)
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil
	case BackendSQLite:
		if err := ensureDir(dir); err != nil {
			return nil, nil, err
		}
		s, err := OpenSQLite(filepath.Join(dir, "results.db"))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
	return nil, nil, errors.Newf(errors.Config, "unknown cache backend %q (want file, sqlite or none)", backend)
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(errors.Cache, "create cache dir", err)
	}
	return nil
}
