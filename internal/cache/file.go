// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"fhirq/cli/internal/errors"
)

const (
	fileVersion = 1
	fileExt     = ".json"
	stripes     = 32
)

type fileEntry struct {
	Version     int               `json:"version"`
	Fingerprint string            `json:"fingerprint"`
	CreatedAt   time.Time         `json:"created_at"`
	Records     []json.RawMessage `json:"records"`
}

// FileStore keeps one JSON file per fingerprint in a directory.
// Reads of a fingerprint share a lock; writes to it are exclusive. A write lands
// in a temp file that is renamed over the entry, so readers in other processes
// see either the old or the new entry.
type FileStore struct {
	dir   string
	locks [stripes]sync.RWMutex
	now   func() time.Time
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(errors.Cache, "create cache dir", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Dir returns the cache directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) lock(fp string) *sync.RWMutex {
	h := fnv.New32a()
	h.Write([]byte(fp))
	return &s.locks[h.Sum32()%stripes]
}

func (s *FileStore) path(fp string) (string, error) {
	if fp == "" || strings.ContainsAny(fp, `/\.`) {
		return "", errors.Newf(errors.Cache, "invalid fingerprint %q", fp)
	}
	return filepath.Join(s.dir, fp+fileExt), nil
}

// Get returns the stored records. A missing entry is a miss; an unreadable or
// mismatched entry is an error.
func (s *FileStore) Get(_ context.Context, fp string) ([]json.RawMessage, bool, error) {
	p, err := s.path(fp)
	if err != nil {
		return nil, false, err
	}
	l := s.lock(fp)
	l.RLock()
	defer l.RUnlock()

	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(errors.Cache, "read entry", err)
	}
	var e fileEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, errors.Wrap(errors.Cache, "decode entry", err)
	}
	if e.Version != fileVersion || e.Fingerprint != fp {
		return nil, false, errors.Newf(errors.Cache, "entry %s does not match (version %d)", fp, e.Version)
	}
	if e.Records == nil {
		e.Records = []json.RawMessage{}
	}
	return e.Records, true, nil
}

// Put stores records under fp, replacing any previous entry.
func (s *FileStore) Put(_ context.Context, fp string, records []json.RawMessage) error {
	p, err := s.path(fp)
	if err != nil {
		return err
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	data, err := json.Marshal(fileEntry{
		Version:     fileVersion,
		Fingerprint: fp,
		CreatedAt:   s.now().UTC(),
		Records:     records,
	})
	if err != nil {
		return errors.Wrap(errors.Cache, "encode entry", err)
	}

	l := s.lock(fp)
	l.Lock()
	defer l.Unlock()

	tmp, err := os.CreateTemp(s.dir, fp+".*.tmp")
	if err != nil {
		return errors.Wrap(errors.Cache, "create temp entry", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(errors.Cache, "write entry", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.Cache, "close entry", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return errors.Wrap(errors.Cache, "commit entry", err)
	}
	return nil
}

// List returns stored entries, newest first. Unreadable files are skipped.
func (s *FileStore) List(_ context.Context) ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+fileExt))
	if err != nil {
		return nil, errors.Wrap(errors.Cache, "list entries", err)
	}
	var out []Entry
	for _, m := range matches {
		fp := strings.TrimSuffix(filepath.Base(m), fileExt)
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		recs, ok, err := s.Get(context.Background(), fp)
		if err != nil || !ok {
			continue
		}
		out = append(out, Entry{
			Fingerprint: fp,
			Records:     len(recs),
			Size:        info.Size(),
			CreatedAt:   info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Clear removes every entry and returns how many were removed.
func (s *FileStore) Clear(_ context.Context) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+fileExt))
	if err != nil {
		return 0, errors.Wrap(errors.Cache, "list entries", err)
	}
	n := 0
	for _, m := range matches {
		fp := strings.TrimSuffix(filepath.Base(m), fileExt)
		l := s.lock(fp)
		l.Lock()
		err := os.Remove(m)
		l.Unlock()
		if err != nil && !os.IsNotExist(err) {
			return n, errors.Wrap(errors.Cache, fmt.Sprintf("remove %s", filepath.Base(m)), err)
		}
		if err == nil {
			n++
		}
	}
	return n, nil
}
