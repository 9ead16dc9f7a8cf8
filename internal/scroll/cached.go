// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package scroll

import "context"

// Cache stores complete result sets by fingerprint. Implementations must allow
// concurrent readers; a missing or unreadable entry is reported as a miss or error,
// never as a partial result.
type Cache interface {
	Get(ctx context.Context, fingerprint string) ([]Record, bool, error)
	Put(ctx context.Context, fingerprint string, records []Record) error
}

func (e *Executor) lookup(ctx context.Context, c Cache, fp string) ([]Record, bool) {
	recs, ok, err := c.Get(ctx, fp)
	switch {
	case err != nil:
		e.log.Warn().Err(err).Str("fingerprint", fp).Msg("cache read failed; fetching from server")
		return nil, false
	case !ok:
		e.log.Debug().Str("fingerprint", fp).Msg("cache miss")
		return nil, false
	}
	e.log.Debug().Str("fingerprint", fp).Int("records", len(recs)).Msg("cache hit")
	return recs, true
}

func (e *Executor) store(ctx context.Context, c Cache, fp string, recs []Record) {
	if err := c.Put(ctx, fp, recs); err != nil {
		e.log.Warn().Err(err).Str("fingerprint", fp).Msg("cache write failed")
		return
	}
	e.log.Debug().Str("fingerprint", fp).Int("records", len(recs)).Msg("cached result")
}
