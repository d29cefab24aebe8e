// Package cache stores the last good body of every remote document, keyed
// by a hash of its URL, so a render can fall back to it when the source is
// unreachable.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// Backend names
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Store is a key/value store for document bodies. Implementations must be
// safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, body []byte) error
}

// Key returns the lowercase hex SHA-256 of url
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Options configures Open
type Options struct {
	Backend    string
	Path       string
	TTL        time.Duration
	MaxEntries int
}

// Open builds the store named by opts.Backend. The returned close function
// is never nil.
func Open(opts Options) (Store, func() error, error) {
	noop := func() error { return nil }

	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(opts.MaxEntries, opts.TTL), noop, nil
	case BackendSQLite:
		s, err := OpenSQLiteStore(opts.Path, opts.TTL)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case BackendNone:
		return NopStore{}, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

// Stats counts cache traffic
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Writes int64 `json:"writes"`
}

type counters struct {
	hits   int64
	misses int64
	writes int64
}

func (c *counters) hit()   { atomic.AddInt64(&c.hits, 1) }
func (c *counters) miss()  { atomic.AddInt64(&c.misses, 1) }
func (c *counters) write() { atomic.AddInt64(&c.writes, 1) }

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Writes: atomic.LoadInt64(&c.writes),
	}
}
