// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"slices"

	"github.com/golang/groupcache/lru"
	"github.com/rs/zerolog/log"
)

const (
	readCacheSize  = 5
	writeCacheSize = 10
)

// cachedOp is a Reader or Writer held by a statement cache.
type cachedOp interface {
	SQL() string
	closeStmt() error
}

// pendingFlusher is implemented by operations that may hold unflushed work.
type pendingFlusher interface {
	Pending() int
	Flush(ctx context.Context) (int, error)
}

// stmtCache is a fixed-capacity LRU of prepared operations keyed by
// normalized SQL. Overflow retires the least recently used entry: a writer
// with pending work is flushed first, then its statement is closed. Errors
// on that path are logged and never reach the caller of put.
type stmtCache struct {
	kind    string
	lru     *lru.Cache
	entries map[string]cachedOp
	// order holds the live keys, oldest insert first.
	order   []string
	retired []cachedOp
}

func newStmtCache(kind string, capacity int) *stmtCache {
	c := &stmtCache{
		kind:    kind,
		lru:     lru.New(capacity),
		entries: make(map[string]cachedOp, capacity),
	}
	c.lru.OnEvicted = func(key lru.Key, value any) {
		k := key.(string)
		delete(c.entries, k)
		if i := slices.Index(c.order, k); i >= 0 {
			c.order = slices.Delete(c.order, i, i+1)
		}
		c.retired = append(c.retired, value.(cachedOp))
	}
	return c
}

func (c *stmtCache) get(key string) (cachedOp, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return v.(cachedOp), true
}

// put inserts op and retires whatever the insert pushed out.
func (c *stmtCache) put(ctx context.Context, key string, op cachedOp) {
	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = op
	c.lru.Add(key, op)
	c.retire(ctx, true)
}

// remove drops key without closing it; the caller owns the operation.
func (c *stmtCache) remove(key string) {
	c.lru.Remove(key)
	c.retired = c.retired[:0]
}

func (c *stmtCache) len() int { return c.lru.Len() }

// each visits every live entry in the order it was first cached.
func (c *stmtCache) each(fn func(op cachedOp) error) error {
	for _, key := range slices.Clone(c.order) {
		op, ok := c.entries[key]
		if !ok {
			continue
		}
		if err := fn(op); err != nil {
			return err
		}
	}
	return nil
}

// purge closes every entry without flushing.
func (c *stmtCache) purge() {
	c.lru.Clear()
	c.retire(context.Background(), false)
}

func (c *stmtCache) retire(ctx context.Context, flush bool) {
	retired := c.retired
	c.retired = nil
	for _, op := range retired {
		if flush {
			if w, ok := op.(pendingFlusher); ok && w.Pending() > 0 {
				if _, err := w.Flush(ctx); err != nil {
					log.Warn().Err(err).Str("cache", c.kind).Str("sql", truncateSQL(op.SQL())).Msg("failed to flush evicted statement")
				}
			}
		}
		if err := op.closeStmt(); err != nil {
			log.Debug().Err(err).Str("cache", c.kind).Str("sql", truncateSQL(op.SQL())).Msg("failed to close evicted statement")
		}
	}
}
