// Package settings is a read-through cache of per-guild command settings.
//
// Every message the bot sees needs the guild's prefix, so the prefix and
// repeat flag are kept in a bounded LRU in front of the store.  Concurrent
// misses for one guild share a single database read.  Writes go straight
// to the store and drop the cached entry, so the next read reloads it.  A
// load that overlaps a write is returned to its callers but not cached.
package settings

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/moby/internal/cache"
	"github.com/yanizio/moby/internal/metrics"
	"github.com/yanizio/moby/internal/store"
)

// Defaults used when New receives non-positive sizes.
const (
	DefaultSize = 1024
	DefaultTTL  = 10 * time.Minute
)

// Source is the slice of the store the cache reads and writes through.
type Source interface {
	LookupGuild(ctx context.Context, guildID uint64) (store.GuildRecord, error)
	SetPrefix(ctx context.Context, guildID uint64, prefix string) bool
	SetRepeat(ctx context.Context, guildID uint64, enabled bool) bool
	RemoveGuild(ctx context.Context, guildID uint64) bool
}

// Guild is the cached view of one guild's settings.
type Guild struct {
	Prefix string // empty when none is stored
	Repeat bool
	Known  bool // a guilds row exists
}

// Cache is safe for concurrent use.
type Cache struct {
	src Source
	lru *cache.LRU[uint64, Guild]
	sfg singleflight.Group
	log *zap.SugaredLogger

	// mu orders cache fills against invalidation; gen counts writes.
	mu  sync.Mutex
	gen uint64
}

// New returns a Cache over src.
func New(src Source, size int, ttl time.Duration, log *zap.SugaredLogger) *Cache {
	return NewWithClock(src, size, ttl, time.Now, log)
}

// NewWithClock is New with an injected clock for expiry.
func NewWithClock(src Source, size int, ttl time.Duration, now cache.Clock, log *zap.SugaredLogger) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Cache{
		src: src,
		lru: cache.NewWithClock[uint64, Guild](size, ttl, now),
		log: log,
	}
}

// Get returns the guild's settings, loading them on a miss.  A missing
// guild is cached as the zero Guild.  A failed read is not cached and
// yields the zero Guild too.
func (c *Cache) Get(ctx context.Context, guildID uint64) Guild {
	if g, ok := c.lru.Get(guildID); ok {
		metrics.SettingsCacheHits.Inc()
		return g
	}
	metrics.SettingsCacheMisses.Inc()

	key := strconv.FormatUint(guildID, 10)
	v, err, _ := c.sfg.Do(key, func() (any, error) {
		if g, ok := c.lru.Get(guildID); ok {
			return g, nil
		}
		gen := c.generation()
		rec, err := c.src.LookupGuild(ctx, guildID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.fill(guildID, Guild{}, gen)
			return Guild{}, nil
		case err != nil:
			return Guild{}, err
		}
		g := Guild{Prefix: rec.Prefix, Repeat: rec.RepeatEnabled, Known: true}
		c.fill(guildID, g, gen)
		return g, nil
	})
	if err != nil {
		c.log.Warnw("failed to load guild settings", "guild_id", guildID, "err", err)
		return Guild{}
	}
	return v.(Guild)
}

// Prefix mirrors store.Prefix: ok is false when no prefix is stored.
func (c *Cache) Prefix(ctx context.Context, guildID uint64) (string, bool) {
	g := c.Get(ctx, guildID)
	return g.Prefix, g.Prefix != ""
}

// PrefixOr returns the stored prefix or def.
func (c *Cache) PrefixOr(ctx context.Context, guildID uint64, def string) string {
	if p, ok := c.Prefix(ctx, guildID); ok {
		return p
	}
	return def
}

// Repeat mirrors store.Repeat.
func (c *Cache) Repeat(ctx context.Context, guildID uint64) bool {
	return c.Get(ctx, guildID).Repeat
}

// SetPrefix writes through and invalidates.
func (c *Cache) SetPrefix(ctx context.Context, guildID uint64, prefix string) bool {
	ok := c.src.SetPrefix(ctx, guildID, prefix)
	c.Invalidate(guildID)
	return ok
}

// SetRepeat writes through and invalidates.
func (c *Cache) SetRepeat(ctx context.Context, guildID uint64, enabled bool) bool {
	ok := c.src.SetRepeat(ctx, guildID, enabled)
	c.Invalidate(guildID)
	return ok
}

// RemoveGuild removes the guild from the store and the cache.
func (c *Cache) RemoveGuild(ctx context.Context, guildID uint64) bool {
	ok := c.src.RemoveGuild(ctx, guildID)
	c.Invalidate(guildID)
	return ok
}

// Invalidate drops the cached entry for guildID.  Loads already running
// for any guild will not cache their result, and later reads start a
// fresh load instead of joining one of them.
func (c *Cache) Invalidate(guildID uint64) {
	c.mu.Lock()
	c.gen++
	c.lru.Remove(guildID)
	c.mu.Unlock()
	c.sfg.Forget(strconv.FormatUint(guildID, 10))
}

func (c *Cache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// fill caches g unless a write happened since gen was read.
func (c *Cache) fill(guildID uint64, g Guild, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.lru.Add(guildID, g)
}

// Len reports how many guilds are cached.
func (c *Cache) Len() int { return c.lru.Len() }
