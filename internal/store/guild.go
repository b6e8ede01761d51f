package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/jmoiron/sqlx"
)

const guildColumns = `id, guild_id, prefix, repeat_enabled`

// AddGuild records a guild with no prefix and repeat off.  A guild that is
// already recorded is logged and reported as false.
func (s *Store) AddGuild(ctx context.Context, guildID uint64) bool {
	c := s.start("AddGuild", "guild_id", guildID)

	err := s.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		const q = `INSERT INTO guilds (guild_id, prefix, repeat_enabled) VALUES (?, '', FALSE)`
		_, err := db.ExecContext(ctx, q, guildID)
		return classify(err)
	})
	if err != nil {
		c.failed(err, "failed to add guild")
		return false
	}
	c.done("added guild")
	return true
}

// RemoveGuild deletes the guild row together with its playlists and their
// tracks.  All three deletes share one transaction.
func (s *Store) RemoveGuild(ctx context.Context, guildID uint64) bool {
	c := s.start("RemoveGuild", "guild_id", guildID)

	var playlists int
	err := s.runTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		const q = `DELETE FROM guilds WHERE guild_id = ?`
		if _, err := tx.ExecContext(ctx, q, guildID); err != nil {
			return fmt.Errorf("delete guild: %w", err)
		}
		n, err := deletePlaylists(ctx, tx, guildID)
		playlists = n
		return err
	})
	if err != nil {
		c.failed(err, "failed to remove guild from all tables")
		return false
	}
	c.done("removed guild from all tables", "playlists", playlists)
	return true
}

// LookupGuild returns the guild row or ErrNotFound.
func (s *Store) LookupGuild(ctx context.Context, guildID uint64) (GuildRecord, error) {
	var rec GuildRecord
	err := s.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		const q = `SELECT ` + guildColumns + ` FROM guilds WHERE guild_id = ? LIMIT 1`
		return db.GetContext(ctx, &rec, q, guildID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return GuildRecord{}, ErrNotFound
	}
	if err != nil {
		return GuildRecord{}, err
	}
	return rec, nil
}

// GuildInfo returns the guild row, or EmptyGuild when it is missing or the
// read fails.
func (s *Store) GuildInfo(ctx context.Context, guildID uint64) GuildRecord {
	c := s.start("GuildInfo", "guild_id", guildID)

	rec, err := s.LookupGuild(ctx, guildID)
	switch {
	case errors.Is(err, ErrNotFound):
		c.missing("guild not found")
		return EmptyGuild()
	case err != nil:
		c.failed(err, "failed to get guild info")
		return EmptyGuild()
	}
	c.done("returned guild info")
	return rec
}

// AllGuilds lazily scans every guild row in id order.
func (s *Store) AllGuilds(ctx context.Context) iter.Seq[GuildRecord] {
	const q = `SELECT ` + guildColumns + ` FROM guilds ORDER BY id`
	return stream(s, ctx, func() *call { return s.start("AllGuilds") }, q, nil, scanStruct[GuildRecord])
}

// Prefix returns the configured prefix.  ok is false when the guild has no
// prefix, is not recorded, or the read fails.
func (s *Store) Prefix(ctx context.Context, guildID uint64) (prefix string, ok bool) {
	c := s.start("Prefix", "guild_id", guildID)

	err := s.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		const q = `SELECT prefix FROM guilds WHERE guild_id = ? LIMIT 1`
		return db.GetContext(ctx, &prefix, q, guildID)
	})
	switch {
	case errors.Is(err, sql.ErrNoRows):
		c.missing("guild not found")
		return "", false
	case err != nil:
		c.failed(err, "failed to get prefix")
		return "", false
	case prefix == "":
		c.done("guild has no prefix")
		return "", false
	}
	c.done("returned prefix", "prefix", prefix)
	return prefix, true
}

// SetPrefix stores prefix for the guild, recording the guild first when it
// is unknown.  An empty prefix clears the setting; anything else must pass
// NewPrefix.
func (s *Store) SetPrefix(ctx context.Context, guildID uint64, prefix string) bool {
	c := s.start("SetPrefix", "guild_id", guildID, "prefix", prefix)

	if prefix != "" {
		if _, err := NewPrefix(prefix); err != nil {
			c.failed(err, "rejected prefix")
			return false
		}
	}

	err := s.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		const q = `
	    INSERT INTO guilds (guild_id, prefix, repeat_enabled) VALUES (?, ?, FALSE)
	    ON DUPLICATE KEY UPDATE prefix = VALUES(prefix)`
		_, err := db.ExecContext(ctx, q, guildID, prefix)
		return err
	})
	if err != nil {
		c.failed(err, "failed to set prefix")
		return false
	}
	c.done("set prefix")
	return true
}

// Repeat reports whether repeat is on.  Missing guilds and failed reads
// report false.
func (s *Store) Repeat(ctx context.Context, guildID uint64) bool {
	c := s.start("Repeat", "guild_id", guildID)

	var enabled bool
	err := s.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		const q = `SELECT repeat_enabled FROM guilds WHERE guild_id = ? LIMIT 1`
		return db.GetContext(ctx, &enabled, q, guildID)
	})
	switch {
	case errors.Is(err, sql.ErrNoRows):
		c.missing("guild not found")
		return false
	case err != nil:
		c.failed(err, "failed to get repeat")
		return false
	}
	c.done("returned repeat", "repeat", enabled)
	return enabled
}

// SetRepeat stores the repeat flag, recording the guild first when it is
// unknown.
func (s *Store) SetRepeat(ctx context.Context, guildID uint64, enabled bool) bool {
	c := s.start("SetRepeat", "guild_id", guildID, "repeat", enabled)

	err := s.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		const q = `
	    INSERT INTO guilds (guild_id, prefix, repeat_enabled) VALUES (?, '', ?)
	    ON DUPLICATE KEY UPDATE repeat_enabled = VALUES(repeat_enabled)`
		_, err := db.ExecContext(ctx, q, guildID, enabled)
		return err
	})
	if err != nil {
		c.failed(err, "failed to set repeat")
		return false
	}
	c.done("set repeat")
	return true
}
