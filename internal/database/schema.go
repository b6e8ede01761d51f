package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema (2026-10-01).  No engine-level foreign keys: playlists and tracks
// are removed by the store when their guild or playlist goes away.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS guilds (
	    id             BIGINT          NOT NULL AUTO_INCREMENT PRIMARY KEY,
	    guild_id       BIGINT UNSIGNED NOT NULL UNIQUE,
	    prefix         VARCHAR(10)     NOT NULL DEFAULT '',
	    repeat_enabled TINYINT(1)      NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS users (
	    id      BIGINT          NOT NULL AUTO_INCREMENT PRIMARY KEY,
	    user_id BIGINT UNSIGNED NOT NULL UNIQUE,
	    score   BIGINT          NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS playlists (
	    id       BIGINT          NOT NULL AUTO_INCREMENT PRIMARY KEY,
	    name     VARCHAR(100)    NOT NULL,
	    guild_id BIGINT UNSIGNED NOT NULL,
	    UNIQUE KEY playlists_guild_name (guild_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS tracks (
	    playlist_id BIGINT        NOT NULL,
	    url         VARCHAR(2048) NOT NULL,
	    position    INT           NOT NULL,
	    PRIMARY KEY (playlist_id, position)
	)`,
}

// EnsureSchema creates the four store tables when they are missing.  Each
// statement is idempotent so it runs on every boot.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
