// internal/store/playlist.go
//
// Named playlists per guild and their ordered track lists.
//
// Context
// -------
//
//	playlists (id PK, name, guild_id)          UNIQUE (guild_id, name)
//	tracks    (playlist_id, url, position)     PK (playlist_id, position)
//
// A playlist's surrogate id is also the key that groups its rows in
// `tracks`.  Positions start at 0 and stay contiguous: appending takes
// MAX(position)+1, and removing a track shifts every later track down by
// one.  Append, removal, and cascades each run in one transaction, so other
// readers never see a half-renumbered list or a playlist without its
// tracks deleted.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/jmoiron/sqlx"
)

const playlistColumns = `id, name, guild_id`

// lookupPlaylist resolves guild+name.  forUpdate locks the playlist row for
// the rest of the transaction.
func lookupPlaylist(ctx context.Context, q sqlx.QueryerContext, guildID uint64, name string, forUpdate bool) (PlaylistRecord, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE guild_id = ? AND name = ? LIMIT 1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var rec PlaylistRecord
	err := sqlx.GetContext(ctx, q, &rec, query, guildID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return PlaylistRecord{}, ErrNotFound
	}
	if err != nil {
		return PlaylistRecord{}, fmt.Errorf("lookup playlist: %w", err)
	}
	return rec, nil
}

// deletePlaylists removes every playlist of the guild and their tracks.  It
// returns how many playlists were removed.
func deletePlaylists(ctx context.Context, tx *sqlx.Tx, guildID uint64) (int, error) {
	var ids []int64
	const list = `SELECT id FROM playlists WHERE guild_id = ? FOR UPDATE`
	if err := tx.SelectContext(ctx, &ids, list, guildID); err != nil {
		return 0, fmt.Errorf("list playlists: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	q, args, err := sqlx.In(`DELETE FROM tracks WHERE playlist_id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("build track delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
		return 0, fmt.Errorf("delete tracks: %w", err)
	}

	const drop = `DELETE FROM playlists WHERE guild_id = ?`
	if _, err := tx.ExecContext(ctx, drop, guildID); err != nil {
		return 0, fmt.Errorf("delete playlists: %w", err)
	}
	return len(ids), nil
}

// exactlyOne checks that a statement touched one row.  A driver that cannot
// report the count fails with its own error, not ErrNoRowsAffected.
func exactlyOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("%w (%d rows)", ErrNoRowsAffected, n)
	}
	return nil
}

// LookupPlaylist returns the playlist row or ErrNotFound.
func (s *Store) LookupPlaylist(ctx context.Context, guildID uint64, name string) (PlaylistRecord, error) {
	var rec PlaylistRecord
	err := s.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		var err error
		rec, err = lookupPlaylist(ctx, db, guildID, name, false)
		return err
	})
	return rec, err
}

// PlaylistID returns the playlist's id, or NoPlaylist when it is missing or
// the read fails.
func (s *Store) PlaylistID(ctx context.Context, guildID uint64, name string) int64 {
	c := s.start("PlaylistID", "guild_id", guildID, "name", name)

	rec, err := s.LookupPlaylist(ctx, guildID, name)
	switch {
	case errors.Is(err, ErrNotFound):
		c.missing("playlist does not exist")
		return NoPlaylist
	case err != nil:
		c.failed(err, "failed to get playlist id")
		return NoPlaylist
	}
	c.done("returned playlist id", "playlist_id", rec.ID)
	return rec.ID
}

// AddPlaylist creates an empty playlist.  A duplicate name within the guild
// is logged and reported as false.
func (s *Store) AddPlaylist(ctx context.Context, guildID uint64, name string) bool {
	c := s.start("AddPlaylist", "guild_id", guildID, "name", name)

	err := s.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		const q = `INSERT INTO playlists (name, guild_id) VALUES (?, ?)`
		_, err := db.ExecContext(ctx, q, name, guildID)
		return classify(err)
	})
	if err != nil {
		c.failed(err, "failed to add playlist")
		return false
	}
	c.done("added playlist")
	return true
}

// AddTrackToPlaylist appends trackURL after the playlist's last track.  It
// reports false when the playlist does not exist or a statement fails.
func (s *Store) AddTrackToPlaylist(ctx context.Context, guildID uint64, name, trackURL string) bool {
	c := s.start("AddTrackToPlaylist", "guild_id", guildID, "name", name, "url", trackURL)

	var position int
	err := s.runTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		rec, err := lookupPlaylist(ctx, tx, guildID, name, true)
		if err != nil {
			return err
		}

		const next = `SELECT COALESCE(MAX(position), -1) + 1 FROM tracks WHERE playlist_id = ?`
		if err := tx.GetContext(ctx, &position, next, rec.ID); err != nil {
			return fmt.Errorf("next position: %w", err)
		}

		const ins = `INSERT INTO tracks (playlist_id, url, position) VALUES (?, ?, ?)`
		if _, err := tx.ExecContext(ctx, ins, rec.ID, trackURL, position); err != nil {
			return fmt.Errorf("insert track: %w", err)
		}
		return nil
	})
	switch {
	case errors.Is(err, ErrNotFound):
		c.missing("playlist does not exist")
		return false
	case err != nil:
		c.failed(err, "failed to add track to playlist")
		return false
	}
	c.done("added track to playlist", "position", position)
	return true
}

// RemoveTrackFromPlaylist deletes the track at position and moves every
// later track down by one.  It reports false unless exactly one track was
// deleted.
func (s *Store) RemoveTrackFromPlaylist(ctx context.Context, playlistID int64, position int) bool {
	c := s.start("RemoveTrackFromPlaylist", "playlist_id", playlistID, "position", position)

	var shifted int
	err := s.runTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		const del = `DELETE FROM tracks WHERE playlist_id = ? AND position = ?`
		res, err := tx.ExecContext(ctx, del, playlistID, position)
		if err != nil {
			return fmt.Errorf("delete track: %w", err)
		}
		if err := exactlyOne(res); err != nil {
			return fmt.Errorf("delete track: %w", err)
		}

		// Ascending order keeps (playlist_id, position) unique after each
		// single-row update.
		var later []int
		const sel = `
	    SELECT position FROM tracks
	    WHERE  playlist_id = ? AND position > ?
	    ORDER  BY position ASC
	    FOR UPDATE`
		if err := tx.SelectContext(ctx, &later, sel, playlistID, position); err != nil {
			return fmt.Errorf("list later tracks: %w", err)
		}

		const upd = `UPDATE tracks SET position = ? WHERE playlist_id = ? AND position = ?`
		for _, p := range later {
			if _, err := tx.ExecContext(ctx, upd, p-1, playlistID, p); err != nil {
				return fmt.Errorf("renumber track %d: %w", p, err)
			}
		}
		shifted = len(later)
		return nil
	})
	if err != nil {
		c.failed(err, "failed to remove track from playlist")
		return false
	}
	c.done("removed track from playlist", "shifted", shifted)
	return true
}

// RemovePlaylist deletes the named playlist and all of its tracks.  An
// empty playlist is removed too.
func (s *Store) RemovePlaylist(ctx context.Context, guildID uint64, name string) bool {
	c := s.start("RemovePlaylist", "guild_id", guildID, "name", name)

	var tracks int64
	err := s.runTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		rec, err := lookupPlaylist(ctx, tx, guildID, name, true)
		if err != nil {
			return err
		}

		const drop = `DELETE FROM playlists WHERE id = ?`
		res, err := tx.ExecContext(ctx, drop, rec.ID)
		if err != nil {
			return fmt.Errorf("delete playlist: %w", err)
		}
		if err := exactlyOne(res); err != nil {
			return fmt.Errorf("delete playlist: %w", err)
		}

		const del = `DELETE FROM tracks WHERE playlist_id = ?`
		res, err = tx.ExecContext(ctx, del, rec.ID)
		if err != nil {
			return fmt.Errorf("delete tracks: %w", err)
		}
		tracks, _ = res.RowsAffected()
		return nil
	})
	switch {
	case errors.Is(err, ErrNotFound):
		c.missing("playlist does not exist")
		return false
	case err != nil:
		c.failed(err, "failed to remove playlist")
		return false
	}
	c.done("removed playlist", "tracks", tracks)
	return true
}

// RemoveAllPlaylists deletes every playlist of the guild and their tracks.
func (s *Store) RemoveAllPlaylists(ctx context.Context, guildID uint64) bool {
	c := s.start("RemoveAllPlaylists", "guild_id", guildID)

	var n int
	err := s.runTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		n, err = deletePlaylists(ctx, tx, guildID)
		return err
	})
	if err != nil {
		c.failed(err, "failed to remove playlists")
		return false
	}
	c.done("removed playlists", "playlists", n)
	return true
}

// PlaylistTracks lazily yields the playlist's track URLs by position.
func (s *Store) PlaylistTracks(ctx context.Context, playlistID int64) iter.Seq[string] {
	const q = `SELECT url FROM tracks WHERE playlist_id = ? ORDER BY position ASC`
	return stream(s, ctx, func() *call {
		return s.start("PlaylistTracks", "playlist_id", playlistID)
	}, q, []any{playlistID}, scanValue[string])
}

// PlaylistTrackRecords lazily yields the playlist's full track rows by
// position.
func (s *Store) PlaylistTrackRecords(ctx context.Context, playlistID int64) iter.Seq[TrackRecord] {
	const q = `SELECT playlist_id, url, position FROM tracks WHERE playlist_id = ? ORDER BY position ASC`
	return stream(s, ctx, func() *call {
		return s.start("PlaylistTrackRecords", "playlist_id", playlistID)
	}, q, []any{playlistID}, scanStruct[TrackRecord])
}

// AllPlaylistIDs lazily yields the ids of the guild's playlists.
func (s *Store) AllPlaylistIDs(ctx context.Context, guildID uint64) iter.Seq[int64] {
	const q = `SELECT id FROM playlists WHERE guild_id = ? ORDER BY id`
	return stream(s, ctx, func() *call {
		return s.start("AllPlaylistIDs", "guild_id", guildID)
	}, q, []any{guildID}, scanValue[int64])
}

// Playlists lazily yields the guild's playlist rows ordered by name.
func (s *Store) Playlists(ctx context.Context, guildID uint64) iter.Seq[PlaylistRecord] {
	const q = `SELECT ` + playlistColumns + ` FROM playlists WHERE guild_id = ? ORDER BY name`
	return stream(s, ctx, func() *call {
		return s.start("Playlists", "guild_id", guildID)
	}, q, []any{guildID}, scanStruct[PlaylistRecord])
}
