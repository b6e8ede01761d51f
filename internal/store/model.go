// internal/store/model.go
//
// Row models for the four store tables.
//
// Context
// -------
// Each struct mirrors one row and carries `db` tags for sqlx scans.  Reads
// that find nothing return an *empty* record instead of an error so the
// command layer always receives a usable value.  The empty records use
// magic values that auto-increment keys never produce:
//
//	EmptyGuild()  → ID -1, GuildID 0, Prefix "", RepeatEnabled false
//	EmptyUser()   → ID -1, UserID 0, Score -1
//
// Callers test with IsEmpty().  Code that needs to tell "missing" apart
// from "database down" uses the Lookup* methods, which return ErrNotFound.
//
// Notes
// -----
//   - Snowflakes are uint64.  Surrogate keys are int64.
//   - Track positions are 0-based and contiguous within a playlist.
package store

import (
	"fmt"
	"unicode/utf8"
)

// GuildRecord mirrors one row in `guilds`.
type GuildRecord struct {
	ID            int64  `db:"id"`
	GuildID       uint64 `db:"guild_id"`
	Prefix        string `db:"prefix"`
	RepeatEnabled bool   `db:"repeat_enabled"`
}

// EmptyGuild is the not-found sentinel for guild reads.
func EmptyGuild() GuildRecord { return GuildRecord{ID: -1} }

// IsEmpty reports whether g is the EmptyGuild sentinel.
func (g GuildRecord) IsEmpty() bool {
	return g.ID == -1 && g.GuildID == 0 && g.Prefix == "" && !g.RepeatEnabled
}

// UserRecord mirrors one row in `users`.
type UserRecord struct {
	ID     int64  `db:"id"`
	UserID uint64 `db:"user_id"`
	Score  int64  `db:"score"`
}

// EmptyUser is the not-found sentinel for user reads.
func EmptyUser() UserRecord { return UserRecord{ID: -1, Score: -1} }

// IsEmpty reports whether u is the EmptyUser sentinel.
func (u UserRecord) IsEmpty() bool {
	return u.ID == -1 && u.UserID == 0 && u.Score == -1
}

// PlaylistRecord mirrors one row in `playlists`.  ID doubles as the key
// that groups the playlist's rows in `tracks`.
type PlaylistRecord struct {
	ID      int64  `db:"id"`
	Name    string `db:"name"`
	GuildID uint64 `db:"guild_id"`
}

// TrackRecord mirrors one row in `tracks`.
type TrackRecord struct {
	PlaylistID int64  `db:"playlist_id"`
	URL        string `db:"url"`
	Position   int    `db:"position"`
}

// NoPlaylist is returned by PlaylistID when no playlist matches.
const NoPlaylist int64 = -1

// Prefix bounds.
const (
	MinPrefixLen = 1
	MaxPrefixLen = 10
)

// Prefix is a validated command prefix.  The zero value is not valid; use
// NewPrefix.
type Prefix struct{ value string }

// NewPrefix returns a Prefix when s is 1 to 10 characters long.
func NewPrefix(s string) (Prefix, error) {
	n := utf8.RuneCountInString(s)
	if n < MinPrefixLen || n > MaxPrefixLen {
		return Prefix{}, fmt.Errorf("%w: %q has %d characters", ErrInvalidPrefix, s, n)
	}
	return Prefix{value: s}, nil
}

func (p Prefix) String() string { return p.value }
