// internal/store/store.go
//
// Guild, user, and playlist persistence for the bot.
//
// Context
// -------
// The command layer calls exactly one Store method per user action or guild
// event.  Each method:
//
//  1. logs "executing <Operation>" at debug level with its key fields,
//  2. borrows the shared pool from the Connector (opening it on demand),
//  3. runs parameterised SQL, multi-statement work inside one transaction,
//  4. logs the outcome (debug, warn on not-found, error on failure),
//  5. records Prometheus counters and latency,
//  6. returns a safe value: false, an empty record, -1, an empty sequence, or
//     Unreachable.  Errors never reach the caller.
//
// Callers that must tell "missing" apart from "database down" use the
// Lookup* methods, which return (value, error) and do not log.
//
// Notes
// -----
//   - Enumerations are iter.Seq values.  Each range re-runs the query, so a
//     sequence can be consumed any number of times.
//   - Enumerations are bounded only by the caller's context; point
//     operations also get Store's per-operation timeout.
package store

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/moby/internal/metrics"
)

// DefaultTimeout bounds every point operation, pool checkout included.
const DefaultTimeout = 5 * time.Second

// Connector hands out the shared pool.  *database.Manager satisfies it.
type Connector interface {
	Conn(ctx context.Context) (*sqlx.DB, error)
}

// Database is the contract the command layer depends on.
type Database interface {
	AddGuild(ctx context.Context, guildID uint64) bool
	RemoveGuild(ctx context.Context, guildID uint64) bool
	GuildInfo(ctx context.Context, guildID uint64) GuildRecord
	AllGuilds(ctx context.Context) iter.Seq[GuildRecord]
	Prefix(ctx context.Context, guildID uint64) (string, bool)
	SetPrefix(ctx context.Context, guildID uint64, prefix string) bool
	Repeat(ctx context.Context, guildID uint64) bool
	SetRepeat(ctx context.Context, guildID uint64, enabled bool) bool

	AddUser(ctx context.Context, userID uint64) bool
	RemoveUser(ctx context.Context, userID uint64) bool
	AddScore(ctx context.Context, userID uint64, delta int64) bool
	UserInfo(ctx context.Context, userID uint64) UserRecord
	AllUsers(ctx context.Context) iter.Seq[UserRecord]

	PlaylistID(ctx context.Context, guildID uint64, name string) int64
	AddPlaylist(ctx context.Context, guildID uint64, name string) bool
	AddTrackToPlaylist(ctx context.Context, guildID uint64, name, trackURL string) bool
	RemoveTrackFromPlaylist(ctx context.Context, playlistID int64, position int) bool
	RemovePlaylist(ctx context.Context, guildID uint64, name string) bool
	RemoveAllPlaylists(ctx context.Context, guildID uint64) bool
	PlaylistTracks(ctx context.Context, playlistID int64) iter.Seq[string]
	AllPlaylistIDs(ctx context.Context, guildID uint64) iter.Seq[int64]
	Playlists(ctx context.Context, guildID uint64) iter.Seq[PlaylistRecord]

	Ping(ctx context.Context) time.Duration
}

var _ Database = (*Store)(nil)

// Store implements Database on MySQL.  Safe for concurrent use.
type Store struct {
	conn    Connector
	log     *zap.SugaredLogger
	timeout time.Duration
}

// New returns a Store.  A non-positive timeout selects DefaultTimeout and a
// nil logger discards output.
func New(conn Connector, log *zap.SugaredLogger, timeout time.Duration) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{conn: conn, log: log, timeout: timeout}
}

/*──────────────────────────── operation log ───────────────────────────────*/

// call tracks one operation from "executing" to its outcome.
type call struct {
	log   *zap.SugaredLogger
	name  string
	kv    []any
	start time.Time
}

func (s *Store) start(name string, kv ...any) *call {
	kv = append([]any{"op", name}, kv...)
	s.log.Debugw("executing "+name, kv...)
	return &call{log: s.log, name: name, kv: kv, start: time.Now()}
}

func (c *call) fields(extra ...any) []any {
	out := make([]any, 0, len(c.kv)+len(extra))
	out = append(out, c.kv...)
	return append(out, extra...)
}

func (c *call) finish(outcome string) {
	metrics.StoreOperations.WithLabelValues(c.name, outcome).Inc()
	metrics.StoreOperationDuration.WithLabelValues(c.name).Observe(time.Since(c.start).Seconds())
}

func (c *call) done(msg string, extra ...any) {
	c.finish(metrics.OutcomeOK)
	c.log.Debugw(msg, c.fields(extra...)...)
}

func (c *call) missing(msg string, extra ...any) {
	c.finish(metrics.OutcomeNotFound)
	c.log.Warnw(msg, c.fields(extra...)...)
}

func (c *call) failed(err error, msg string) {
	c.finish(metrics.OutcomeError)
	c.log.Errorw(msg, c.fields("err", err)...)
}

/*──────────────────────────── execution ───────────────────────────────────*/

// run executes fn against the pool within the operation timeout.
func (s *Store) run(ctx context.Context, fn func(context.Context, *sqlx.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	db, err := s.conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return fn(ctx, db)
}

// runTx executes fn inside one transaction.  Any error rolls back.
func (s *Store) runTx(ctx context.Context, fn func(context.Context, *sqlx.Tx) error) error {
	return s.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		if err := fn(ctx, tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

// stream returns a lazy sequence over the rows of q.  The query runs when
// the sequence is ranged and again on every later range.  A failure logs
// and ends the sequence early.
func stream[T any](s *Store, ctx context.Context, c func() *call, q string, args []any,
	scan func(*sqlx.Rows) (T, error)) iter.Seq[T] {
	return func(yield func(T) bool) {
		op := c()

		db, err := s.conn.Conn(ctx)
		if err != nil {
			op.failed(err, "failed to connect to database")
			return
		}
		rows, err := db.QueryxContext(ctx, q, args...)
		if err != nil {
			op.failed(err, "failed to query "+op.name)
			return
		}
		defer rows.Close()

		n := 0
		for rows.Next() {
			v, err := scan(rows)
			if err != nil {
				op.failed(err, "failed to scan "+op.name)
				return
			}
			n++
			if !yield(v) {
				op.done("stopped "+op.name+" early", "count", n)
				return
			}
		}
		if err := rows.Err(); err != nil {
			op.failed(err, "failed to read "+op.name)
			return
		}
		op.done("returned "+op.name, "count", n)
	}
}

func scanStruct[T any](r *sqlx.Rows) (T, error) {
	var v T
	err := r.StructScan(&v)
	return v, err
}

func scanValue[T any](r *sqlx.Rows) (T, error) {
	var v T
	err := r.Scan(&v)
	return v, err
}
