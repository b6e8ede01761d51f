// Package database centralises sqlx connection helpers for the Moby state
// store.  The driver is go-sql-driver/mysql, which also works with MariaDB.
//
// Public entry points:
//
//	Open(dsn)                        – quick helper with the default pool policy.
//	OpenWithOptions(ctx, dsn, opts)  – fine-grained control plus connect retries.
//	NewManager(dsn, opts, log)       – lazily opened, shared pool used by the store.
//
// Pool policy
// -----------
// One process-wide pool replaces the single shared connection the bot used
// to reopen on demand.  Checkout blocks until a connection is free, bounded
// only by the caller's context; the store wraps every operation in its own
// timeout.  Connections are recycled after ConnMaxLifetime and idle ones are
// dropped after ConnMaxIdleTime.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Options tunes a pool.  Zero fields fall back to DefaultOptions.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Retries         int
	RetryBackoff    time.Duration
}

// DefaultOptions is the pool policy used by Open: 15 max open, 5 idle, a
// 30-minute connection lifetime, and no connect retries.
var DefaultOptions = Options{
	MaxOpenConns:    15,
	MaxIdleConns:    5,
	ConnMaxLifetime: 30 * time.Minute,
	ConnMaxIdleTime: 5 * time.Minute,
}

func (o Options) withDefaults() Options {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = DefaultOptions.MaxOpenConns
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = DefaultOptions.MaxIdleConns
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = DefaultOptions.ConnMaxLifetime
	}
	if o.ConnMaxIdleTime <= 0 {
		o.ConnMaxIdleTime = DefaultOptions.ConnMaxIdleTime
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	return o
}

// WithPassword returns dsn with its password replaced.  An empty password
// leaves dsn untouched.  parseTime is always enabled.
func WithPassword(dsn, password string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	if password != "" {
		cfg.Passwd = password
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// Open returns a pinged *sqlx.DB with the default pool policy.
func Open(dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(context.Background(), dsn, DefaultOptions)
}

// OpenWithOptions opens a pool, applies opts, and pings it.  A failed ping
// is retried opts.Retries times with opts.RetryBackoff between attempts.
// The pool is closed again when every attempt fails.
func OpenWithOptions(ctx context.Context, dsn string, opts Options) (*sqlx.DB, error) {
	opts = opts.withDefaults()

	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	for attempt := 0; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		if attempt >= opts.Retries {
			break
		}
		if !sleep(ctx, opts.RetryBackoff) {
			err = ctx.Err()
			break
		}
	}

	_ = db.Close()
	return nil, fmt.Errorf("ping mysql: %w", err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
