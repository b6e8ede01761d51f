package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"math"

	"github.com/jmoiron/sqlx"
)

const userColumns = `id, user_id, score`

// AddUser records a user with score 0.  A user that is already recorded is
// logged and reported as false.
func (s *Store) AddUser(ctx context.Context, userID uint64) bool {
	c := s.start("AddUser", "user_id", userID)

	err := s.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		const q = `INSERT INTO users (user_id, score) VALUES (?, 0)`
		_, err := db.ExecContext(ctx, q, userID)
		return classify(err)
	})
	if err != nil {
		c.failed(err, "failed to add user")
		return false
	}
	c.done("added user")
	return true
}

// RemoveUser deletes the user row.  Users own no other rows.
func (s *Store) RemoveUser(ctx context.Context, userID uint64) bool {
	c := s.start("RemoveUser", "user_id", userID)

	err := s.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		const q = `DELETE FROM users WHERE user_id = ?`
		_, err := db.ExecContext(ctx, q, userID)
		return err
	})
	if err != nil {
		c.failed(err, "failed to remove user")
		return false
	}
	c.done("removed user")
	return true
}

// AddScore adds delta to the user's score, recording the user first when
// it is unknown.  The sum saturates at the int64 bounds.  The row is locked
// for the read-modify-write so concurrent calls do not lose updates.
func (s *Store) AddScore(ctx context.Context, userID uint64, delta int64) bool {
	c := s.start("AddScore", "user_id", userID, "delta", delta)

	var score int64
	err := s.runTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		const ensure = `INSERT IGNORE INTO users (user_id, score) VALUES (?, 0)`
		if _, err := tx.ExecContext(ctx, ensure, userID); err != nil {
			return fmt.Errorf("ensure user: %w", err)
		}

		const read = `SELECT score FROM users WHERE user_id = ? FOR UPDATE`
		var current int64
		if err := tx.GetContext(ctx, &current, read, userID); err != nil {
			return fmt.Errorf("read score: %w", err)
		}

		score = saturatingAdd(current, delta)

		const write = `UPDATE users SET score = ? WHERE user_id = ?`
		if _, err := tx.ExecContext(ctx, write, score, userID); err != nil {
			return fmt.Errorf("write score: %w", err)
		}
		return nil
	})
	if err != nil {
		c.failed(err, "failed to update score")
		return false
	}
	c.done("updated score", "score", score)
	return true
}

// saturatingAdd returns a+b clamped to [math.MinInt64, math.MaxInt64].
func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

// LookupUser returns the user row or ErrNotFound.
func (s *Store) LookupUser(ctx context.Context, userID uint64) (UserRecord, error) {
	var rec UserRecord
	err := s.run(ctx, func(ctx context.Context, db *sqlx.DB) error {
		const q = `SELECT ` + userColumns + ` FROM users WHERE user_id = ? LIMIT 1`
		return db.GetContext(ctx, &rec, q, userID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return UserRecord{}, ErrNotFound
	}
	if err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

// UserInfo returns the user row, or EmptyUser when it is missing or the
// read fails.
func (s *Store) UserInfo(ctx context.Context, userID uint64) UserRecord {
	c := s.start("UserInfo", "user_id", userID)

	rec, err := s.LookupUser(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		c.missing("user not found")
		return EmptyUser()
	case err != nil:
		c.failed(err, "failed to get user info")
		return EmptyUser()
	}
	c.done("returned user info")
	return rec
}

// AllUsers lazily scans every user row in id order.
func (s *Store) AllUsers(ctx context.Context) iter.Seq[UserRecord] {
	const q = `SELECT ` + userColumns + ` FROM users ORDER BY id`
	return stream(s, ctx, func() *call { return s.start("AllUsers") }, q, nil, scanStruct[UserRecord])
}
