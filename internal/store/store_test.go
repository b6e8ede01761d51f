// internal/store/store_test.go
//
// Shared fixtures plus tests for the operation log, metrics, and Ping.
//
// Every store test runs against sqlmock with ordered expectations, so a
// test also proves which statements an operation issues and in what order.
//
// Run: go test ./internal/store -v

package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yanizio/moby/internal/metrics"
)

// staticConn always hands out the same pool.
type staticConn struct{ db *sqlx.DB }

func (c staticConn) Conn(context.Context) (*sqlx.DB, error) { return c.db, nil }

// downConn simulates an unreachable database.
type downConn struct{ err error }

func (c downConn) Conn(context.Context) (*sqlx.DB, error) { return nil, c.err }

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, *observer.ObservedLogs) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	s := New(staticConn{sqlx.NewDb(mockDB, "mysql")}, zap.New(core).Sugar(), time.Second)
	return s, mock, logs
}

func newDownStore(t *testing.T) (*Store, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	s := New(downConn{errors.New("dial tcp 127.0.0.1:3306: connection refused")},
		zap.New(core).Sugar(), time.Second)
	return s, logs
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func q(s string) string { return regexp.QuoteMeta(s) }

/*──────────────────────────── operation log ───────────────────────────────*/

func TestOperationLogsAttemptAndOutcome(t *testing.T) {
	s, mock, logs := newTestStore(t)

	mock.ExpectExec(q(`INSERT INTO guilds (guild_id, prefix, repeat_enabled) VALUES (?, '', FALSE)`)).
		WithArgs(uint64(42)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if !s.AddGuild(context.Background(), 42) {
		t.Fatalf("AddGuild = false, want true")
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}
	if entries[0].Message != "executing AddGuild" || entries[0].Level != zapcore.DebugLevel {
		t.Errorf("first entry = %q@%s", entries[0].Message, entries[0].Level)
	}
	if entries[1].Message != "added guild" {
		t.Errorf("second entry = %q", entries[1].Message)
	}
	if got := entries[1].ContextMap()["guild_id"]; got != uint64(42) {
		t.Errorf("guild_id field = %v, want 42", got)
	}
	expectationsMet(t, mock)
}

func TestOperationLogsFailureAtErrorLevel(t *testing.T) {
	s, logs := newDownStore(t)

	if s.AddUser(context.Background(), 7) {
		t.Fatalf("AddUser = true with database down")
	}

	failed := logs.FilterMessage("failed to add user").All()
	if len(failed) != 1 {
		t.Fatalf("got %d failure entries, want 1", len(failed))
	}
	if failed[0].Level != zapcore.ErrorLevel {
		t.Errorf("failure level = %s, want error", failed[0].Level)
	}
	if _, ok := failed[0].ContextMap()["err"]; !ok {
		t.Errorf("failure entry has no err field")
	}
}

func TestOperationMetrics(t *testing.T) {
	s, _ := newDownStore(t)

	before := testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("RemoveUser", metrics.OutcomeError))
	s.RemoveUser(context.Background(), 1)
	after := testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("RemoveUser", metrics.OutcomeError))

	if after-before != 1 {
		t.Fatalf("error counter moved by %v, want 1", after-before)
	}
}

/*──────────────────────────── Ping ────────────────────────────────────────*/

func TestPing(t *testing.T) {
	s, mock, _ := newTestStore(t)

	got := s.Ping(context.Background())
	if got == Unreachable {
		t.Fatalf("Ping = Unreachable on a healthy pool")
	}
	if got < 0 {
		t.Fatalf("Ping = %v, want non-negative", got)
	}
	if v := testutil.ToFloat64(metrics.StoreUp); v != 1 {
		t.Errorf("moby_store_up = %v, want 1", v)
	}
	expectationsMet(t, mock)
}

func TestPingUnreachable(t *testing.T) {
	s, logs := newDownStore(t)

	if got := s.Ping(context.Background()); got != Unreachable {
		t.Fatalf("Ping = %v, want Unreachable", got)
	}
	if v := testutil.ToFloat64(metrics.StoreUp); v != 0 {
		t.Errorf("moby_store_up = %v, want 0", v)
	}
	if logs.FilterMessage("failed to connect to database").Len() != 1 {
		t.Errorf("missing failure log entry")
	}
}

func TestPingFailedRoundTrip(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer mockDB.Close()

	mock.ExpectPing().WillReturnError(errors.New("server has gone away"))

	s := New(staticConn{sqlx.NewDb(mockDB, "mysql")}, nil, time.Second)
	if got := s.Ping(context.Background()); got != Unreachable {
		t.Fatalf("Ping = %v, want Unreachable", got)
	}
	expectationsMet(t, mock)
}
