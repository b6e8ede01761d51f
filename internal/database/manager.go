package database

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by Conn after Close.
var ErrClosed = errors.New("database manager closed")

// DefaultOpenTimeout bounds one shared open attempt, retries included.
const DefaultOpenTimeout = 30 * time.Second

// OpenFunc opens and verifies a pool.  NewManager uses OpenWithOptions;
// tests inject a function returning an sqlmock-backed pool.
type OpenFunc func(ctx context.Context) (*sqlx.DB, error)

// Manager owns the store's single lazily opened pool.  The pool moves from
// closed to open on the first Conn call and back to closed only when an
// open attempt fails or Close is called.  Safe for concurrent use.
//
// Concurrent callers that find the pool closed share one open attempt.
// Each of them waits for it only as long as its own context allows.
type Manager struct {
	open        OpenFunc
	openTimeout time.Duration
	log         *zap.SugaredLogger
	sfg         singleflight.Group

	mu     sync.Mutex
	db     *sqlx.DB
	closed bool
}

// NewManager returns a Manager that opens dsn with opts on demand.
func NewManager(dsn string, opts Options, log *zap.SugaredLogger) *Manager {
	return NewManagerFunc(func(ctx context.Context) (*sqlx.DB, error) {
		return OpenWithOptions(ctx, dsn, opts)
	}, log)
}

// NewManagerFunc returns a Manager backed by a custom opener.
func NewManagerFunc(open OpenFunc, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{open: open, openTimeout: DefaultOpenTimeout, log: log}
}

// Conn guarantees a usable pool before any statement executes.  When the
// pool is closed it is opened now.  A failed open is logged, nothing is
// cached, and the error is returned so the next call retries.  Waiting for
// an open in progress ends with ctx.Err() when ctx is done first.
func (m *Manager) Conn(ctx context.Context) (*sqlx.DB, error) {
	if db, err := m.current(); db != nil || err != nil {
		return db, err
	}

	// The attempt outlives any single caller: it keeps ctx's values but
	// not its deadline, and is bounded by openTimeout instead.
	openCtx := context.WithoutCancel(ctx)
	ch := m.sfg.DoChan("open", func() (any, error) {
		return m.connect(openCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*sqlx.DB), nil
	}
}

// current returns the open pool, ErrClosed, or (nil, nil) when an open is
// needed.
func (m *Manager) current() (*sqlx.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.db, nil
}

func (m *Manager) connect(ctx context.Context) (*sqlx.DB, error) {
	if db, err := m.current(); db != nil || err != nil {
		return db, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.openTimeout)
	defer cancel()

	m.log.Debugw("connecting to database")
	db, err := m.open(ctx)
	if err != nil {
		m.log.Errorw("failed to connect to database", "err", err)
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		_ = db.Close()
		return nil, ErrClosed
	}
	m.db = db
	m.log.Debugw("connected to database")
	return db, nil
}

// Connected reports whether a pool is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db != nil
}

// Close releases the pool.  Later Conn calls fail with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}
