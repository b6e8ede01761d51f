package store

import (
	"context"
	"math"
	"time"

	"github.com/yanizio/moby/internal/metrics"
)

// Unreachable is what Ping returns when the database cannot be reached.
const Unreachable = time.Duration(math.MaxInt64)

// Ping measures how long it takes to obtain the pool and round-trip a ping.
// Any failure yields Unreachable.
func (s *Store) Ping(ctx context.Context) time.Duration {
	c := s.start("Ping")

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	began := time.Now()
	db, err := s.conn.Conn(ctx)
	if err == nil {
		err = db.PingContext(ctx)
	}
	elapsed := time.Since(began)

	if err != nil {
		metrics.StoreUp.Set(0)
		c.failed(err, "failed to connect to database")
		return Unreachable
	}
	metrics.StoreUp.Set(1)
	metrics.StorePingSeconds.Set(elapsed.Seconds())
	c.done("pinged database", "elapsed", elapsed)
	return elapsed
}
