package fact

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yanizio/moby/internal/metrics"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func factServer(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestTodayCachesForADay(t *testing.T) {
	var hits atomic.Int32
	texts := []string{"Blue whales are the loudest animals.", "Octopuses have three hearts."}
	url := factServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text": "` + texts[(n-1)%2] + `"}`))
	})

	clk := &clock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	p := New(url, Options{Clock: clk.Now}, nil)
	ctx := context.Background()

	first, err := p.Today(ctx)
	if err != nil || first != texts[0] {
		t.Fatalf("Today = %q, %v", first, err)
	}
	clk.Advance(23*time.Hour + 59*time.Minute)
	if again, _ := p.Today(ctx); again != first {
		t.Fatalf("fact changed within the day: %q", again)
	}
	clk.Advance(time.Minute)
	next, err := p.Today(ctx)
	if err != nil || next != texts[1] {
		t.Fatalf("Today after a day = %q, %v", next, err)
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("upstream hit %d times, want 2", n)
	}
}

func TestTodayServesStaleFactOnFailure(t *testing.T) {
	var fail atomic.Bool
	url := factServer(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"text":"Sloths can hold their breath for 40 minutes."}`))
	})

	clk := &clock{t: time.Now()}
	p := New(url, Options{Clock: clk.Now}, nil)
	ctx := context.Background()
	if _, err := p.Today(ctx); err != nil {
		t.Fatal(err)
	}

	before := testutil.ToFloat64(metrics.FactRefreshErrors)
	fail.Store(true)
	clk.Advance(25 * time.Hour)

	got, err := p.Today(ctx)
	if err == nil {
		t.Fatalf("Today hid the refresh failure")
	}
	if got != "Sloths can hold their breath for 40 minutes." {
		t.Fatalf("Today = %q, want yesterday's fact", got)
	}
	if d := testutil.ToFloat64(metrics.FactRefreshErrors) - before; d != 1 {
		t.Errorf("refresh error counter moved by %v", d)
	}
}

func TestTodayRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	url := factServer(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"text":"Honey never spoils."}`))
	})

	p := New(url, Options{RetryMax: 2, RetryWait: time.Millisecond}, nil)
	got, err := p.Today(context.Background())
	if err != nil || got != "Honey never spoils." {
		t.Fatalf("Today = %q, %v", got, err)
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("upstream hit %d times, want 2", n)
	}
}

func TestTodayRejectsBlankFact(t *testing.T) {
	url := factServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"   "}`))
	})
	p := New(url, Options{}, nil)
	if _, err := p.Today(context.Background()); !errors.Is(err, ErrEmpty) {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}
}

func TestTodayDisabled(t *testing.T) {
	p := New("", Options{}, nil)
	if _, err := p.Today(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}
