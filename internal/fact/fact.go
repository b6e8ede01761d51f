// Package fact serves the fact of the day.
//
// The fact is fetched from a JSON endpoint returning {"text": "..."} and
// kept for a day.  The first read after expiry refetches it; a failed
// refetch keeps serving yesterday's fact and reports the error.  Transient
// upstream failures are retried by go-retryablehttp.
package fact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/yanizio/moby/internal/cache"
	"github.com/yanizio/moby/internal/metrics"
)

// DefaultTTL is how long one fact is served.
const DefaultTTL = 24 * time.Hour

// maxBody caps the response we are willing to decode.
const maxBody = 64 << 10

var (
	// ErrDisabled is returned when no source URL is configured.
	ErrDisabled = errors.New("fact of the day is disabled")
	// ErrEmpty is returned when the source answers with a blank fact.
	ErrEmpty = errors.New("empty fact")
)

// Options tunes a Provider.  Zero values pick sensible defaults.
type Options struct {
	TTL        time.Duration
	Clock      cache.Clock
	RetryMax   int
	RetryWait  time.Duration
	HTTPClient *http.Client
}

// Provider is safe for concurrent use.
type Provider struct {
	url    string
	client *retryablehttp.Client
	cached *cache.Expiring[string]
	log    *zap.SugaredLogger
}

// New returns a Provider for url.  An empty url yields a Provider whose
// Today always fails with ErrDisabled.
func New(url string, opts Options, log *zap.SugaredLogger) *Provider {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 500 * time.Millisecond
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = opts.RetryWait
	rc.RetryWaitMax = 4 * opts.RetryWait
	rc.Logger = leveled{log}
	if opts.HTTPClient != nil {
		rc.HTTPClient = opts.HTTPClient
	} else {
		rc.HTTPClient.Timeout = 10 * time.Second
	}

	p := &Provider{url: url, client: rc, log: log}
	p.cached = cache.NewExpiring(opts.TTL, opts.Clock, p.fetch)
	return p
}

// Today returns the current fact of the day.
func (p *Provider) Today(ctx context.Context) (string, error) {
	if p.url == "" {
		return "", ErrDisabled
	}
	return p.cached.Get(ctx)
}

// FetchedAt reports when the current fact was loaded.
func (p *Provider) FetchedAt() (time.Time, bool) { return p.cached.FetchedAt() }

type payload struct {
	Text string `json:"text"`
}

func (p *Provider) fetch(ctx context.Context) (string, error) {
	p.log.Debugw("fetching fact of the day", "url", p.url)

	text, err := p.get(ctx)
	if err != nil {
		metrics.FactRefreshErrors.Inc()
		p.log.Warnw("failed to fetch fact of the day", "url", p.url, "err", err)
		return "", err
	}
	p.log.Infow("fact of the day refreshed", "chars", len(text))
	return text, nil
}

func (p *Provider) get(ctx context.Context) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get fact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get fact: unexpected status %s", resp.Status)
	}

	var body payload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode fact: %w", err)
	}
	text := strings.TrimSpace(body.Text)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// leveled adapts zap to retryablehttp.LeveledLogger.
type leveled struct{ s *zap.SugaredLogger }

func (l leveled) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
func (l leveled) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l leveled) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
