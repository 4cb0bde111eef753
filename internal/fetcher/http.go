// Package fetcher downloads upstream payloads with politeness rate
// limiting, bounded retries, and provenance stamping. All fetches flow
// through the response cache according to the configured cache policy.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/refsnap/internal/cache"
	"github.com/sells-group/refsnap/internal/resilience"
	"github.com/sells-group/refsnap/internal/snapshot"
)

// maxBodyBytes bounds a single response body (profile pages are ~1MB).
const maxBodyBytes = 32 << 20

// Options configures the HTTP fetcher.
type Options struct {
	// Source names the upstream for provenance and cache keys (e.g.
	// "justetf").
	Source string

	UserAgent string
	Timeout   time.Duration

	// RequestsPerSecond throttles outbound requests. Zero means 1 rps.
	RequestsPerSecond float64

	Retry resilience.RetryConfig

	// Cache is the response cache; nil disables caching regardless of
	// Policy.
	Cache  *cache.Store
	Policy cache.Policy
}

// HTTPFetcher implements the fetch collaborator over net/http.
type HTTPFetcher struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// New creates an HTTPFetcher with the given options.
func New(opts Options) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "refsnap/1.0 (+https://github.com/sells-group/refsnap)"
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Fetch downloads one entity's profile page. Implements the batch
// orchestrator's fetch contract. The ISIN is informational only; the URL
// is authoritative.
func (f *HTTPFetcher) Fetch(ctx context.Context, _, url string) ([]byte, *snapshot.Provenance, error) {
	return f.Get(ctx, "profile_html", url)
}

// Get downloads url, consulting the response cache per the configured
// policy, and returns the payload with its provenance.
func (f *HTTPFetcher) Get(ctx context.Context, kind, url string) ([]byte, *snapshot.Provenance, error) {
	bucket := f.opts.Policy.ResolveBucket()
	mode := f.opts.Policy.Mode
	if mode == "" {
		mode = cache.ModeDefault
	}
	useCache := f.opts.Cache != nil && mode != cache.ModeOff

	if useCache && mode != cache.ModeRefresh {
		entry, err := f.opts.Cache.Get(ctx, f.opts.Source, kind, url, bucket)
		if err != nil {
			return nil, nil, err
		}
		if entry.Fresh(f.opts.Policy.TTL, time.Now().UTC()) {
			zap.L().Debug("cache hit",
				zap.String("source", f.opts.Source),
				zap.String("kind", kind),
				zap.String("url", url),
				zap.String("bucket", bucket),
			)
			return entry.Body, f.provenance(entry.ID, kind, url, entry.Checksum, entry.CreatedAt, entry.SizeBytes, bucket), nil
		}
		if mode == cache.ModeReadonly {
			return nil, nil, eris.Errorf("fetcher: readonly cache has no fresh entry for %s %s (bucket %s)", kind, url, bucket)
		}
	}
	if mode == cache.ModeReadonly && !useCache {
		return nil, nil, eris.New("fetcher: readonly cache mode requires a cache store")
	}

	body, err := resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) ([]byte, error) {
		return f.doRequest(ctx, url)
	})
	if err != nil {
		return nil, nil, err
	}

	checksum := snapshot.ChecksumBytes(body)
	responseID := uuid.New().String()
	createdAt := time.Now().UTC()

	if useCache {
		entry, err := f.opts.Cache.Put(ctx, f.opts.Source, kind, url, bucket, checksum, body)
		if err != nil {
			// The payload is already in hand; a cache write failure is not
			// worth failing the fetch over.
			zap.L().Warn("cache write failed", zap.String("url", url), zap.Error(err))
		} else {
			responseID = entry.ID
			createdAt = entry.CreatedAt
		}
	}

	return body, f.provenance(responseID, kind, url, checksum, createdAt, int64(len(body)), bucket), nil
}

func (f *HTTPFetcher) doRequest(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: build request for %s", url)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: GET %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("fetcher: GET %s: unexpected status %d", url, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read body of %s", url)
	}
	return body, nil
}

func (f *HTTPFetcher) provenance(responseID, kind, url, checksum string, createdAt time.Time, size int64, bucket string) *snapshot.Provenance {
	return &snapshot.Provenance{
		ResponseID: responseID,
		RequestID:  uuid.New().String(),
		Source:     f.opts.Source,
		Kind:       kind,
		URL:        url,
		Checksum:   checksum,
		CreatedAt:  createdAt,
		SizeBytes:  size,
		Bucket:     bucket,
		CacheMode:  string(f.opts.Policy.Mode),
		TTLSeconds: f.opts.Policy.TTL.Seconds(),
	}
}
