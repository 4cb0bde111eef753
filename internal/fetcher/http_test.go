package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/refsnap/internal/cache"
	"github.com/sells-group/refsnap/internal/resilience"
	"github.com/sells-group/refsnap/internal/snapshot"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func testCache(t *testing.T) *cache.Store {
	t.Helper()
	st, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestGet_StampsProvenance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>profile</html>"))
	}))
	defer srv.Close()

	f := New(Options{
		Source:            "justetf",
		RequestsPerSecond: 1000,
		Retry:             fastRetry(),
		Policy:            cache.Policy{BucketFormat: "2025-10-30"},
	})

	body, prov, err := f.Get(context.Background(), "profile_html", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>profile</html>", string(body))

	require.NotNil(t, prov)
	assert.Equal(t, "justetf", prov.Source)
	assert.Equal(t, "profile_html", prov.Kind)
	assert.Equal(t, "2025-10-30", prov.Bucket)
	assert.Equal(t, int64(len(body)), prov.SizeBytes)
	assert.NotEmpty(t, prov.ResponseID)
	assert.True(t, prov.Verify(body))
	assert.False(t, prov.Verify([]byte("tampered")))
}

func TestGet_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Options{Source: "justetf", RequestsPerSecond: 1000, Retry: fastRetry()})
	body, _, err := f.Get(context.Background(), "profile_html", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_NoRetryOnPermanentStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Options{Source: "justetf", RequestsPerSecond: 1000, Retry: fastRetry()})
	_, _, err := f.Get(context.Background(), "profile_html", srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_CacheHitSkipsUpstream(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := New(Options{
		Source:            "justetf",
		RequestsPerSecond: 1000,
		Retry:             fastRetry(),
		Cache:             testCache(t),
		Policy:            cache.Policy{Mode: cache.ModeDefault, BucketFormat: "2025-10-30"},
	})

	ctx := context.Background()
	first, prov1, err := f.Get(ctx, "profile_html", srv.URL)
	require.NoError(t, err)
	second, prov2, err := f.Get(ctx, "profile_html", srv.URL)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "second fetch must be served from cache")
	assert.Equal(t, first, second)
	assert.Equal(t, prov1.ResponseID, prov2.ResponseID)
	assert.Equal(t, prov1.Checksum, prov2.Checksum)
}

func TestGet_RefreshModeAlwaysFetches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := New(Options{
		Source:            "justetf",
		RequestsPerSecond: 1000,
		Retry:             fastRetry(),
		Cache:             testCache(t),
		Policy:            cache.Policy{Mode: cache.ModeRefresh, BucketFormat: "2025-10-30"},
	})

	ctx := context.Background()
	_, _, err := f.Get(ctx, "profile_html", srv.URL)
	require.NoError(t, err)
	_, _, err = f.Get(ctx, "profile_html", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_ReadonlyMissFails(t *testing.T) {
	f := New(Options{
		Source: "justetf",
		Retry:  fastRetry(),
		Cache:  testCache(t),
		Policy: cache.Policy{Mode: cache.ModeReadonly, BucketFormat: "2025-10-30"},
	})

	_, _, err := f.Get(context.Background(), "profile_html", "https://example.invalid/p")
	require.Error(t, err)
}

func TestFetch_DelegatesWithProfileKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html/>"))
	}))
	defer srv.Close()

	f := New(Options{Source: "justetf", RequestsPerSecond: 1000, Retry: fastRetry()})
	var _ interface {
		Fetch(ctx context.Context, isin, url string) ([]byte, *snapshot.Provenance, error)
	} = f

	_, prov, err := f.Fetch(context.Background(), "IE00B4L5Y983", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "profile_html", prov.Kind)
}
