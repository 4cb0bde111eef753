package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/refsnap/internal/cache"
	"github.com/sells-group/refsnap/internal/config"
	"github.com/sells-group/refsnap/internal/fetcher"
	"github.com/sells-group/refsnap/internal/resilience"
	"github.com/sells-group/refsnap/internal/snapshot"
)

// initFetcher builds the justETF fetcher from config, with an optional
// cache mode override from the command line. The returned closer is nil
// when the cache is disabled.
func initFetcher(ctx context.Context, cacheModeOverride string) (*fetcher.HTTPFetcher, func() error, error) {
	modeStr := cfg.JustETF.Cache.Mode
	if cacheModeOverride != "" {
		modeStr = cacheModeOverride
	}
	mode, err := cache.ParseMode(modeStr)
	if err != nil {
		return nil, nil, err
	}

	var store *cache.Store
	var closer func() error
	if mode != cache.ModeOff && cfg.JustETF.Cache.Path != "" {
		store, err = openCache(ctx, cfg.JustETF.Cache)
		if err != nil {
			return nil, nil, err
		}
		closer = store.Close
	}

	f := fetcher.New(fetcher.Options{
		Source:            "justetf",
		UserAgent:         cfg.HTTP.UserAgent,
		Timeout:           time.Duration(cfg.HTTP.TimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Retry:             retryConfig(),
		Cache:             store,
		Policy: cache.Policy{
			Mode:         mode,
			TTL:          time.Duration(cfg.JustETF.Cache.TTLHours) * time.Hour,
			BucketFormat: cfg.JustETF.Cache.BucketFormat,
		},
	})
	return f, closer, nil
}

// initFirdsFetcher builds the FCA registry fetcher. FIRDS queries are
// not cached: the registry is cheap to hit and its results change daily.
func initFirdsFetcher() *fetcher.HTTPFetcher {
	return fetcher.New(fetcher.Options{
		Source:            "fca_firds",
		UserAgent:         cfg.HTTP.UserAgent,
		Timeout:           time.Duration(cfg.HTTP.TimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Retry:             retryConfig(),
	})
}

func openCache(ctx context.Context, c config.CacheConfig) (*cache.Store, error) {
	store, err := cache.Open(c.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, eris.Wrap(err, "open cache")
	}
	return store, nil
}

func retryConfig() resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if cfg.HTTP.MaxRetries > 0 {
		rc.MaxAttempts = cfg.HTTP.MaxRetries
	}
	return rc
}

// Each artifact root tracks its own latest pointer, so profiles and the
// profile index get separate stores. The run log lives under the
// profiles root alongside the records it describes.

func profilesStore() *snapshot.Store {
	return snapshot.NewStore(profilesRoot())
}

func indexStore() *snapshot.Store {
	return snapshot.NewStore(filepath.Join(cfg.Storage.BasePath, "profile_index"))
}

func profilesRoot() string {
	return filepath.Join(cfg.Storage.BasePath, "profiles")
}
