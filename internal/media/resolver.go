package media

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	// provider download URLs expire after about five minutes
	resolvedTTL = 4 * time.Minute
	failedTTL   = 15 * time.Minute
)

type URLFetcher interface {
	RetrieveMediaURL(ctx context.Context, mediaID string) (string, error)
}

// Resolver looks up attachment URLs without ever waiting longer than its timeout.
type Resolver struct {
	timeout  time.Duration
	resolved *cache.Cache
	failed   *cache.Cache
	log      *zap.Logger
}

func NewResolver(timeout time.Duration, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		timeout:  timeout,
		resolved: cache.New(resolvedTTL, 10*time.Minute),
		failed:   cache.New(failedTTL, failedTTL),
		log:      log,
	}
}

type fetchResult struct {
	url string
	err error
}

// Resolve returns the media URL, or "" when the fetch failed or lost the race
// against the timeout. The losing fetch is cancelled and its result dropped.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, fetcher URLFetcher, mediaID string) string {
	if mediaID == "" {
		return ""
	}

	key := tenantID + ":" + mediaID
	if url, ok := r.resolved.Get(key); ok {
		return url.(string)
	}
	if _, ok := r.failed.Get(key); ok {
		return ""
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make(chan fetchResult, 1)
	go func() {
		url, err := fetcher.RetrieveMediaURL(fetchCtx, mediaID)
		result <- fetchResult{url: url, err: err}
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	log := r.log.With(zap.String("tenant_id", tenantID), zap.String("media_id", mediaID))

	select {
	case res := <-result:
		if res.err != nil || res.url == "" {
			log.Warn("media url not resolved", zap.Error(res.err))
			r.failed.Set(key, true, cache.DefaultExpiration)
			return ""
		}
		r.resolved.Set(key, res.url, cache.DefaultExpiration)
		return res.url
	case <-timer.C:
		log.Warn("media url fetch timed out", zap.Duration("timeout", r.timeout))
		r.failed.Set(key, true, cache.DefaultExpiration)
		return ""
	case <-ctx.Done():
		return ""
	}
}
