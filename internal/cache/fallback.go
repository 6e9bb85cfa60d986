package cache

import (
	"context"
	"time"

	"fundingboard/logger"
)

// Fallback reads and writes through primary and uses secondary whenever
// primary fails. Errors from primary are logged, never returned.
type Fallback struct {
	primary   Cache
	secondary Cache
	log       *logger.Entry
}

// NewFallback wraps primary with secondary.
func NewFallback(primary, secondary Cache, log *logger.Log) *Fallback {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fallback{primary: primary, secondary: secondary, log: log.WithComponent("chart_cache")}
}

func (f *Fallback) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := f.primary.Get(ctx, key)
	if err == nil {
		return data, ok, nil
	}
	f.log.WithError(err).Warn("primary cache get failed; using fallback")
	return f.secondary.Get(ctx, key)
}

func (f *Fallback) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := f.primary.Set(ctx, key, data, ttl); err != nil {
		f.log.WithError(err).Warn("primary cache set failed; using fallback")
		return f.secondary.Set(ctx, key, data, ttl)
	}
	return nil
}
