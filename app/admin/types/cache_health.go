package types

import (
	"context"
	"time"

	"github.com/orca-so/sedimentology/pkg/temporal"
	"github.com/puzpuzpuz/xsync/v4"
)

// HealthCacheTTL bounds how often the status page calls DescribeTaskQueue.
const HealthCacheTTL = 30 * time.Second

const temporalHealthKey = "temporal"

type CachedHealth struct {
	Temporal temporal.Health
	Fetched  time.Time
}

// NewHealthCache creates a new health cache
func NewHealthCache() *xsync.Map[string, CachedHealth] {
	return xsync.NewMap[string, CachedHealth]()
}

// TemporalHealth returns the cached Temporal health, refreshing it once the
// entry is older than HealthCacheTTL.
func (a *App) TemporalHealth(ctx context.Context) temporal.Health {
	if a.Temporal == nil {
		return temporal.Health{}
	}
	if a.HealthCache == nil {
		return a.Temporal.Health(ctx)
	}
	if cached, ok := a.HealthCache.Load(temporalHealthKey); ok && time.Since(cached.Fetched) < HealthCacheTTL {
		return cached.Temporal
	}
	h := a.Temporal.Health(ctx)
	a.HealthCache.Store(temporalHealthKey, CachedHealth{Temporal: h, Fetched: time.Now()})
	return h
}
