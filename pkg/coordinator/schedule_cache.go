package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/andreweacott/risegarden-exporter/pkg/garden"
	"github.com/patrickmn/go-cache"
)

// DefaultScheduleTTL is how long a fetched schedule is reused
const DefaultScheduleTTL = 5 * time.Minute

// ScheduleCache memoises light and pump schedules for a short TTL.
// Failed fetches are never cached.
type ScheduleCache struct {
	api   ScheduleAPI
	cache *cache.Cache
}

// NewScheduleCache creates a cache in front of api. A non-positive ttl
// uses DefaultScheduleTTL.
func NewScheduleCache(api ScheduleAPI, ttl time.Duration) *ScheduleCache {
	if ttl <= 0 {
		ttl = DefaultScheduleTTL
	}
	return &ScheduleCache{
		api:   api,
		cache: cache.New(ttl, 2*ttl),
	}
}

// LightSchedule returns the light schedule of a garden
func (s *ScheduleCache) LightSchedule(ctx context.Context, gardenID int64) (garden.Document, error) {
	return s.lookup(ctx, "light", gardenID, s.api.LightSchedule)
}

// PumpSchedule returns the pump schedule of a garden
func (s *ScheduleCache) PumpSchedule(ctx context.Context, gardenID int64) (garden.Document, error) {
	return s.lookup(ctx, "pump", gardenID, s.api.PumpSchedule)
}

// Invalidate drops both cached schedules of a garden
func (s *ScheduleCache) Invalidate(gardenID int64) {
	s.cache.Delete(scheduleKey("light", gardenID))
	s.cache.Delete(scheduleKey("pump", gardenID))
}

func (s *ScheduleCache) lookup(
	ctx context.Context,
	kind string,
	gardenID int64,
	fetch func(context.Context, int64) (garden.Document, error),
) (garden.Document, error) {
	key := scheduleKey(kind, gardenID)
	if v, ok := s.cache.Get(key); ok {
		return v.(garden.Document), nil
	}

	doc, err := fetch(ctx, gardenID)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, doc)
	return doc, nil
}

func scheduleKey(kind string, gardenID int64) string {
	return fmt.Sprintf("%s:%d", kind, gardenID)
}
