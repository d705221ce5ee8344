package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andreweacott/risegarden-exporter/pkg/garden"
	"github.com/andreweacott/risegarden-exporter/pkg/logger"
	"github.com/andreweacott/risegarden-exporter/pkg/metrics"
	"gopkg.in/robfig/cron.v2"
)

// DefaultInterval is the fixed polling cadence
const DefaultInterval = 60 * time.Second

// ErrUpdateFailed wraps the cause of a failed poll cycle
var ErrUpdateFailed = errors.New("update failed")

// Coordinator polls the garden API on a fixed schedule and publishes the
// latest Snapshot. Poll cycles never overlap.
type Coordinator struct {
	api             GardenAPI
	interval        time.Duration
	log             *logger.Logger
	exporterMetrics *metrics.ExporterMetrics
	now             func() time.Time

	refreshMu sync.Mutex

	mu          sync.RWMutex
	snapshot    *Snapshot
	lastErr     error
	lastSuccess bool

	cron *cron.Cron
}

// New creates a Coordinator. A non-positive interval uses DefaultInterval.
func New(api GardenAPI, interval time.Duration, log *logger.Logger) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Coordinator{
		api:      api,
		interval: interval,
		log:      logger.OrDiscard(log),
		now:      time.Now,
	}
}

// WithExporterMetrics adds exporter health metrics to the coordinator
func (c *Coordinator) WithExporterMetrics(em *metrics.ExporterMetrics) *Coordinator {
	c.exporterMetrics = em
	return c
}

// Interval returns the polling cadence
func (c *Coordinator) Interval() time.Duration {
	return c.interval
}

// Snapshot returns the latest published snapshot, nil before the first
// successful cycle
func (c *Coordinator) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// LastUpdateSuccess reports whether the most recent cycle succeeded
func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

// LastError returns the error of the most recent cycle, if it failed
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Refresh runs one poll cycle: gardens list first, then device data. A
// failed gardens list fails the cycle and keeps the previous snapshot; a
// failed device data fetch publishes the list with no readings.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := time.Now()
	err := c.poll(ctx)
	if c.exporterMetrics != nil {
		c.exporterMetrics.RecordPollDuration(time.Since(start))
	}

	c.mu.Lock()
	c.lastErr = err
	c.lastSuccess = err == nil
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("Failed to update Rise Gardens data", "error", err.Error())
		if c.exporterMetrics != nil {
			c.exporterMetrics.IncrementPollErrors()
		}
	}
	return err
}

// RequestRefresh runs a cycle after a write so entities see the new state
func (c *Coordinator) RequestRefresh(ctx context.Context) error {
	return c.Refresh(ctx)
}

func (c *Coordinator) poll(ctx context.Context) error {
	list, err := c.api.ListGardens(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to fetch gardens list: %v", ErrUpdateFailed, err)
	}
	if list == nil {
		return fmt.Errorf("%w: empty gardens list response", ErrUpdateFailed)
	}

	data, err := c.api.GardensDeviceData(ctx)
	if err != nil {
		c.log.Warn("Device data unavailable, publishing gardens without readings", "error", err.Error())
	}
	if data == nil {
		data = garden.DeviceData{}
	}

	snap := &Snapshot{
		Gardens:    append([]garden.Garden(nil), list.Gardens...),
		DeviceData: data,
		FetchedAt:  c.now(),
	}

	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()

	c.log.Debug("Rise Gardens data updated", "gardens", len(snap.Gardens), "readings", len(snap.DeviceData))
	return nil
}

// Start schedules a poll every interval until Stop is called or ctx is
// done. It does not run an initial cycle.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return fmt.Errorf("coordinator already started")
	}

	sched := cron.New()
	if _, err := sched.AddFunc("@every "+c.interval.String(), func() {
		_ = c.Refresh(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule polling: %w", err)
	}
	sched.Start()
	c.cron = sched

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	c.log.Info("Polling scheduled", "interval", c.interval.String())
	return nil
}

// Stop cancels the polling schedule. It is safe to call more than once.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	sched := c.cron
	c.cron = nil
	c.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
}
