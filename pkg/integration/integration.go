// Package integration wires the token manager, garden client, coordinator
// and entities for one account entry, and tears them down again.
package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andreweacott/risegarden-exporter/pkg/auth"
	"github.com/andreweacott/risegarden-exporter/pkg/coordinator"
	"github.com/andreweacott/risegarden-exporter/pkg/entity"
	"github.com/andreweacott/risegarden-exporter/pkg/entrystore"
	"github.com/andreweacott/risegarden-exporter/pkg/garden"
	"github.com/andreweacott/risegarden-exporter/pkg/logger"
	"github.com/andreweacott/risegarden-exporter/pkg/metrics"
)

var (
	// ErrAuthFailed is returned when neither the stored refresh token nor
	// the password grant yields a session
	ErrAuthFailed = errors.New("failed to authenticate with Rise Gardens")
	// ErrSetupFailed is returned when the first poll cycle fails
	ErrSetupFailed = errors.New("failed to set up Rise Gardens")
	// ErrUnknownGarden is returned for a garden id without entities
	ErrUnknownGarden = errors.New("unknown garden")
	// ErrUnknownEntity is returned for an unknown entity unique id
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrUnloaded is returned once Unload has run
	ErrUnloaded = errors.New("integration unloaded")
)

// Options configures Setup
type Options struct {
	// TokenURL defaults to the Rise Gardens Auth0 tenant
	TokenURL string
	// APIBaseURL defaults to garden.DefaultBaseURL
	APIBaseURL string
	// HTTPClient is shared by the token manager and the garden client
	HTTPClient   *http.Client
	PollInterval time.Duration
	Breaker      coordinator.CircuitBreakerConfig
	ScheduleTTL  time.Duration
	Logger       *logger.Logger
	Metrics      *metrics.ExporterMetrics
}

// Integration is a set-up account entry
type Integration struct {
	store       *entrystore.Store
	tokens      *auth.TokenManager
	client      *garden.Client
	api         coordinator.GardenAPI
	coordinator *coordinator.Coordinator
	schedules   *coordinator.ScheduleCache
	log         *logger.Logger
	cancel      context.CancelFunc

	mu       sync.RWMutex
	entities *entity.Registry
	loaded   bool
}

// Setup authenticates, runs the first poll cycle, creates the entities and
// starts polling. When the entry holds a refresh token it is tried first.
// Every rotated refresh token is written back to store.
func Setup(ctx context.Context, store *entrystore.Store, opts Options) (*Integration, error) {
	log := logger.OrDiscard(opts.Logger)
	entry := store.Entry()

	tokens := auth.NewTokenManager(
		auth.Credentials{Username: entry.Username, Password: entry.Password},
		auth.Options{
			TokenURL:     opts.TokenURL,
			HTTPClient:   opts.HTTPClient,
			RefreshToken: entry.RefreshToken,
			Logger:       log,
			Metrics:      opts.Metrics,
		},
	)
	tokens.SetRotationCallback(func(refreshToken string) {
		if err := store.UpdateRefreshToken(refreshToken); err != nil {
			log.WithError(err).Error("Failed to persist rotated refresh token")
			return
		}
		log.Debug("Persisted rotated refresh token", "path", store.Path())
	})

	var ok bool
	if entry.RefreshToken != "" {
		ok = tokens.RefreshAccessToken(ctx)
	} else {
		ok = tokens.Authenticate(ctx)
	}
	if !ok {
		log.Error("Failed to authenticate with Rise Gardens")
		return nil, ErrAuthFailed
	}

	client := garden.NewClient(tokens, garden.Options{
		BaseURL:    opts.APIBaseURL,
		HTTPClient: opts.HTTPClient,
		Logger:     log,
	})

	api := coordinator.NewGardenAPIWithCircuitBreaker(client, opts.Breaker, log)
	coord := coordinator.New(api, opts.PollInterval, log).WithExporterMetrics(opts.Metrics)
	if err := coord.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSetupFailed, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := coord.Start(runCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrSetupFailed, err)
	}

	in := &Integration{
		store:       store,
		tokens:      tokens,
		client:      client,
		api:         api,
		coordinator: coord,
		schedules:   coordinator.NewScheduleCache(client, opts.ScheduleTTL),
		log:         log,
		cancel:      cancel,
		entities:    entity.Build(coord, client, coord, log),
		loaded:      true,
	}

	log.Info("Rise Gardens set up", "title", in.Title(), "entities", in.entities.Len())
	return in, nil
}

// Title names the entry after its gardens, e.g. "Rise Gardens (Kitchen, Office)"
func (in *Integration) Title() string {
	snap := in.coordinator.Snapshot()
	if snap == nil || len(snap.Gardens) == 0 {
		return "Rise Gardens"
	}
	names := make([]string, 0, len(snap.Gardens))
	for _, g := range snap.Gardens {
		name := g.Name
		if name == "" {
			name = "Unknown"
		}
		names = append(names, name)
	}
	return fmt.Sprintf("Rise Gardens (%s)", strings.Join(names, ", "))
}

// Coordinator returns the polling coordinator
func (in *Integration) Coordinator() *coordinator.Coordinator {
	return in.coordinator
}

// Authenticated reports whether the token manager holds an access token
func (in *Integration) Authenticated() bool {
	return in.tokens.Session().Authenticated()
}

// LastUpdateSuccess reports whether the most recent poll cycle succeeded
func (in *Integration) LastUpdateSuccess() bool {
	return in.coordinator.LastUpdateSuccess()
}

// CircuitBreakerState names the polling breaker state, "disabled" when off
func (in *Integration) CircuitBreakerState() string {
	return coordinator.BreakerState(in.api)
}

// Loaded reports whether Unload has not run yet
func (in *Integration) Loaded() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.loaded
}

// Entities returns every entity, none after Unload
func (in *Integration) Entities() []entity.Entity {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.entities == nil {
		return nil
	}
	return in.entities.All()
}

// Entity looks an entity up by unique id
func (in *Integration) Entity(uniqueID string) (entity.Entity, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if !in.loaded {
		return nil, ErrUnloaded
	}
	e, ok := in.entities.Get(uniqueID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, uniqueID)
	}
	return e, nil
}

// Light returns the light entity of a garden
func (in *Integration) Light(gardenID int64) (*entity.Light, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if !in.loaded {
		return nil, ErrUnloaded
	}
	l, ok := in.entities.Light(gardenID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGarden, gardenID)
	}
	return l, nil
}

// SetPump switches the pump of a garden and refreshes the snapshot
func (in *Integration) SetPump(ctx context.Context, gardenID int64, on bool) error {
	if _, err := in.Light(gardenID); err != nil {
		return err
	}
	if err := in.client.SetPump(ctx, gardenID, on); err != nil {
		in.log.WithGardenID(gardenID).WithError(err).Error("Failed to control pump")
		return err
	}
	in.schedules.Invalidate(gardenID)
	if err := in.coordinator.RequestRefresh(ctx); err != nil {
		in.log.WithGardenID(gardenID).WithError(err).Warn("Refresh after pump change failed")
	}
	return nil
}

// LightSchedule returns the cached light schedule of a garden
func (in *Integration) LightSchedule(ctx context.Context, gardenID int64) (garden.Document, error) {
	if _, err := in.Light(gardenID); err != nil {
		return nil, err
	}
	return in.schedules.LightSchedule(ctx, gardenID)
}

// PumpSchedule returns the cached pump schedule of a garden
func (in *Integration) PumpSchedule(ctx context.Context, gardenID int64) (garden.Document, error) {
	if _, err := in.Light(gardenID); err != nil {
		return nil, err
	}
	return in.schedules.PumpSchedule(ctx, gardenID)
}

// LastSensorData fetches the latest raw sensor dump of a garden
func (in *Integration) LastSensorData(ctx context.Context, gardenID int64) (garden.Document, error) {
	if _, err := in.Light(gardenID); err != nil {
		return nil, err
	}
	return in.client.LastSensorData(ctx, gardenID)
}

// Unload stops polling and drops the entities. It is safe to call more
// than once.
func (in *Integration) Unload() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.loaded {
		return
	}
	in.coordinator.Stop()
	in.cancel()
	in.entities = nil
	in.loaded = false
	in.log.Info("Rise Gardens unloaded")
}
