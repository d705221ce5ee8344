package entity

import (
	"context"
	"fmt"

	"github.com/andreweacott/risegarden-exporter/pkg/garden"
	"github.com/andreweacott/risegarden-exporter/pkg/logger"
)

// MaxBrightness is the top of the 0-255 brightness scale
const MaxBrightness = 255

// LightController sends light level commands to the API
type LightController interface {
	SetLightLevel(ctx context.Context, gardenID int64, level int) error
}

// Refresher runs a poll cycle on demand
type Refresher interface {
	RequestRefresh(ctx context.Context) error
}

// Light is the grow light of a garden
type Light struct {
	base
	api       LightController
	refresher Refresher
	log       *logger.Logger
}

// NewLight creates the light entity of g
func NewLight(source SnapshotSource, api LightController, refresher Refresher, g garden.Garden, log *logger.Logger) *Light {
	return &Light{
		base:      newBase(source, g, KindLight, "Light"),
		api:       api,
		refresher: refresher,
		log:       logger.OrDiscard(log),
	}
}

// BrightnessFromLevel maps a 0-100 level to 0-255, rounding half up
func BrightnessFromLevel(level int) int {
	level = clamp(level, 0, 100)
	return (level*MaxBrightness + 50) / 100
}

// LevelFromBrightness maps a 0-255 brightness to a level in 1-100
func LevelFromBrightness(brightness int) int {
	return clamp((200*brightness+MaxBrightness)/(2*MaxBrightness), 1, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (l *Light) level() (int, bool) {
	g, ok := l.garden()
	if !ok || g.LightLevel == nil {
		return 0, false
	}
	return *g.LightLevel, true
}

// IsOn reports whether the light level is above zero
func (l *Light) IsOn() bool {
	lvl, ok := l.level()
	return ok && lvl > 0
}

// Brightness returns the 0-255 brightness, nil when the level is unknown
func (l *Light) Brightness() *int {
	lvl, ok := l.level()
	if !ok {
		return nil
	}
	b := BrightnessFromLevel(lvl)
	return &b
}

// Available reports whether the garden is listed and online
func (l *Light) Available() bool {
	g, ok := l.garden()
	return ok && g.IsOnline
}

func (l *Light) Icon() string { return "mdi:lightbulb" }
func (l *Light) Unit() string { return "%" }

func (l *Light) Value() interface{} {
	if _, ok := l.garden(); !ok {
		return nil
	}
	if l.IsOn() {
		return "on"
	}
	return "off"
}

// Measurement is the raw 0-100 light level
func (l *Light) Measurement() (float64, bool) {
	lvl, ok := l.level()
	return float64(lvl), ok
}

func (l *Light) Attributes() map[string]interface{} {
	attrs := map[string]interface{}{}
	if b := l.Brightness(); b != nil {
		attrs["brightness"] = *b
	}
	if lvl, ok := l.level(); ok {
		attrs["light_level"] = lvl
	}
	return attrs
}

// TurnOn sets the light to brightness (full when nil) and refreshes
func (l *Light) TurnOn(ctx context.Context, brightness *int) error {
	b := MaxBrightness
	if brightness != nil {
		b = *brightness
	}
	level := LevelFromBrightness(b)
	l.log.WithGardenID(l.gardenID).Debugf("Setting light level to %d", level)
	return l.apply(ctx, level)
}

// TurnOff sets the light level to zero and refreshes
func (l *Light) TurnOff(ctx context.Context) error {
	l.log.WithGardenID(l.gardenID).Debug("Turning off light")
	return l.apply(ctx, 0)
}

func (l *Light) apply(ctx context.Context, level int) error {
	if err := l.api.SetLightLevel(ctx, l.gardenID, level); err != nil {
		l.log.WithGardenID(l.gardenID).WithError(err).Error("Failed to set light level")
		return fmt.Errorf("failed to set light level for garden %d: %w", l.gardenID, err)
	}
	if l.refresher != nil {
		if err := l.refresher.RequestRefresh(ctx); err != nil {
			l.log.WithGardenID(l.gardenID).WithError(err).Warn("Refresh after light change failed")
		}
	}
	return nil
}
