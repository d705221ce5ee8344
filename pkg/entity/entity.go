// Package entity projects the polled garden snapshot into sensors and a
// controllable light, one set per garden.
package entity

import (
	"fmt"
	"strconv"

	"github.com/andreweacott/risegarden-exporter/pkg/coordinator"
	"github.com/andreweacott/risegarden-exporter/pkg/garden"
)

// Device identity shared by every entity of a garden
const (
	Domain       = "rise_garden"
	Manufacturer = "Rise Gardens"
	Model        = "Indoor Garden"
)

// Entity kinds, used as the suffix of unique ids
const (
	KindWaterLevel  = "water"
	KindOnline      = "online"
	KindTasks       = "tasks"
	KindTemperature = "temperature"
	KindWaterDepth  = "water_depth"
	KindLight       = "light"
)

// SnapshotSource is the read side of the polling coordinator
type SnapshotSource interface {
	Snapshot() *coordinator.Snapshot
	LastUpdateSuccess() bool
}

// DeviceInfo groups the entities of one garden under a device
type DeviceInfo struct {
	Identifiers  [][2]string `json:"identifiers"`
	Name         string      `json:"name"`
	Manufacturer string      `json:"manufacturer"`
	Model        string      `json:"model"`
}

// Entity is a read-only view of one aspect of a garden. Values are
// recomputed from the latest snapshot on every call.
type Entity interface {
	UniqueID() string
	Name() string
	Kind() string
	GardenID() int64
	GardenName() string
	DeviceInfo() DeviceInfo
	Icon() string
	Unit() string

	// Value is the native state, nil when unknown
	Value() interface{}
	// Measurement is the numeric form of Value for metrics
	Measurement() (float64, bool)
	Available() bool
	Attributes() map[string]interface{}
}

// State is the serialisable form of an entity
type State struct {
	UniqueID   string                 `json:"unique_id"`
	Name       string                 `json:"name"`
	Kind       string                 `json:"kind"`
	GardenID   int64                  `json:"garden_id"`
	Value      interface{}            `json:"value"`
	Unit       string                 `json:"unit,omitempty"`
	Icon       string                 `json:"icon,omitempty"`
	Available  bool                   `json:"available"`
	Attributes map[string]interface{} `json:"attributes"`
	Device     DeviceInfo             `json:"device"`
}

// StateOf captures the current state of e
func StateOf(e Entity) State {
	return State{
		UniqueID:   e.UniqueID(),
		Name:       e.Name(),
		Kind:       e.Kind(),
		GardenID:   e.GardenID(),
		Value:      e.Value(),
		Unit:       e.Unit(),
		Icon:       e.Icon(),
		Available:  e.Available(),
		Attributes: e.Attributes(),
		Device:     e.DeviceInfo(),
	}
}

// base holds what every entity of a garden shares
type base struct {
	source     SnapshotSource
	gardenID   int64
	gardenName string
	kind       string
	name       string
}

func newBase(source SnapshotSource, g garden.Garden, kind, label string) base {
	return base{
		source:     source,
		gardenID:   g.ID,
		gardenName: g.Name,
		kind:       kind,
		name:       fmt.Sprintf("%s %s", g.Name, label),
	}
}

func (b base) UniqueID() string {
	return fmt.Sprintf("%s_%d_%s", Domain, b.gardenID, b.kind)
}

func (b base) Name() string       { return b.name }
func (b base) Kind() string       { return b.kind }
func (b base) GardenID() int64    { return b.gardenID }
func (b base) GardenName() string { return b.gardenName }
func (b base) Icon() string       { return "" }
func (b base) Unit() string       { return "" }

func (b base) DeviceInfo() DeviceInfo {
	return DeviceInfo{
		Identifiers:  [][2]string{{Domain, strconv.FormatInt(b.gardenID, 10)}},
		Name:         "Rise Garden " + b.gardenName,
		Manufacturer: Manufacturer,
		Model:        Model,
	}
}

// Available reports whether the last poll succeeded and still lists the garden
func (b base) Available() bool {
	if !b.source.LastUpdateSuccess() {
		return false
	}
	_, ok := b.garden()
	return ok
}

func (b base) garden() (garden.Garden, bool) {
	return b.source.Snapshot().Garden(b.gardenID)
}

func (b base) reading() (garden.DeviceReading, bool) {
	return b.source.Snapshot().Reading(b.gardenID)
}

func optInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func optFloat(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func optBool(p *bool) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func optString(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
