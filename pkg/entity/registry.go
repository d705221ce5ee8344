package entity

import (
	"github.com/andreweacott/risegarden-exporter/pkg/logger"
)

// Registry holds the entities created for the gardens of one account
type Registry struct {
	entities []Entity
	byID     map[string]Entity
	lights   map[int64]*Light
}

// Build creates five sensors and a light for every garden in the current
// snapshot of source. Gardens added later are picked up by building again.
func Build(source SnapshotSource, api LightController, refresher Refresher, log *logger.Logger) *Registry {
	r := &Registry{
		byID:   map[string]Entity{},
		lights: map[int64]*Light{},
	}

	snap := source.Snapshot()
	if snap == nil {
		return r
	}

	for _, g := range snap.Gardens {
		light := NewLight(source, api, refresher, g, log)
		r.add(
			NewWaterLevelSensor(source, g),
			NewOnlineSensor(source, g),
			NewTasksSensor(source, g),
			NewTemperatureSensor(source, g),
			NewWaterDepthSensor(source, g),
			light,
		)
		r.lights[g.ID] = light
	}
	return r
}

func (r *Registry) add(entities ...Entity) {
	for _, e := range entities {
		r.entities = append(r.entities, e)
		r.byID[e.UniqueID()] = e
	}
}

// All returns every entity in creation order
func (r *Registry) All() []Entity {
	return append([]Entity(nil), r.entities...)
}

// Len is the number of entities
func (r *Registry) Len() int {
	return len(r.entities)
}

// Get looks an entity up by unique id
func (r *Registry) Get(uniqueID string) (Entity, bool) {
	e, ok := r.byID[uniqueID]
	return e, ok
}

// Light returns the light of a garden
func (r *Registry) Light(gardenID int64) (*Light, bool) {
	l, ok := r.lights[gardenID]
	return l, ok
}
