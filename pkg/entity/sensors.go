package entity

import (
	"github.com/andreweacott/risegarden-exporter/pkg/garden"
)

// WaterLevelSensor reports the reservoir level derived from the LED index
type WaterLevelSensor struct{ base }

// NewWaterLevelSensor creates the water level sensor of g
func NewWaterLevelSensor(source SnapshotSource, g garden.Garden) *WaterLevelSensor {
	return &WaterLevelSensor{newBase(source, g, KindWaterLevel, "Water Level")}
}

func (s *WaterLevelSensor) Icon() string { return "mdi:water" }
func (s *WaterLevelSensor) Unit() string { return "%" }

// Percent maps the 0-5 LED index to 0-100 %
func (s *WaterLevelSensor) Percent() (int, bool) {
	g, ok := s.garden()
	if !ok || g.WaterLEDIndex == nil {
		return 0, false
	}
	return clamp(*g.WaterLEDIndex*20, 0, 100), true
}

func (s *WaterLevelSensor) Value() interface{} {
	if p, ok := s.Percent(); ok {
		return p
	}
	return nil
}

func (s *WaterLevelSensor) Measurement() (float64, bool) {
	p, ok := s.Percent()
	return float64(p), ok
}

func (s *WaterLevelSensor) Attributes() map[string]interface{} {
	g, ok := s.garden()
	if !ok {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"water_distance":  optFloat(g.WaterDistance),
		"water_led_index": optInt(g.WaterLEDIndex),
	}
}

// Online status values
const (
	StatusOnline  = "Online"
	StatusOffline = "Offline"
	StatusUnknown = "Unknown"
)

// OnlineSensor reports whether the garden is connected to the cloud
type OnlineSensor struct{ base }

// NewOnlineSensor creates the connectivity sensor of g
func NewOnlineSensor(source SnapshotSource, g garden.Garden) *OnlineSensor {
	return &OnlineSensor{newBase(source, g, KindOnline, "Online")}
}

func (s *OnlineSensor) Value() interface{} {
	g, ok := s.garden()
	switch {
	case !ok:
		return StatusUnknown
	case g.IsOnline:
		return StatusOnline
	default:
		return StatusOffline
	}
}

func (s *OnlineSensor) Icon() string {
	if g, ok := s.garden(); ok && g.IsOnline {
		return "mdi:wifi"
	}
	return "mdi:wifi-off"
}

func (s *OnlineSensor) Measurement() (float64, bool) {
	g, ok := s.garden()
	if !ok {
		return 0, false
	}
	if g.IsOnline {
		return 1, true
	}
	return 0, true
}

func (s *OnlineSensor) Attributes() map[string]interface{} {
	return map[string]interface{}{}
}

// TasksSensor reports the number of pending care tasks
type TasksSensor struct{ base }

// NewTasksSensor creates the pending tasks sensor of g
func NewTasksSensor(source SnapshotSource, g garden.Garden) *TasksSensor {
	return &TasksSensor{newBase(source, g, KindTasks, "Pending Tasks")}
}

func (s *TasksSensor) Icon() string { return "mdi:clipboard-list" }

func (s *TasksSensor) Value() interface{} {
	if g, ok := s.garden(); ok {
		return g.NumberOfTasks
	}
	return nil
}

func (s *TasksSensor) Measurement() (float64, bool) {
	g, ok := s.garden()
	return float64(g.NumberOfTasks), ok
}

func (s *TasksSensor) Attributes() map[string]interface{} {
	g, ok := s.garden()
	if !ok {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"major_tasks":    titles(g.UserTasks.MajorTask),
		"minor_tasks":    titles(g.UserTasks.MinorTask),
		"is_care_needed": optBool(g.IsCareNeeded),
		"next_care_at":   optString(g.NextCareAt),
	}
}

func titles(tasks []garden.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Title)
	}
	return out
}

// TemperatureSensor reports the ambient temperature from device data
type TemperatureSensor struct{ base }

// NewTemperatureSensor creates the temperature sensor of g
func NewTemperatureSensor(source SnapshotSource, g garden.Garden) *TemperatureSensor {
	return &TemperatureSensor{newBase(source, g, KindTemperature, "Temperature")}
}

func (s *TemperatureSensor) Unit() string { return "°C" }

func (s *TemperatureSensor) Value() interface{} {
	if v, ok := s.Measurement(); ok {
		return v
	}
	return nil
}

func (s *TemperatureSensor) Measurement() (float64, bool) {
	if _, ok := s.garden(); !ok {
		return 0, false
	}
	r, ok := s.reading()
	if !ok || r.At == nil {
		return 0, false
	}
	return *r.At, true
}

func (s *TemperatureSensor) Attributes() map[string]interface{} {
	r, ok := s.reading()
	if !ok {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"kit_id":      r.Kit,
		"pump_status": r.WP,
	}
}

// WaterDepthSensor reports the reservoir depth from device data
type WaterDepthSensor struct{ base }

// NewWaterDepthSensor creates the water depth sensor of g
func NewWaterDepthSensor(source SnapshotSource, g garden.Garden) *WaterDepthSensor {
	return &WaterDepthSensor{newBase(source, g, KindWaterDepth, "Water Depth")}
}

func (s *WaterDepthSensor) Icon() string { return "mdi:water" }
func (s *WaterDepthSensor) Unit() string { return "mm" }

func (s *WaterDepthSensor) Value() interface{} {
	if v, ok := s.Measurement(); ok {
		return v
	}
	return nil
}

func (s *WaterDepthSensor) Measurement() (float64, bool) {
	if _, ok := s.garden(); !ok {
		return 0, false
	}
	r, ok := s.reading()
	if !ok || r.WaterDepth == nil {
		return 0, false
	}
	return *r.WaterDepth, true
}

func (s *WaterDepthSensor) Attributes() map[string]interface{} {
	r, ok := s.reading()
	if !ok {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"water_distance": optFloat(r.WaterDistance),
		"light_level":    optFloat(r.L1),
	}
}
