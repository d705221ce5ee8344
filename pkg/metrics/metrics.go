package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GardenLabels are the labels attached to every per-garden metric
var GardenLabels = []string{"garden_id", "garden_name"}

// MetricDescriptors holds the per-garden Prometheus gauges
type MetricDescriptors struct {
	LightLevelPercentage  *prometheus.GaugeVec
	LightBrightness       *prometheus.GaugeVec
	IsLightOn             *prometheus.GaugeVec
	WaterLevelPercentage  *prometheus.GaugeVec
	IsOnline              *prometheus.GaugeVec
	PendingTasks          *prometheus.GaugeVec
	TemperatureCelsius    *prometheus.GaugeVec
	WaterDepthMillimeters *prometheus.GaugeVec
}

func newGardenGauge(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, GardenLabels)
}

// NewMetricDescriptors creates the garden gauges. They are not registered;
// the collector exposes them through its own Describe/Collect.
func NewMetricDescriptors() *MetricDescriptors {
	return &MetricDescriptors{
		LightLevelPercentage:  newGardenGauge("rise_garden_light_level_percentage", "Grow light level (0-100%)"),
		LightBrightness:       newGardenGauge("rise_garden_light_brightness", "Grow light brightness on the 0-255 scale"),
		IsLightOn:             newGardenGauge("rise_garden_is_light_on", "Whether the grow light is on (1 = on, 0 = off)"),
		WaterLevelPercentage:  newGardenGauge("rise_garden_water_level_percentage", "Reservoir water level derived from the LED index (0-100%)"),
		IsOnline:              newGardenGauge("rise_garden_is_online", "Whether the garden is reachable by the cloud (1 = online, 0 = offline)"),
		PendingTasks:          newGardenGauge("rise_garden_pending_tasks", "Number of pending care tasks"),
		TemperatureCelsius:    newGardenGauge("rise_garden_temperature_celsius", "Ambient temperature in Celsius"),
		WaterDepthMillimeters: newGardenGauge("rise_garden_water_depth_millimeters", "Reservoir water depth in millimeters"),
	}
}

// All returns every gauge vector
func (md *MetricDescriptors) All() []*prometheus.GaugeVec {
	return []*prometheus.GaugeVec{
		md.LightLevelPercentage,
		md.LightBrightness,
		md.IsLightOn,
		md.WaterLevelPercentage,
		md.IsOnline,
		md.PendingTasks,
		md.TemperatureCelsius,
		md.WaterDepthMillimeters,
	}
}

// Reset clears all metric values so gardens that disappeared stop reporting
func (md *MetricDescriptors) Reset() {
	for _, g := range md.All() {
		g.Reset()
	}
}

// BoolToFloat converts a flag to the 1/0 gauge convention
func BoolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
