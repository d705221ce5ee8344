// Package collector implements the Prometheus collector for Rise Gardens.
//
// The collector never calls the API. It projects the entities of the
// latest coordinator snapshot into per-garden gauges on every scrape, so
// scrapes are cheap and always reflect the last successful poll.
package collector

import (
	"strconv"
	"sync"

	"github.com/andreweacott/risegarden-exporter/pkg/entity"
	"github.com/andreweacott/risegarden-exporter/pkg/logger"
	"github.com/andreweacott/risegarden-exporter/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// EntitySource provides the entities to project
type EntitySource interface {
	Entities() []entity.Entity
}

// GardenCollector implements the prometheus.Collector interface
type GardenCollector struct {
	source            EntitySource
	metricDescriptors *metrics.MetricDescriptors
	log               *logger.Logger

	// mu keeps concurrent scrapes from resetting each other's gauges
	mu sync.Mutex
}

// NewGardenCollector creates a collector over source
func NewGardenCollector(source EntitySource, metricDescriptors *metrics.MetricDescriptors, log *logger.Logger) *GardenCollector {
	return &GardenCollector{
		source:            source,
		metricDescriptors: metricDescriptors,
		log:               logger.OrDiscard(log),
	}
}

// Describe sends the super-set of all possible descriptors of metrics collected by this collector
func (gc *GardenCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range gc.metricDescriptors.All() {
		g.Describe(ch)
	}
}

// Collect is called by the Prometheus client when scraping /metrics
func (gc *GardenCollector) Collect(ch chan<- prometheus.Metric) {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	// Gardens that disappeared must stop reporting.
	gc.metricDescriptors.Reset()

	for _, gm := range ExtractGardenMetrics(gc.source.Entities()) {
		gc.record(gm)
	}

	for _, g := range gc.metricDescriptors.All() {
		g.Collect(ch)
	}
}

func (gc *GardenCollector) record(gm *GardenMetrics) {
	md := gc.metricDescriptors
	labels := []string{strconv.FormatInt(gm.GardenID, 10), gm.GardenName}

	if gm.LightLevel != nil {
		if err := validatePercentage(*gm.LightLevel, "light_level"); err != nil {
			gc.skip(gm.GardenID, "Invalid light level, skipping metric", *gm.LightLevel, err)
		} else {
			md.LightLevelPercentage.WithLabelValues(labels...).Set(*gm.LightLevel)
			md.IsLightOn.WithLabelValues(labels...).Set(metrics.BoolToFloat(gm.IsLightOn))
			if gm.LightBrightness != nil {
				md.LightBrightness.WithLabelValues(labels...).Set(*gm.LightBrightness)
			}
		}
	}

	if gm.WaterLevel != nil {
		if err := validatePercentage(*gm.WaterLevel, "water_level"); err != nil {
			gc.skip(gm.GardenID, "Invalid water level, skipping metric", *gm.WaterLevel, err)
		} else {
			md.WaterLevelPercentage.WithLabelValues(labels...).Set(*gm.WaterLevel)
		}
	}

	if gm.IsOnline != nil {
		md.IsOnline.WithLabelValues(labels...).Set(*gm.IsOnline)
	}

	if gm.PendingTasks != nil {
		md.PendingTasks.WithLabelValues(labels...).Set(*gm.PendingTasks)
	}

	if gm.Temperature != nil {
		if err := validateTemperature(*gm.Temperature, "temperature"); err != nil {
			gc.skip(gm.GardenID, "Invalid temperature, skipping metric", *gm.Temperature, err)
		} else {
			md.TemperatureCelsius.WithLabelValues(labels...).Set(*gm.Temperature)
		}
	}

	if gm.WaterDepthMillis != nil {
		if err := validateWaterDepth(*gm.WaterDepthMillis, "water_depth"); err != nil {
			gc.skip(gm.GardenID, "Invalid water depth, skipping metric", *gm.WaterDepthMillis, err)
		} else {
			md.WaterDepthMillimeters.WithLabelValues(labels...).Set(*gm.WaterDepthMillis)
		}
	}
}

func (gc *GardenCollector) skip(gardenID int64, msg string, value float64, err error) {
	gc.log.WithGardenID(gardenID).WithField("value", value).WithError(err).Warn(msg)
}
