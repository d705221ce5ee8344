// Package collector provides garden metric extraction helpers.
package collector

import (
	"fmt"

	"github.com/andreweacott/risegarden-exporter/pkg/entity"
)

// Validation constants for metric ranges
const (
	// Temperature (Celsius) - typical indoor range
	MinValidTemperature = -50.0
	MaxValidTemperature = 60.0

	// Percentages (light level, water level) - always 0-100
	MinValidPercentage = 0.0
	MaxValidPercentage = 100.0

	// Water depth (mm) - the reservoir is well under a metre deep
	MinValidWaterDepth = 0.0
	MaxValidWaterDepth = 1000.0
)

// GardenMetrics holds the metric values of a single garden. Nil means the
// value is unknown and the gauge is left out.
type GardenMetrics struct {
	GardenID   int64
	GardenName string

	LightLevel       *float64
	LightBrightness  *float64
	IsLightOn        bool
	WaterLevel       *float64
	IsOnline         *float64
	PendingTasks     *float64
	Temperature      *float64
	WaterDepthMillis *float64
}

// ExtractGardenMetrics groups entity measurements by garden, in the order
// gardens first appear
func ExtractGardenMetrics(entities []entity.Entity) []*GardenMetrics {
	var out []*GardenMetrics
	byGarden := map[int64]*GardenMetrics{}

	for _, e := range entities {
		gm, ok := byGarden[e.GardenID()]
		if !ok {
			gm = &GardenMetrics{GardenID: e.GardenID(), GardenName: e.GardenName()}
			byGarden[e.GardenID()] = gm
			out = append(out, gm)
		}

		v, ok := e.Measurement()
		if !ok {
			continue
		}

		switch e.Kind() {
		case entity.KindLight:
			gm.LightLevel = &v
			if light, isLight := e.(*entity.Light); isLight {
				if b := light.Brightness(); b != nil {
					brightness := float64(*b)
					gm.LightBrightness = &brightness
				}
				gm.IsLightOn = light.IsOn()
			}
		case entity.KindWaterLevel:
			gm.WaterLevel = &v
		case entity.KindOnline:
			gm.IsOnline = &v
		case entity.KindTasks:
			gm.PendingTasks = &v
		case entity.KindTemperature:
			gm.Temperature = &v
		case entity.KindWaterDepth:
			gm.WaterDepthMillis = &v
		}
	}
	return out
}

// ValidationError represents a validation error for a metric
type ValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s = %v, %s", ve.Field, ve.Value, ve.Reason)
}

func validateRange(v, lo, hi float64, field, unit string) error {
	if v < lo || v > hi {
		return &ValidationError{
			Field:  field,
			Value:  v,
			Reason: fmt.Sprintf("outside valid range [%g, %g]%s", lo, hi, unit),
		}
	}
	return nil
}

// validateTemperature checks if a temperature is within valid bounds
func validateTemperature(temp float64, fieldName string) error {
	return validateRange(temp, MinValidTemperature, MaxValidTemperature, fieldName, "°C")
}

// validatePercentage checks if a percentage is within valid bounds
func validatePercentage(pct float64, fieldName string) error {
	return validateRange(pct, MinValidPercentage, MaxValidPercentage, fieldName, "%")
}

// validateWaterDepth checks if a water depth is within valid bounds
func validateWaterDepth(depth float64, fieldName string) error {
	return validateRange(depth, MinValidWaterDepth, MaxValidWaterDepth, fieldName, "mm")
}

// ValidateGardenMetrics validates extracted garden metrics
func ValidateGardenMetrics(gm *GardenMetrics) []error {
	var errs []error

	if gm == nil {
		return append(errs, &ValidationError{
			Field:  "metrics",
			Reason: "metrics object is nil",
		})
	}

	if gm.LightLevel != nil {
		if err := validatePercentage(*gm.LightLevel, "light_level"); err != nil {
			errs = append(errs, err)
		}
	}
	if gm.WaterLevel != nil {
		if err := validatePercentage(*gm.WaterLevel, "water_level"); err != nil {
			errs = append(errs, err)
		}
	}
	if gm.Temperature != nil {
		if err := validateTemperature(*gm.Temperature, "temperature"); err != nil {
			errs = append(errs, err)
		}
	}
	if gm.WaterDepthMillis != nil {
		if err := validateWaterDepth(*gm.WaterDepthMillis, "water_depth"); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
