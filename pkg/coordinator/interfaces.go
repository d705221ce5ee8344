// Package coordinator provides interfaces for Rise Gardens API interactions.
package coordinator

import (
	"context"

	"github.com/andreweacott/risegarden-exporter/pkg/garden"
)

// GardenAPI is what a poll cycle needs from the garden client.
// This interface allows for dependency injection and testing with mocks.
type GardenAPI interface {
	// ListGardens retrieves the account's gardens
	ListGardens(ctx context.Context) (*garden.GardenList, error)

	// GardensDeviceData retrieves the latest reading of every garden
	GardensDeviceData(ctx context.Context) (garden.DeviceData, error)
}

// ScheduleAPI fetches per-garden schedules
type ScheduleAPI interface {
	LightSchedule(ctx context.Context, gardenID int64) (garden.Document, error)
	PumpSchedule(ctx context.Context, gardenID int64) (garden.Document, error)
}
