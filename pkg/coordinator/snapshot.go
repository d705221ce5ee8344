package coordinator

import (
	"strconv"
	"time"

	"github.com/andreweacott/risegarden-exporter/pkg/garden"
)

// Snapshot is the result of one poll cycle. It is never modified after
// being published, so readers may hold on to it without locking.
type Snapshot struct {
	Gardens    []garden.Garden
	DeviceData garden.DeviceData
	FetchedAt  time.Time
}

// Garden returns the garden with the given id
func (s *Snapshot) Garden(id int64) (garden.Garden, bool) {
	if s == nil {
		return garden.Garden{}, false
	}
	for _, g := range s.Gardens {
		if g.ID == id {
			return g, true
		}
	}
	return garden.Garden{}, false
}

// Reading returns the device reading of the given garden
func (s *Snapshot) Reading(id int64) (garden.DeviceReading, bool) {
	if s == nil {
		return garden.DeviceReading{}, false
	}
	r, ok := s.DeviceData[strconv.FormatInt(id, 10)]
	return r, ok
}
