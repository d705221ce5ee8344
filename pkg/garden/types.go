package garden

import "encoding/json"

// Task is a care task attached to a garden
type Task struct {
	ID    int64  `json:"id,omitempty"`
	Title string `json:"title"`
}

// UserTasks groups pending care tasks by severity
type UserTasks struct {
	MajorTask []Task `json:"major_task"`
	MinorTask []Task `json:"minor_task"`
}

// Garden is one entry of the gardens list. Optional readings are pointers
// so an absent value is not confused with zero.
type Garden struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	LightLevel    *int      `json:"light_level"`
	IsOnline      bool      `json:"is_online"`
	WaterLEDIndex *int      `json:"water_led_index"`
	WaterDistance *float64  `json:"water_distance"`
	NumberOfTasks int       `json:"number_of_tasks"`
	UserTasks     UserTasks `json:"user_tasks"`
	IsCareNeeded  *bool     `json:"is_care_needed"`
	NextCareAt    *string   `json:"next_care_at"`
}

// GardenList is the body of GET /gardens/list_v2
type GardenList struct {
	Gardens []Garden `json:"gardens"`
}

// DeviceReading is the latest device telemetry for one garden
type DeviceReading struct {
	// At is the ambient temperature in °C
	At *float64 `json:"at"`
	// Kit is the kit identifier; the API returns it as a string or a number
	Kit interface{} `json:"kit"`
	// WP is the water pump status
	WP            interface{} `json:"wp"`
	WaterDepth    *float64    `json:"water_depth"`
	WaterDistance *float64    `json:"water_distance"`
	L1            *float64    `json:"l1"`
}

// DeviceData maps garden id (as a string) to its latest reading
type DeviceData map[string]DeviceReading

// Document is an untyped JSON object, used for schedules and sensor dumps
// whose shape the API does not pin down.
type Document map[string]interface{}

// decodeDeviceData decodes each reading separately so one malformed entry
// does not discard the others. It returns the ids that were dropped.
func decodeDeviceData(body []byte) (DeviceData, []string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil, err
	}

	data := make(DeviceData, len(raw))
	var dropped []string
	for id, msg := range raw {
		var reading DeviceReading
		if err := json.Unmarshal(msg, &reading); err != nil {
			dropped = append(dropped, id)
			continue
		}
		data[id] = reading
	}
	return data, dropped, nil
}
