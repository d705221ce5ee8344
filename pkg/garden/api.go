package garden

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
)

// ListGardens returns the account's gardens
func (c *Client) ListGardens(ctx context.Context) (*GardenList, error) {
	var list GardenList
	if err := c.getJSON(ctx, "/gardens/list_v2", nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list gardens: %w", err)
	}
	return &list, nil
}

// GardensDeviceData returns the latest reading of every garden, keyed by
// garden id. Readings that fail to decode are left out.
func (c *Client) GardensDeviceData(ctx context.Context) (DeviceData, error) {
	resp, err := c.get(ctx, "/gardens/gardens_device_data", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get gardens device data: %w", err)
	}

	data, dropped, err := decodeDeviceData(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to get gardens device data: %w: %v", ErrUpstreamData, err)
	}
	if len(dropped) > 0 {
		sort.Strings(dropped)
		c.log.Warn("Skipping malformed device readings", "garden_ids", dropped)
	}
	return data, nil
}

// LightSchedule returns the light schedule of a garden
func (c *Client) LightSchedule(ctx context.Context, gardenID int64) (Document, error) {
	var doc Document
	if err := c.getJSON(ctx, "/device/light-schedule", gardenQuery(gardenID), &doc); err != nil {
		return nil, fmt.Errorf("failed to get light schedule for garden %d: %w", gardenID, err)
	}
	return doc, nil
}

// SetLightLevel sets the grow light intensity (0-100, 0 turns it off)
func (c *Client) SetLightLevel(ctx context.Context, gardenID int64, level int) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("failed to set light level for garden %d: %w (got %d)", gardenID, ErrInvalidLevel, level)
	}

	resp, err := c.Do(ctx, Request{
		Method: http.MethodPut,
		Path:   fmt.Sprintf("/gardens/%d/device/light-level", gardenID),
		Body:   map[string]int{"light_level": level},
	})
	if err == nil {
		err = expectOK(resp)
	}
	if err != nil {
		return fmt.Errorf("failed to set light level for garden %d: %w", gardenID, err)
	}
	return nil
}

// LastSensorData returns the most recent raw sensor dump of a garden
func (c *Client) LastSensorData(ctx context.Context, gardenID int64) (Document, error) {
	var doc Document
	if err := c.getJSON(ctx, "/device/last_data_sensors", gardenQuery(gardenID), &doc); err != nil {
		return nil, fmt.Errorf("failed to get sensor data for garden %d: %w", gardenID, err)
	}
	return doc, nil
}

// SetPump turns the water pump on or off
func (c *Client) SetPump(ctx context.Context, gardenID int64, on bool) error {
	resp, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/gardens/%d/device/pump", gardenID),
		Body:   map[string]bool{"pump": on},
	})
	if err == nil {
		err = expectOK(resp)
	}
	if err != nil {
		return fmt.Errorf("failed to control pump for garden %d: %w", gardenID, err)
	}
	return nil
}

// PumpSchedule returns the pump schedule of a garden
func (c *Client) PumpSchedule(ctx context.Context, gardenID int64) (Document, error) {
	var doc Document
	if err := c.getJSON(ctx, "/device/pump/schedule", gardenQuery(gardenID), &doc); err != nil {
		return nil, fmt.Errorf("failed to get pump schedule for garden %d: %w", gardenID, err)
	}
	return doc, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*Response, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return nil, err
	}
	if err := expectOK(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	resp, err := c.get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamData, err)
	}
	return nil
}

func expectOK(resp *Response) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status code %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

func gardenQuery(gardenID int64) url.Values {
	return url.Values{"garden_id": []string{strconv.FormatInt(gardenID, 10)}}
}
