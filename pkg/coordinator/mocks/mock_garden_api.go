// Package mocks provides test doubles for the coordinator package.
package mocks

import (
	"context"

	"github.com/andreweacott/risegarden-exporter/pkg/garden"
	"github.com/stretchr/testify/mock"
)

// MockGardenAPI is a mock implementation of GardenAPI and ScheduleAPI
type MockGardenAPI struct {
	mock.Mock
}

// ListGardens implements GardenAPI.ListGardens
func (m *MockGardenAPI) ListGardens(ctx context.Context) (*garden.GardenList, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*garden.GardenList), args.Error(1)
}

// GardensDeviceData implements GardenAPI.GardensDeviceData
func (m *MockGardenAPI) GardensDeviceData(ctx context.Context) (garden.DeviceData, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(garden.DeviceData), args.Error(1)
}

// LightSchedule implements ScheduleAPI.LightSchedule
func (m *MockGardenAPI) LightSchedule(ctx context.Context, gardenID int64) (garden.Document, error) {
	args := m.Called(ctx, gardenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(garden.Document), args.Error(1)
}

// PumpSchedule implements ScheduleAPI.PumpSchedule
func (m *MockGardenAPI) PumpSchedule(ctx context.Context, gardenID int64) (garden.Document, error) {
	args := m.Called(ctx, gardenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(garden.Document), args.Error(1)
}

// ExpectGardens sets up ListGardens to return gardens
func (m *MockGardenAPI) ExpectGardens(gardens ...garden.Garden) *MockGardenAPI {
	m.On("ListGardens", mock.Anything).Return(&garden.GardenList{Gardens: gardens}, nil)
	return m
}

// ExpectGardensError sets up ListGardens to fail
func (m *MockGardenAPI) ExpectGardensError(err error) *MockGardenAPI {
	m.On("ListGardens", mock.Anything).Return(nil, err)
	return m
}

// ExpectDeviceData sets up GardensDeviceData to return data
func (m *MockGardenAPI) ExpectDeviceData(data garden.DeviceData) *MockGardenAPI {
	m.On("GardensDeviceData", mock.Anything).Return(data, nil)
	return m
}

// ExpectDeviceDataError sets up GardensDeviceData to fail
func (m *MockGardenAPI) ExpectDeviceDataError(err error) *MockGardenAPI {
	m.On("GardensDeviceData", mock.Anything).Return(nil, err)
	return m
}
